package client

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseDisplayAmount converts a human-entered amount ("5", "0.25", "1e3",
// "1_000") into the ledger's smallest unit at 18 decimals. The result must be
// a positive integer after scaling.
func ParseDisplayAmount(value string) (*big.Int, error) {
	trimmed := strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if trimmed == "" {
		return nil, fmt.Errorf("amount is required")
	}
	exponent := 0
	base := trimmed
	if idx := strings.IndexAny(trimmed, "eE"); idx != -1 {
		base = trimmed[:idx]
		expPart := strings.TrimSpace(trimmed[idx+1:])
		if expPart == "" {
			return nil, fmt.Errorf("invalid scientific notation in amount")
		}
		parsed, ok := new(big.Int).SetString(expPart, 10)
		if !ok || !parsed.IsInt64() {
			return nil, fmt.Errorf("invalid scientific notation in amount")
		}
		exponent = int(parsed.Int64())
	}
	base = strings.TrimSpace(strings.TrimPrefix(base, "+"))
	if strings.HasPrefix(base, "-") {
		return nil, fmt.Errorf("amount must be positive")
	}
	parts := strings.Split(base, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("invalid amount format")
	}
	integerPart := parts[0]
	fractionalPart := ""
	if len(parts) == 2 {
		fractionalPart = parts[1]
	}
	digits := integerPart + fractionalPart
	if digits == "" || !isDigits(digits) {
		return nil, fmt.Errorf("invalid amount format")
	}
	totalExponent := exponent - len(fractionalPart) + DisplayDecimals
	if totalExponent < 0 {
		return nil, fmt.Errorf("amount has more than %d decimal places", DisplayDecimals)
	}
	scaled, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount format")
	}
	if totalExponent > 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(totalExponent)), nil)
		scaled.Mul(scaled, scale)
	}
	if scaled.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return scaled, nil
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
