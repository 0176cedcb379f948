package types

import "math/big"

// Account tracks the balances held by a single address on the escrow ledger.
// Native units and BLOCKS token units are kept in separate buckets so a job's
// payment method can settle against the correct one.
type Account struct {
	Nonce         uint64   `json:"nonce"`
	BalanceNative *big.Int `json:"balanceNative"`
	BalanceToken  *big.Int `json:"balanceToken"`
}

// EnsureBalances replaces nil balance fields with zero so arithmetic on a
// freshly decoded account never dereferences a nil big.Int.
func (a *Account) EnsureBalances() *Account {
	if a == nil {
		return &Account{BalanceNative: big.NewInt(0), BalanceToken: big.NewInt(0)}
	}
	if a.BalanceNative == nil {
		a.BalanceNative = big.NewInt(0)
	}
	if a.BalanceToken == nil {
		a.BalanceToken = big.NewInt(0)
	}
	return a
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return (&Account{}).EnsureBalances()
	}
	clone := &Account{Nonce: a.Nonce}
	if a.BalanceNative != nil {
		clone.BalanceNative = new(big.Int).Set(a.BalanceNative)
	}
	if a.BalanceToken != nil {
		clone.BalanceToken = new(big.Int).Set(a.BalanceToken)
	}
	return clone.EnsureBalances()
}
