package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// PaymentMethod selects which balance bucket a job's funds settle against.
// The numeric values match the original contract enum: 0 = native currency,
// 1 = BLOCKS token.
type PaymentMethod uint8

const (
	PayNative PaymentMethod = iota
	PayToken
)

// Valid reports whether the payment method is within the supported range.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PayNative, PayToken:
		return true
	default:
		return false
	}
}

func (m PaymentMethod) String() string {
	switch m {
	case PayNative:
		return "NATIVE"
	case PayToken:
		return "TOKEN"
	default:
		return fmt.Sprintf("PaymentMethod(%d)", uint8(m))
	}
}

// ParseMethodLabel resolves a user-facing payment method label ("ETH" or
// "BLOCKS", case-insensitive) to its variant.
func ParseMethodLabel(label string) (PaymentMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "ETH":
		return PayNative, nil
	case "BLOCKS":
		return PayToken, nil
	default:
		return 0, fmt.Errorf("unsupported payment method: %s", label)
	}
}

// JobState represents the lifecycle states of an escrow job. The numeric
// values match the original contract enum.
type JobState uint8

const (
	StateCreated JobState = iota
	StateLocked
	StateReleased
	StateCancelled
)

// Valid reports whether the state value is within the supported range.
func (s JobState) Valid() bool {
	switch s {
	case StateCreated, StateLocked, StateReleased, StateCancelled:
		return true
	default:
		return false
	}
}

func (s JobState) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateLocked:
		return "LOCKED"
	case StateReleased:
		return "RELEASED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("JobState(%d)", uint8(s))
	}
}

// Terminal reports whether the state permits no further transitions.
func (s JobState) Terminal() bool {
	return s == StateReleased || s == StateCancelled
}

// Job captures the immutable metadata and runtime state of a single escrow
// job. Identifiers are allocated from a monotonic counter and never reused;
// released and cancelled jobs are retained as permanent tombstones.
type Job struct {
	ID         uint64
	Client     [20]byte
	Freelancer [20]byte
	Arbitrator [20]byte
	Amount     *big.Int
	Method     PaymentMethod
	State      JobState
	CreatedAt  int64
}

// Clone returns a deep copy of the job so callers can safely mutate the copy
// without affecting the stored instance.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	clone := *j
	if j.Amount != nil {
		clone.Amount = new(big.Int).Set(j.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// SanitizeJob validates and normalises the supplied job record, returning a
// cloned instance with a non-nil amount field. The function does not mutate
// the original value.
func SanitizeJob(j *Job) (*Job, error) {
	if j == nil {
		return nil, fmt.Errorf("nil job")
	}
	clone := j.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("job amount must be non-negative")
	}
	if !clone.Method.Valid() {
		return nil, fmt.Errorf("invalid payment method: %d", clone.Method)
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("invalid job state: %d", clone.State)
	}
	return clone, nil
}
