package escrow

import "errors"

// Failure taxonomy for the escrow engine. Authorization and wrong-state
// attempts are expected, recoverable conditions rather than systemic errors;
// callers match them with errors.Is.
var (
	ErrNotFound            = errors.New("escrow: job not found")
	ErrUnauthorized        = errors.New("escrow: caller not authorized for job")
	ErrInvalidState        = errors.New("escrow: operation not legal in current state")
	ErrInvalidAmount       = errors.New("escrow: amount must be positive")
	ErrInvalidParties      = errors.New("escrow: client, freelancer and arbitrator must be distinct")
	ErrInsufficientFunding = errors.New("escrow: attached or approved value does not cover amount")
	ErrTransferFailed      = errors.New("escrow: custody transfer failed")
)
