package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"escrowd/core/types"
	"escrowd/native/escrow"
	"escrowd/storage"
)

// Manager persists escrow ledger state in a key-value store: accounts, jobs,
// the custody ledger, token allowances and the jobId counter. It implements
// the engine's state interface. Read-modify-write sequences on the counter and
// custody totals are serialized internally.
type Manager struct {
	db storage.Database
	mu sync.Mutex
}

// NewManager wraps the given database in a state manager.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// --- accounts ---

// GetAccount loads the account stored at addr, returning a zero-balance
// account when none exists yet.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	raw, err := m.db.Get(accountKey(addr))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return (&types.Account{}).EnsureBalances(), nil
		}
		return nil, err
	}
	account := new(types.Account)
	if err := json.Unmarshal(raw, account); err != nil {
		return nil, fmt.Errorf("state: corrupt account record: %w", err)
	}
	return account.EnsureBalances(), nil
}

// PutAccount stores the account at addr.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account")
	}
	raw, err := json.Marshal(account.EnsureBalances())
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), raw)
}

// --- jobs ---

type storedJob struct {
	ID         uint64 `json:"id"`
	Client     []byte `json:"client"`
	Freelancer []byte `json:"freelancer"`
	Arbitrator []byte `json:"arbitrator"`
	Amount     string `json:"amount"`
	Method     uint8  `json:"method"`
	State      uint8  `json:"state"`
	CreatedAt  int64  `json:"createdAt"`
}

// JobPut sanitizes and stores the job record.
func (m *Manager) JobPut(job *escrow.Job) error {
	sanitized, err := escrow.SanitizeJob(job)
	if err != nil {
		return err
	}
	record := storedJob{
		ID:         sanitized.ID,
		Client:     sanitized.Client[:],
		Freelancer: sanitized.Freelancer[:],
		Arbitrator: sanitized.Arbitrator[:],
		Amount:     sanitized.Amount.String(),
		Method:     uint8(sanitized.Method),
		State:      uint8(sanitized.State),
		CreatedAt:  sanitized.CreatedAt,
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return m.db.Put(jobKey(sanitized.ID), raw)
}

// JobGet loads the job with the given id. Each call decodes a fresh copy, so
// callers can mutate the result freely.
func (m *Manager) JobGet(id uint64) (*escrow.Job, bool) {
	raw, err := m.db.Get(jobKey(id))
	if err != nil {
		return nil, false
	}
	var record storedJob
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, false
	}
	amount, ok := new(big.Int).SetString(record.Amount, 10)
	if !ok {
		return nil, false
	}
	job := &escrow.Job{
		ID:        record.ID,
		Amount:    amount,
		Method:    escrow.PaymentMethod(record.Method),
		State:     escrow.JobState(record.State),
		CreatedAt: record.CreatedAt,
	}
	copy(job.Client[:], record.Client)
	copy(job.Freelancer[:], record.Freelancer)
	copy(job.Arbitrator[:], record.Arbitrator)
	return job, true
}

// NextJobID allocates the next job identifier. Identifiers start at 1 and are
// never reused; the counter write is persisted before the id is handed out.
func (m *Manager) NextJobID() (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := uint64(1)
	raw, err := m.db.Get([]byte(jobCounterKey))
	switch {
	case err == nil:
		if len(raw) != 8 {
			return 0, fmt.Errorf("state: corrupt job counter")
		}
		next = binary.BigEndian.Uint64(raw) + 1
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return 0, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := m.db.Put([]byte(jobCounterKey), buf); err != nil {
		return 0, err
	}
	return next, nil
}

// JobCounter returns the last allocated job id, zero when none exist.
func (m *Manager) JobCounter() (uint64, error) {
	raw, err := m.db.Get([]byte(jobCounterKey))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("state: corrupt job counter")
	}
	return binary.BigEndian.Uint64(raw), nil
}

// --- custody ledger ---

// CustodyBalance returns the total value currently held by the engine for the
// given payment method.
func (m *Manager) CustodyBalance(method escrow.PaymentMethod) (*big.Int, error) {
	raw, err := m.db.Get(custodyKey(method.String()))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	total, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state: corrupt custody record for %s", method)
	}
	return total, nil
}

// CustodyCredit increases the held total for the payment method.
func (m *Manager) CustodyCredit(method escrow.PaymentMethod, amt *big.Int) error {
	return m.custodyAdjust(method, amt, false)
}

// CustodyDebit decreases the held total for the payment method. Debiting more
// than is held is a ledger corruption and is rejected.
func (m *Manager) CustodyDebit(method escrow.PaymentMethod, amt *big.Int) error {
	return m.custodyAdjust(method, amt, true)
}

func (m *Manager) custodyAdjust(method escrow.PaymentMethod, amt *big.Int, debit bool) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: custody adjustment must be non-negative")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	total, err := m.CustodyBalance(method)
	if err != nil {
		return err
	}
	if debit {
		if total.Cmp(amt) < 0 {
			return fmt.Errorf("state: custody underflow for %s", method)
		}
		total = new(big.Int).Sub(total, amt)
	} else {
		total = new(big.Int).Add(total, amt)
	}
	return m.db.Put(custodyKey(method.String()), []byte(total.String()))
}

// VaultAddress returns the deterministic module address holding custodied
// funds for the payment method.
func (m *Manager) VaultAddress(method escrow.PaymentMethod) ([20]byte, error) {
	if !method.Valid() {
		return [20]byte{}, fmt.Errorf("state: unsupported payment method %d", method)
	}
	digest := ethcrypto.Keccak256([]byte("escrowd/vault/" + method.String()))
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr, nil
}

// --- token allowances ---

// TokenAllowance returns the BLOCKS amount the owner has approved the engine
// to draw for job funding.
func (m *Manager) TokenAllowance(owner [20]byte) (*big.Int, error) {
	raw, err := m.db.Get(allowanceKey(owner[:]))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	allowance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state: corrupt allowance record")
	}
	return allowance, nil
}

// TokenSetAllowance overwrites the owner's approval for the engine.
func (m *Manager) TokenSetAllowance(owner [20]byte, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: allowance must be non-negative")
	}
	return m.db.Put(allowanceKey(owner[:]), []byte(amt.String()))
}

// --- genesis ---

// GenesisApplied reports whether the initial balance allocation has been
// written already.
func (m *Manager) GenesisApplied() (bool, error) {
	_, err := m.db.Get([]byte(genesisFlagKey))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkGenesisApplied records that the initial allocation has been written.
func (m *Manager) MarkGenesisApplied() error {
	return m.db.Put([]byte(genesisFlagKey), []byte{1})
}
