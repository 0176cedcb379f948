package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"escrowd/core/events"
	"escrowd/core/types"
)

var (
	errNilState            = errors.New("escrow engine: state not configured")
	errInsufficientBalance = errors.New("escrow engine: insufficient balance")
)

// engineState is the persistence surface the engine depends on. The state
// manager in core/state provides the production implementation; tests supply
// an in-memory mock.
type engineState interface {
	JobPut(*Job) error
	JobGet(id uint64) (*Job, bool)
	NextJobID() (uint64, error)
	CustodyCredit(method PaymentMethod, amt *big.Int) error
	CustodyDebit(method PaymentMethod, amt *big.Int) error
	VaultAddress(method PaymentMethod) ([20]byte, error)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
	TokenAllowance(owner [20]byte) (*big.Int, error)
	TokenSetAllowance(owner [20]byte, amt *big.Int) error
}

type jobEvent struct {
	evt *types.Event
}

func (e jobEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e jobEvent) Event() *types.Event { return e.evt }

// Engine owns the authoritative lifecycle of every escrow job: transition
// legality, role authorization and fund custody. Each operation is atomic:
// a failure after validation rolls the job and custody ledger back fully, so
// no partially applied transition is ever observable.
type Engine struct {
	state   engineState
	emitter events.Emitter
	nowFn   func() int64

	// createMu serializes jobId allocation process-wide; jobLocks serializes
	// check-and-transition per job while leaving distinct jobs concurrent.
	// fundsMu guards account and custody movements, which cross jobs via the
	// shared vault accounts.
	createMu sync.Mutex
	fundsMu  sync.Mutex
	jobLocks sync.Map
}

// NewEngine creates an escrow engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(jobEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) lockFor(id uint64) *sync.Mutex {
	lk, _ := e.jobLocks.LoadOrStore(id, &sync.Mutex{})
	return lk.(*sync.Mutex)
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// accountSnapshot remembers the pre-transfer value of an account so a failed
// operation can be unwound without leaving custody and balances out of sync.
type accountSnapshot struct {
	addr [20]byte
	acc  *types.Account
}

func (e *Engine) snapshotAccount(addr [20]byte) (*accountSnapshot, error) {
	acc, err := e.state.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	return &accountSnapshot{addr: addr, acc: acc.Clone()}, nil
}

func (e *Engine) restoreAccounts(snaps ...*accountSnapshot) {
	for _, snap := range snaps {
		if snap == nil {
			continue
		}
		_ = e.state.PutAccount(snap.addr[:], snap.acc)
	}
}

// transferValue moves amount between two accounts in the given payment
// method's balance bucket. Returns errInsufficientBalance when the sender
// cannot cover the amount.
func (e *Engine) transferValue(from, to [20]byte, method PaymentMethod, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("escrow: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = fromAcc.EnsureBalances()
	toAcc = toAcc.EnsureBalances()
	switch method {
	case PayNative:
		if fromAcc.BalanceNative.Cmp(amt) < 0 {
			return errInsufficientBalance
		}
		fromAcc.BalanceNative = new(big.Int).Sub(fromAcc.BalanceNative, amt)
		toAcc.BalanceNative = new(big.Int).Add(toAcc.BalanceNative, amt)
	case PayToken:
		if fromAcc.BalanceToken.Cmp(amt) < 0 {
			return errInsufficientBalance
		}
		fromAcc.BalanceToken = new(big.Int).Sub(fromAcc.BalanceToken, amt)
		toAcc.BalanceToken = new(big.Int).Add(toAcc.BalanceToken, amt)
	default:
		return fmt.Errorf("escrow: unsupported payment method %d", method)
	}
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	if err := e.state.PutAccount(to[:], toAcc); err != nil {
		return err
	}
	return nil
}

func validParties(client, freelancer, arbitrator [20]byte) bool {
	zero := [20]byte{}
	if client == zero || freelancer == zero || arbitrator == zero {
		return false
	}
	return client != freelancer && client != arbitrator && freelancer != arbitrator
}

func (j *Job) authorized(caller [20]byte) bool {
	return caller == j.Client || caller == j.Arbitrator
}

// CreateJob escrows amount on behalf of client and records a new job in state
// CREATED. Funding is captured before the job record becomes visible, so an
// uncustodied job can never exist. For PayNative the attached value must equal
// amount exactly; for PayToken the client must have pre-approved at least
// amount to the engine and attached must be zero.
func (e *Engine) CreateJob(client, freelancer, arbitrator [20]byte, amount *big.Int, method PaymentMethod, attached *big.Int) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return 0, ErrInvalidAmount
	}
	if !method.Valid() {
		return 0, fmt.Errorf("escrow: unsupported payment method %d", method)
	}
	if !validParties(client, freelancer, arbitrator) {
		return 0, ErrInvalidParties
	}
	attachedAmt := cloneBigInt(attached)

	e.createMu.Lock()
	defer e.createMu.Unlock()
	e.fundsMu.Lock()
	defer e.fundsMu.Unlock()

	vault, err := e.state.VaultAddress(method)
	if err != nil {
		return 0, err
	}
	clientSnap, err := e.snapshotAccount(client)
	if err != nil {
		return 0, err
	}
	vaultSnap, err := e.snapshotAccount(vault)
	if err != nil {
		return 0, err
	}

	var priorAllowance *big.Int
	switch method {
	case PayNative:
		if attachedAmt.Cmp(amt) != 0 {
			return 0, ErrInsufficientFunding
		}
	case PayToken:
		if attachedAmt.Sign() != 0 {
			return 0, ErrInsufficientFunding
		}
		allowance, err := e.state.TokenAllowance(client)
		if err != nil {
			return 0, err
		}
		if cloneBigInt(allowance).Cmp(amt) < 0 {
			return 0, ErrInsufficientFunding
		}
		priorAllowance = cloneBigInt(allowance)
		if err := e.state.TokenSetAllowance(client, new(big.Int).Sub(priorAllowance, amt)); err != nil {
			return 0, err
		}
	}

	undo := func() {
		e.restoreAccounts(clientSnap, vaultSnap)
		if priorAllowance != nil {
			_ = e.state.TokenSetAllowance(client, priorAllowance)
		}
	}

	if err := e.transferValue(client, vault, method, amt); err != nil {
		undo()
		if errors.Is(err, errInsufficientBalance) {
			return 0, ErrInsufficientFunding
		}
		return 0, err
	}
	if err := e.state.CustodyCredit(method, amt); err != nil {
		undo()
		return 0, err
	}
	id, err := e.state.NextJobID()
	if err != nil {
		undo()
		_ = e.state.CustodyDebit(method, amt)
		return 0, err
	}
	job := &Job{
		ID:         id,
		Client:     client,
		Freelancer: freelancer,
		Arbitrator: arbitrator,
		Amount:     amt,
		Method:     method,
		State:      StateCreated,
		CreatedAt:  e.now(),
	}
	if err := e.state.JobPut(job); err != nil {
		undo()
		_ = e.state.CustodyDebit(method, amt)
		return 0, err
	}
	e.emit(NewJobCreatedEvent(job))
	return id, nil
}

// LockJob freezes a CREATED job against cancellation while work is underway
// or a dispute is open. Only the client or the arbitrator may lock. No funds
// move.
func (e *Engine) LockJob(id uint64, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	lk := e.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	job, ok := e.state.JobGet(id)
	if !ok {
		return ErrNotFound
	}
	if !job.authorized(caller) {
		return ErrUnauthorized
	}
	if job.State != StateCreated {
		return ErrInvalidState
	}
	job.State = StateLocked
	if err := e.state.JobPut(job); err != nil {
		return err
	}
	e.emit(NewJobLockedEvent(job))
	return nil
}

// ReleaseJob pays the full escrowed amount to the freelancer and marks the
// job RELEASED. The freelancer cannot self-release.
func (e *Engine) ReleaseJob(id uint64, caller [20]byte) error {
	return e.settle(id, caller, StateReleased)
}

// CancelJob refunds the full escrowed amount to the client and marks the job
// CANCELLED.
func (e *Engine) CancelJob(id uint64, caller [20]byte) error {
	return e.settle(id, caller, StateCancelled)
}

// settle performs the shared terminal transition: authorization, state check,
// custody payout and tombstone write as one indivisible unit per job.
func (e *Engine) settle(id uint64, caller [20]byte, terminal JobState) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	lk := e.lockFor(id)
	lk.Lock()
	defer lk.Unlock()

	job, ok := e.state.JobGet(id)
	if !ok {
		return ErrNotFound
	}
	if !job.authorized(caller) {
		return ErrUnauthorized
	}
	if job.State != StateCreated && job.State != StateLocked {
		return ErrInvalidState
	}

	recipient := job.Freelancer
	if terminal == StateCancelled {
		recipient = job.Client
	}
	vault, err := e.state.VaultAddress(job.Method)
	if err != nil {
		return err
	}
	amount := cloneBigInt(job.Amount)
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	e.fundsMu.Lock()
	defer e.fundsMu.Unlock()
	vaultSnap, err := e.snapshotAccount(vault)
	if err != nil {
		return err
	}
	recipientSnap, err := e.snapshotAccount(recipient)
	if err != nil {
		return err
	}
	if err := e.transferValue(vault, recipient, job.Method, amount); err != nil {
		e.restoreAccounts(vaultSnap, recipientSnap)
		return ErrTransferFailed
	}
	if err := e.state.CustodyDebit(job.Method, amount); err != nil {
		e.restoreAccounts(vaultSnap, recipientSnap)
		return ErrTransferFailed
	}
	job.State = terminal
	if err := e.state.JobPut(job); err != nil {
		e.restoreAccounts(vaultSnap, recipientSnap)
		_ = e.state.CustodyCredit(job.Method, amount)
		return ErrTransferFailed
	}
	switch terminal {
	case StateReleased:
		e.emit(NewJobReleaseEvent(job))
	case StateCancelled:
		e.emit(NewJobCancelledEvent(job))
	}
	return nil
}

// GetJob returns a copy of the job's current attributes and state. No
// authorization is required for reads.
func (e *Engine) GetJob(id uint64) (*Job, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	job, ok := e.state.JobGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}
