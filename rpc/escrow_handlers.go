package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"escrowd/crypto"
	"escrowd/native/escrow"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

type jobCreateParams struct {
	Client     string `json:"client"`
	Freelancer string `json:"freelancer"`
	Arbitrator string `json:"arbitrator"`
	Amount     string `json:"amount"`
	Method     string `json:"method"`
	Value      string `json:"value,omitempty"`
}

type jobActorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type jobIDParams struct {
	ID uint64 `json:"id"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

type tokenApproveParams struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type addressParams struct {
	Address string `json:"address"`
}

type jobCreateResult struct {
	JobID uint64 `json:"jobId"`
}

type jobJSON struct {
	JobID      uint64 `json:"jobId"`
	Client     string `json:"client"`
	Freelancer string `json:"freelancer"`
	Arbitrator string `json:"arbitrator"`
	Amount     string `json:"amount"`
	Method     string `json:"method"`
	State      string `json:"state"`
	CreatedAt  int64  `json:"createdAt"`
}

type balanceResult struct {
	Address       string `json:"address"`
	BalanceNative string `json:"balanceNative"`
	BalanceToken  string `json:"balanceToken"`
	Nonce         uint64 `json:"nonce"`
}

func parseLedgerAddress(value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func decodeSingleParam(req *RPCRequest, target interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], target)
}

// writeEngineError maps the engine's failure taxonomy to JSON-RPC error codes
// and HTTP statuses.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, escrow.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeEscrowNotFound, "not_found", err.Error())
	case errors.Is(err, escrow.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeEscrowForbidden, "unauthorized", err.Error())
	case errors.Is(err, escrow.ErrInvalidState):
		writeError(w, http.StatusConflict, id, codeEscrowConflict, "invalid_state", err.Error())
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidParties),
		errors.Is(err, escrow.ErrInsufficientFunding):
		writeError(w, http.StatusBadRequest, id, codeEscrowInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, escrow.ErrTransferFailed):
		writeError(w, http.StatusInternalServerError, id, codeEscrowInternal, "transfer_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeEscrowInternal, "internal_error", err.Error())
	}
}

func jobToJSON(job *escrow.Job) *jobJSON {
	if job == nil {
		return nil
	}
	return &jobJSON{
		JobID:      job.ID,
		Client:     crypto.NewAddress(crypto.EscPrefix, job.Client[:]).String(),
		Freelancer: crypto.NewAddress(crypto.EscPrefix, job.Freelancer[:]).String(),
		Arbitrator: crypto.NewAddress(crypto.EscPrefix, job.Arbitrator[:]).String(),
		Amount:     job.Amount.String(),
		Method:     job.Method.String(),
		State:      job.State.String(),
		CreatedAt:  job.CreatedAt,
	}
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params jobCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	client, err := parseLedgerAddress(params.Client)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	freelancer, err := parseLedgerAddress(params.Freelancer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	arbitrator, err := parseLedgerAddress(params.Arbitrator)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	method, err := parseMethodVariant(params.Method)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	attached, err := parseNonNegativeBigInt(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	jobID, err := s.engine.CreateJob(client, freelancer, arbitrator, amount, method, attached)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, jobCreateResult{JobID: jobID})
}

func parseMethodVariant(value string) (escrow.PaymentMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "NATIVE":
		return escrow.PayNative, nil
	case "TOKEN":
		return escrow.PayToken, nil
	default:
		return 0, errors.New("method must be NATIVE or TOKEN")
	}
}

func (s *Server) handleLockJob(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTransition(w, r, req, s.engine.LockJob)
}

func (s *Server) handleReleaseJob(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTransition(w, r, req, s.engine.ReleaseJob)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleTransition(w, r, req, s.engine.CancelJob)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, req *RPCRequest, op func(uint64, [20]byte) error) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params jobActorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if params.ID == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "id is required")
		return
	}
	caller, err := parseLedgerAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := op(params.ID, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, true)
}

func (s *Server) handleGetJob(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params jobIDParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	job, err := s.engine.GetJob(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, jobToJSON(job))
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := listEventsParams{}
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "at most one parameter object expected")
		return
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	limit := 0
	if params.Limit != nil {
		if *params.Limit < 0 {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "limit must be non-negative")
			return
		}
		limit = *params.Limit
	}
	writeResult(w, req.ID, s.eventsLog.List(strings.TrimSpace(params.Prefix), limit))
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseLedgerAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := s.state.GetAccount(addr[:])
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeEscrowInternal, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, balanceResult{
		Address:       params.Address,
		BalanceNative: account.BalanceNative.String(),
		BalanceToken:  account.BalanceToken.String(),
		Nonce:         account.Nonce,
	})
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params tokenApproveParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseLedgerAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseNonNegativeBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.state.TokenSetAllowance(owner, amount); err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeEscrowInternal, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, true)
}
