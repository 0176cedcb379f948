// Package client bridges user intents to the escrow engine's RPC surface. It
// holds no authoritative state: it validates input locally, selects the value
// path for the chosen payment method and surfaces every engine failure to the
// caller. Fund-moving operations are never retried automatically.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"escrowd/native/escrow"
)

// Sentinel failures raised before any network call is made.
var (
	ErrValidation = errors.New("client: invalid input")
	ErrBusy       = errors.New("client: a submission is already in flight")
)

// DisplayDecimals is the scale between a human-entered amount and the
// ledger's smallest unit, matching the original dApp's toWei conversion.
const DisplayDecimals = 18

// RPCFailure carries a JSON-RPC error returned by the engine. It is an
// expected, recoverable condition, not a transport fault.
type RPCFailure struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RPCFailure) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client submits lifecycle operations for a single caller identity. A second
// submission while one is outstanding is rejected locally with ErrBusy so a
// double click can never become a double spend.
type Client struct {
	endpoint  string
	from      string
	authToken string
	httpc     *http.Client
	log       *slog.Logger

	inFlight atomic.Bool
}

// New builds a client for the given RPC endpoint acting as the bech32 address
// from. A nil logger falls back to slog.Default.
func New(endpoint, from, authToken string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		endpoint:  strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		from:      strings.TrimSpace(from),
		authToken: strings.TrimSpace(authToken),
		httpc:     &http.Client{Timeout: 30 * time.Second},
		log:       log,
	}
}

// From returns the caller identity this client submits as.
func (c *Client) From() string { return c.from }

type createResult struct {
	JobID uint64 `json:"jobId"`
}

// SubmitCreate parses the display amount and method label, then funds and
// creates a job. Value is attached only when the method resolves to NATIVE;
// for BLOCKS the engine draws from the caller's pre-approved allowance.
func (c *Client) SubmitCreate(freelancer, arbitrator, amountDisplay, methodLabel string) (uint64, error) {
	if strings.TrimSpace(freelancer) == "" || strings.TrimSpace(arbitrator) == "" ||
		strings.TrimSpace(amountDisplay) == "" || strings.TrimSpace(methodLabel) == "" {
		return 0, fmt.Errorf("%w: all fields are required", ErrValidation)
	}
	method, err := escrow.ParseMethodLabel(methodLabel)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	amount, err := ParseDisplayAmount(amountDisplay)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrValidation, err)
	}
	params := map[string]string{
		"client":     c.from,
		"freelancer": strings.TrimSpace(freelancer),
		"arbitrator": strings.TrimSpace(arbitrator),
		"amount":     amount.String(),
		"method":     method.String(),
	}
	if method == escrow.PayNative {
		params["value"] = amount.String()
	}
	var result createResult
	if err := c.submit("escrow_createJob", params, &result); err != nil {
		return 0, err
	}
	return result.JobID, nil
}

// SubmitLock forwards a lock intent for the given job.
func (c *Client) SubmitLock(jobID uint64) error {
	return c.submitTransition("escrow_lockJob", jobID)
}

// SubmitRelease forwards a release intent for the given job.
func (c *Client) SubmitRelease(jobID uint64) error {
	return c.submitTransition("escrow_releaseJob", jobID)
}

// SubmitCancel forwards a cancel intent for the given job.
func (c *Client) SubmitCancel(jobID uint64) error {
	return c.submitTransition("escrow_cancelJob", jobID)
}

func (c *Client) submitTransition(method string, jobID uint64) error {
	if jobID == 0 {
		return fmt.Errorf("%w: job id is required", ErrValidation)
	}
	params := map[string]interface{}{"id": jobID, "caller": c.from}
	return c.submit(method, params, nil)
}

// Job mirrors the RPC job representation.
type Job struct {
	JobID      uint64 `json:"jobId"`
	Client     string `json:"client"`
	Freelancer string `json:"freelancer"`
	Arbitrator string `json:"arbitrator"`
	Amount     string `json:"amount"`
	Method     string `json:"method"`
	State      string `json:"state"`
	CreatedAt  int64  `json:"createdAt"`
}

// GetJob fetches the current attributes and state of a job. Reads bypass the
// in-flight guard; only fund-moving submissions are serialized.
func (c *Client) GetJob(jobID uint64) (*Job, error) {
	if jobID == 0 {
		return nil, fmt.Errorf("%w: job id is required", ErrValidation)
	}
	job := new(Job)
	if err := c.call("escrow_getJob", map[string]interface{}{"id": jobID}, job, ""); err != nil {
		return nil, err
	}
	return job, nil
}

// Balance mirrors the RPC balance representation.
type Balance struct {
	Address       string `json:"address"`
	BalanceNative string `json:"balanceNative"`
	BalanceToken  string `json:"balanceToken"`
	Nonce         uint64 `json:"nonce"`
}

// GetBalance fetches the balances held by the given address.
func (c *Client) GetBalance(address string) (*Balance, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("%w: address is required", ErrValidation)
	}
	balance := new(Balance)
	if err := c.call("escrow_getBalance", map[string]string{"address": address}, balance, ""); err != nil {
		return nil, err
	}
	return balance, nil
}

// EventEntry mirrors one entry of the engine's event log.
type EventEntry struct {
	Sequence uint64 `json:"sequence"`
	Event    struct {
		Type       string            `json:"type"`
		Attributes map[string]string `json:"attributes"`
	} `json:"event"`
}

// ListEvents fetches emitted lifecycle events, optionally filtered by type
// prefix and capped at limit entries.
func (c *Client) ListEvents(prefix string, limit int) ([]EventEntry, error) {
	params := map[string]interface{}{}
	if strings.TrimSpace(prefix) != "" {
		params["prefix"] = strings.TrimSpace(prefix)
	}
	if limit > 0 {
		params["limit"] = limit
	}
	var entries []EventEntry
	if err := c.call("escrow_listEvents", params, &entries, ""); err != nil {
		return nil, err
	}
	return entries, nil
}

// ApproveToken pre-authorizes the engine to draw amountDisplay BLOCKS from
// the caller when funding TOKEN jobs.
func (c *Client) ApproveToken(amountDisplay string) error {
	amount, err := ParseDisplayAmount(amountDisplay)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	params := map[string]string{"owner": c.from, "amount": amount.String()}
	return c.submit("token_approve", params, nil)
}

// submit wraps call with the in-flight guard required for fund-affecting
// operations.
func (c *Client) submit(method string, params interface{}, result interface{}) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.inFlight.Store(false)
	correlation := uuid.NewString()
	err := c.call(method, params, result, correlation)
	if err != nil {
		c.log.Warn("submission failed",
			slog.String("method", method),
			slog.String("correlationId", correlation),
			slog.Any("error", err))
		return err
	}
	c.log.Info("submission confirmed",
		slog.String("method", method),
		slog.String("correlationId", correlation))
	return nil
}

func (c *Client) call(method string, params interface{}, result interface{}, correlation string) error {
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequest(http.MethodPost, c.endpoint+"/", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if correlation != "" {
		httpReq.Header.Set("X-Correlation-Id", correlation)
	}
	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int             `json:"code"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data,omitempty"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return &RPCFailure{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message, Data: rpcResp.Error.Data}
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode RPC result: %w", err)
		}
	}
	return nil
}
