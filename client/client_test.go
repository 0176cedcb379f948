package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string
	Params map[string]interface{}
}

func newStubServer(t *testing.T, result interface{}, rpcErr map[string]interface{}) (*httptest.Server, *[]recordedCall) {
	t.Helper()
	calls := new([]recordedCall)
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string                   `json:"method"`
			Params []map[string]interface{} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		call := recordedCall{Method: req.Method}
		if len(req.Params) > 0 {
			call.Params = req.Params[0]
		}
		mu.Lock()
		*calls = append(*calls, call)
		mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": 1}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(server.Close)
	return server, calls
}

func TestSubmitCreateValidatesLocally(t *testing.T) {
	server, calls := newStubServer(t, map[string]uint64{"jobId": 1}, nil)
	c := New(server.URL, "esc1caller", "", nil)

	_, err := c.SubmitCreate("", "esc1arb", "5", "ETH")
	require.ErrorIs(t, err, ErrValidation)
	_, err = c.SubmitCreate("esc1free", "esc1arb", "", "ETH")
	require.ErrorIs(t, err, ErrValidation)
	_, err = c.SubmitCreate("esc1free", "esc1arb", "5", "DOGE")
	require.ErrorIs(t, err, ErrValidation)
	_, err = c.SubmitCreate("esc1free", "esc1arb", "x", "ETH")
	require.ErrorIs(t, err, ErrValidation)

	require.Empty(t, *calls, "validation failures must not reach the engine")
}

func TestSubmitCreateNativeAttachesValue(t *testing.T) {
	server, calls := newStubServer(t, map[string]uint64{"jobId": 7}, nil)
	c := New(server.URL, "esc1caller", "", nil)

	jobID, err := c.SubmitCreate("esc1free", "esc1arb", "5", "eth")
	require.NoError(t, err)
	require.Equal(t, uint64(7), jobID)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, "escrow_createJob", call.Method)
	require.Equal(t, "NATIVE", call.Params["method"])
	require.Equal(t, "5000000000000000000", call.Params["amount"])
	require.Equal(t, "5000000000000000000", call.Params["value"])
	require.Equal(t, "esc1caller", call.Params["client"])
}

func TestSubmitCreateTokenOmitsValue(t *testing.T) {
	server, calls := newStubServer(t, map[string]uint64{"jobId": 2}, nil)
	c := New(server.URL, "esc1caller", "", nil)

	_, err := c.SubmitCreate("esc1free", "esc1arb", "10", "BLOCKS")
	require.NoError(t, err)

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	require.Equal(t, "TOKEN", call.Params["method"])
	_, hasValue := call.Params["value"]
	require.False(t, hasValue, "token jobs must not attach value")
}

func TestSubmitSurfacesEngineFailure(t *testing.T) {
	server, _ := newStubServer(t, nil, map[string]interface{}{
		"code":    -32024,
		"message": "invalid_state",
	})
	c := New(server.URL, "esc1caller", "", nil)

	err := c.SubmitRelease(1)
	var failure *RPCFailure
	require.ErrorAs(t, err, &failure)
	require.Equal(t, -32024, failure.Code)
	require.Equal(t, "invalid_state", failure.Message)
}

func TestSubmitRejectsZeroJobID(t *testing.T) {
	server, calls := newStubServer(t, true, nil)
	c := New(server.URL, "esc1caller", "", nil)

	require.ErrorIs(t, c.SubmitLock(0), ErrValidation)
	require.ErrorIs(t, c.SubmitRelease(0), ErrValidation)
	require.ErrorIs(t, c.SubmitCancel(0), ErrValidation)
	require.Empty(t, *calls)
}

func TestInFlightGuardRejectsConcurrentSubmit(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": true})
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	c := New(server.URL, "esc1caller", "", nil)

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.SubmitLock(1) }()

	// Wait for the first submission to be in flight, then try a second one.
	require.Eventually(t, func() bool {
		return c.inFlight.Load()
	}, time.Second, 5*time.Millisecond)
	require.ErrorIs(t, c.SubmitCancel(1), ErrBusy)

	release <- struct{}{}
	require.NoError(t, <-firstDone)
}

func TestGetJobBypassesGuard(t *testing.T) {
	server, _ := newStubServer(t, map[string]interface{}{
		"jobId": 3, "state": "LOCKED", "method": "NATIVE",
	}, nil)
	c := New(server.URL, "", "", nil)

	job, err := c.GetJob(3)
	require.NoError(t, err)
	require.Equal(t, uint64(3), job.JobID)
	require.Equal(t, "LOCKED", job.State)
}
