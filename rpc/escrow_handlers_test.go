package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"escrowd/core/events"
	"escrowd/core/state"
	"escrowd/core/types"
	"escrowd/crypto"
	"escrowd/native/escrow"
	"escrowd/storage"
)

type testEnv struct {
	server  *httptest.Server
	manager *state.Manager
	token   string
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	t.Setenv(authTokenEnv, token)

	manager := state.NewManager(storage.NewMemDB())
	eventLog := events.NewLog()
	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(eventLog)

	server := NewServer(engine, manager, eventLog)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, manager: manager, token: token}
}

func testAddr(t *testing.T, fill byte) string {
	t.Helper()
	raw := bytes.Repeat([]byte{fill}, 20)
	return crypto.NewAddress(crypto.EscPrefix, raw).String()
}

func (e *testEnv) fundNative(t *testing.T, addr string, amount int64) {
	t.Helper()
	decoded, err := crypto.DecodeAddress(addr)
	require.NoError(t, err)
	account := (&types.Account{}).EnsureBalances()
	account.BalanceNative = big.NewInt(amount)
	require.NoError(t, e.manager.PutAccount(decoded.Bytes(), account))
}

func (e *testEnv) fundToken(t *testing.T, addr string, amount int64) {
	t.Helper()
	decoded, err := crypto.DecodeAddress(addr)
	require.NoError(t, err)
	account := (&types.Account{}).EnsureBalances()
	account.BalanceToken = big.NewInt(amount)
	require.NoError(t, e.manager.PutAccount(decoded.Bytes(), account))
}

type rpcResult struct {
	Status int
	Result json.RawMessage
	Error  *RPCError
}

func (e *testEnv) call(t *testing.T, method string, params interface{}, withAuth bool) rpcResult {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	}
	if params == nil {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if withAuth && e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return rpcResult{Status: resp.StatusCode, Result: decoded.Result, Error: decoded.Error}
}

func createParams(clientAddr, freelancerAddr, arbitratorAddr, amount, method, value string) map[string]string {
	params := map[string]string{
		"client":     clientAddr,
		"freelancer": freelancerAddr,
		"arbitrator": arbitratorAddr,
		"amount":     amount,
		"method":     method,
	}
	if value != "" {
		params["value"] = value
	}
	return params
}

func TestCreateLockReleaseOverRPC(t *testing.T) {
	env := newTestEnv(t, "")
	clientAddr := testAddr(t, 0x01)
	freelancerAddr := testAddr(t, 0x02)
	arbitratorAddr := testAddr(t, 0x03)
	env.fundNative(t, clientAddr, 5)

	res := env.call(t, "escrow_createJob", createParams(clientAddr, freelancerAddr, arbitratorAddr, "5", "NATIVE", "5"), false)
	require.Nil(t, res.Error)
	var created struct {
		JobID uint64 `json:"jobId"`
	}
	require.NoError(t, json.Unmarshal(res.Result, &created))
	require.Equal(t, uint64(1), created.JobID)

	res = env.call(t, "escrow_lockJob", map[string]interface{}{"id": created.JobID, "caller": clientAddr}, false)
	require.Nil(t, res.Error)

	res = env.call(t, "escrow_releaseJob", map[string]interface{}{"id": created.JobID, "caller": arbitratorAddr}, false)
	require.Nil(t, res.Error)

	res = env.call(t, "escrow_getJob", map[string]interface{}{"id": created.JobID}, false)
	require.Nil(t, res.Error)
	var job jobJSON
	require.NoError(t, json.Unmarshal(res.Result, &job))
	require.Equal(t, "RELEASED", job.State)
	require.Equal(t, freelancerAddr, job.Freelancer)

	res = env.call(t, "escrow_getBalance", map[string]string{"address": freelancerAddr}, false)
	require.Nil(t, res.Error)
	var balance balanceResult
	require.NoError(t, json.Unmarshal(res.Result, &balance))
	require.Equal(t, "5", balance.BalanceNative)

	res = env.call(t, "escrow_listEvents", nil, false)
	require.Nil(t, res.Error)
	var entries []events.Entry
	require.NoError(t, json.Unmarshal(res.Result, &entries))
	require.Len(t, entries, 3)
	require.Equal(t, escrow.EventTypeJobCreated, entries[0].Event.Type)
	require.Equal(t, escrow.EventTypeJobLocked, entries[1].Event.Type)
	require.Equal(t, escrow.EventTypeJobRelease, entries[2].Event.Type)
}

func TestTokenApproveAndCancelOverRPC(t *testing.T) {
	env := newTestEnv(t, "")
	clientAddr := testAddr(t, 0x01)
	freelancerAddr := testAddr(t, 0x02)
	arbitratorAddr := testAddr(t, 0x03)
	env.fundToken(t, clientAddr, 10)

	res := env.call(t, "token_approve", map[string]string{"owner": clientAddr, "amount": "10"}, false)
	require.Nil(t, res.Error)

	res = env.call(t, "escrow_createJob", createParams(clientAddr, freelancerAddr, arbitratorAddr, "10", "TOKEN", ""), false)
	require.Nil(t, res.Error)

	res = env.call(t, "escrow_cancelJob", map[string]interface{}{"id": 1, "caller": clientAddr}, false)
	require.Nil(t, res.Error)

	res = env.call(t, "escrow_getBalance", map[string]string{"address": clientAddr}, false)
	require.Nil(t, res.Error)
	var balance balanceResult
	require.NoError(t, json.Unmarshal(res.Result, &balance))
	require.Equal(t, "10", balance.BalanceToken)
}

func TestEngineErrorMapping(t *testing.T) {
	env := newTestEnv(t, "")
	clientAddr := testAddr(t, 0x01)
	freelancerAddr := testAddr(t, 0x02)
	arbitratorAddr := testAddr(t, 0x03)
	strangerAddr := testAddr(t, 0x04)
	env.fundNative(t, clientAddr, 5)

	res := env.call(t, "escrow_getJob", map[string]interface{}{"id": 42}, false)
	require.NotNil(t, res.Error)
	require.Equal(t, codeEscrowNotFound, res.Error.Code)
	require.Equal(t, http.StatusNotFound, res.Status)

	res = env.call(t, "escrow_createJob", createParams(clientAddr, freelancerAddr, arbitratorAddr, "5", "NATIVE", "4"), false)
	require.NotNil(t, res.Error)
	require.Equal(t, codeEscrowInvalidParams, res.Error.Code)

	res = env.call(t, "escrow_createJob", createParams(clientAddr, freelancerAddr, arbitratorAddr, "5", "NATIVE", "5"), false)
	require.Nil(t, res.Error)

	res = env.call(t, "escrow_releaseJob", map[string]interface{}{"id": 1, "caller": strangerAddr}, false)
	require.NotNil(t, res.Error)
	require.Equal(t, codeEscrowForbidden, res.Error.Code)
	require.Equal(t, http.StatusForbidden, res.Status)

	res = env.call(t, "escrow_releaseJob", map[string]interface{}{"id": 1, "caller": clientAddr}, false)
	require.Nil(t, res.Error)

	res = env.call(t, "escrow_cancelJob", map[string]interface{}{"id": 1, "caller": clientAddr}, false)
	require.NotNil(t, res.Error)
	require.Equal(t, codeEscrowConflict, res.Error.Code)
	require.Equal(t, http.StatusConflict, res.Status)
}

func TestMutatingMethodsRequireAuth(t *testing.T) {
	env := newTestEnv(t, "secret-token")
	clientAddr := testAddr(t, 0x01)
	freelancerAddr := testAddr(t, 0x02)
	arbitratorAddr := testAddr(t, 0x03)
	env.fundNative(t, clientAddr, 5)

	params := createParams(clientAddr, freelancerAddr, arbitratorAddr, "5", "NATIVE", "5")
	res := env.call(t, "escrow_createJob", params, false)
	require.NotNil(t, res.Error)
	require.Equal(t, codeUnauthorized, res.Error.Code)
	require.Equal(t, http.StatusUnauthorized, res.Status)

	res = env.call(t, "escrow_createJob", params, true)
	require.Nil(t, res.Error)

	// Reads stay open.
	res = env.call(t, "escrow_getJob", map[string]interface{}{"id": 1}, false)
	require.Nil(t, res.Error)
}

func TestUnknownMethod(t *testing.T) {
	env := newTestEnv(t, "")
	res := env.call(t, "escrow_selfDestruct", nil, false)
	require.NotNil(t, res.Error)
	require.Equal(t, codeMethodNotFound, res.Error.Code)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	env := newTestEnv(t, "")

	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestInvalidParamsShape(t *testing.T) {
	env := newTestEnv(t, "")
	res := env.call(t, "escrow_createJob", map[string]string{"amount": "x"}, false)
	require.NotNil(t, res.Error)
	require.Equal(t, codeEscrowInvalidParams, res.Error.Code)
	require.Equal(t, http.StatusBadRequest, res.Status)
}
