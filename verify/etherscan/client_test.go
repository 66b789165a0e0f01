package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ans-sigalas/simplestorage/pkg/logger"
)

const (
	testAPIKey   = "TESTKEY"
	testGUID     = "ezq878u486pzijkvvmerl6a9mzwhv6sefgvqi5tkwceejc7tvn"
	testCompiler = "v0.8.8+commit.dddeac2f"
)

var testAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

// fakeExplorer serves canned responses per action and records how often each action was called.
type fakeExplorer struct {
	*httptest.Server
	responses map[string][]APIResponse
	calls     map[string]*atomic.Int64
}

func newFakeExplorer(t *testing.T, responses map[string][]APIResponse) *fakeExplorer {
	t.Helper()

	f := &fakeExplorer{
		responses: responses,
		calls: map[string]*atomic.Int64{
			"getabi":            {},
			"verifysourcecode":  {},
			"checkverifystatus": {},
		},
	}

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}
		if r.Form.Get("apikey") != testAPIKey {
			http.Error(w, "bad api key", http.StatusForbidden)

			return
		}

		action := r.Form.Get("action")
		counter, ok := f.calls[action]
		if !ok {
			http.Error(w, "unknown action", http.StatusBadRequest)

			return
		}
		n := int(counter.Add(1)) - 1

		if action == "verifysourcecode" && (r.Method != http.MethodPost || r.Form.Get("sourceCode") == "") {
			http.Error(w, "source code must be posted", http.StatusBadRequest)

			return
		}

		list := f.responses[action]
		if len(list) == 0 {
			http.Error(w, "no response configured", http.StatusInternalServerError)

			return
		}
		resp := list[min(n, len(list)-1)]

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(f.Close)

	return f
}

func result(s string) json.RawMessage {
	b, _ := json.Marshal(s)

	return b
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()

	c, err := NewClient(logger.Test(t), baseURL, testAPIKey, WithPolling(5, time.Millisecond), WithChainID(5))
	require.NoError(t, err)

	return c
}

func testRequest() VerifyRequest {
	return VerifyRequest{
		Address:         testAddress,
		ContractName:    "SimpleStorage",
		SourceCode:      "pragma solidity 0.8.8; contract SimpleStorage {}",
		CompilerVersion: testCompiler,
	}
}

var (
	notVerified = APIResponse{Status: "0", Message: "NOTOK", Result: result("Contract source code not verified")}
	verified    = APIResponse{Status: "1", Message: "OK", Result: result("[]")}
	submitted   = APIResponse{Status: "1", Message: "OK", Result: result(testGUID)}
	pending     = APIResponse{Status: "0", Message: "NOTOK", Result: result("Pending in queue")}
	passed      = APIResponse{Status: "1", Message: "OK", Result: result("Pass - Verified")}
)

func Test_NewClient(t *testing.T) {
	t.Parallel()

	_, err := NewClient(logger.Nop(), "https://api-goerli.etherscan.io/api", "")
	require.ErrorContains(t, err, "etherscan API key is required")

	_, err = NewClient(logger.Nop(), "not a url", testAPIKey)
	require.ErrorContains(t, err, "invalid etherscan URL")

	c, err := NewClient(logger.Nop(), "https://api-goerli.etherscan.io/api/", testAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "https://api-goerli.etherscan.io/api", c.baseURL)
	assert.Equal(t, uint(DefaultPollAttempts), c.pollAttempts)
}

func Test_WithPolling_ZeroAttempts(t *testing.T) {
	t.Parallel()

	srv := newFakeExplorer(t, map[string][]APIResponse{"checkverifystatus": {pending}})
	c, err := NewClient(logger.Test(t), srv.URL, testAPIKey, WithPolling(0, time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, uint(1), c.pollAttempts)

	// A zero attempt count would make retry-go poll until the context ends.
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	err = c.CheckStatus(ctx, testGUID)
	require.ErrorContains(t, err, "verification pending")
	require.NoError(t, ctx.Err())
	assert.Equal(t, int64(1), srv.calls["checkverifystatus"].Load())
}

func Test_Client_Verify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		give        map[string][]APIResponse
		giveRequest func() VerifyRequest
		wantStatus  Status
		wantCalls   map[string]int64
		wantErr     string
	}{
		{
			name:       "already verified before submitting",
			give:       map[string][]APIResponse{"getabi": {verified}},
			wantStatus: StatusAlreadyVerified,
			wantCalls:  map[string]int64{"getabi": 1, "verifysourcecode": 0},
		},
		{
			name: "submitted and verified after pending",
			give: map[string][]APIResponse{
				"getabi":            {notVerified},
				"verifysourcecode":  {submitted},
				"checkverifystatus": {pending, pending, passed},
			},
			wantStatus: StatusVerified,
			wantCalls:  map[string]int64{"getabi": 1, "verifysourcecode": 1, "checkverifystatus": 3},
		},
		{
			name: "submission reports already verified",
			give: map[string][]APIResponse{
				"getabi": {notVerified},
				"verifysourcecode": {{
					Status: "0", Message: "NOTOK", Result: result("Contract source code already verified"),
				}},
			},
			wantStatus: StatusAlreadyVerified,
			wantCalls:  map[string]int64{"verifysourcecode": 1, "checkverifystatus": 0},
		},
		{
			name: "status reports already verified",
			give: map[string][]APIResponse{
				"getabi":            {notVerified},
				"verifysourcecode":  {submitted},
				"checkverifystatus": {{Status: "1", Message: "OK", Result: result("Already Verified")}},
			},
			wantStatus: StatusAlreadyVerified,
		},
		{
			name: "verification failed",
			give: map[string][]APIResponse{
				"getabi":            {notVerified},
				"verifysourcecode":  {submitted},
				"checkverifystatus": {{Status: "0", Message: "NOTOK", Result: result("Fail - Unable to verify")}},
			},
			wantErr: "Fail - Unable to verify",
		},
		{
			name: "still pending after polling",
			give: map[string][]APIResponse{
				"getabi":            {notVerified},
				"verifysourcecode":  {submitted},
				"checkverifystatus": {pending},
			},
			wantCalls: map[string]int64{"checkverifystatus": 5},
			wantErr:   "verification pending",
		},
		{
			name: "submission rejected",
			give: map[string][]APIResponse{
				"getabi":           {notVerified},
				"verifysourcecode": {{Status: "0", Message: "NOTOK", Result: result("Invalid constructor arguments")}},
			},
			wantErr: "Invalid constructor arguments",
		},
		{
			name:    "explorer unavailable",
			give:    map[string][]APIResponse{},
			wantErr: "etherscan API returned status 500",
		},
		{
			name: "invalid compiler version",
			give: map[string][]APIResponse{"getabi": {notVerified}},
			giveRequest: func() VerifyRequest {
				r := testRequest()
				r.CompilerVersion = "0.8.8"

				return r
			},
			wantCalls: map[string]int64{"verifysourcecode": 0},
			wantErr:   "invalid verify request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newFakeExplorer(t, tt.give)
			c := newTestClient(t, srv.URL)

			req := testRequest()
			if tt.giveRequest != nil {
				req = tt.giveRequest()
			}

			status, err := c.Verify(t.Context(), req)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantStatus, status)

			for action, want := range tt.wantCalls {
				assert.Equal(t, want, srv.calls[action].Load(), action)
			}
		})
	}
}

func Test_Client_LogsRedactAPIKey(t *testing.T) {
	t.Parallel()

	srv := newFakeExplorer(t, map[string][]APIResponse{"getabi": {verified}})

	lggr, logs := logger.TestObserved(t, zapcore.DebugLevel)
	c, err := NewClient(lggr, srv.URL, testAPIKey)
	require.NoError(t, err)

	ok, err := c.IsVerified(t.Context(), testAddress)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Positive(t, logs.Len())
	for _, entry := range logs.All() {
		assert.NotContains(t, entry.Message, testAPIKey)
	}
	assert.Positive(t, logs.FilterMessageSnippet("apikey=%3CREDACTED%3E").Len())
}

func Test_IsAlreadyVerified(t *testing.T) {
	t.Parallel()

	assert.False(t, IsAlreadyVerified(nil))
	assert.True(t, IsAlreadyVerified(ErrAlreadyVerified))
	assert.True(t, IsAlreadyVerified(errors.New("Contract source code ALREADY VERIFIED")))
	assert.False(t, IsAlreadyVerified(ErrVerificationFailed))
}

func Test_redactParams(t *testing.T) {
	t.Parallel()

	got := redactParams(map[string][]string{
		"apikey":     {testAPIKey},
		"sourceCode": {"contract X {}"},
		"action":     {"verifysourcecode"},
	})

	assert.NotContains(t, got, testAPIKey)
	assert.Contains(t, got, "apikey=%3CREDACTED%3E")
	assert.Contains(t, got, "sourceCode=%3C13+bytes%3E")
	assert.Contains(t, got, "action=verifysourcecode")
}
