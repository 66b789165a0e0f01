package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// newNode answers eth_chainId and eth_blockNumber like a node at block 42.
func newNode(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		result := map[string]string{"eth_chainId": "0x539", "eth_blockNumber": "0x2a"}[req.Method]
		if result == "" {
			http.Error(w, "unsupported method", http.StatusBadRequest)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)

	return srv
}

func Test_run(t *testing.T) {
	t.Parallel()

	node := newNode(t)

	tests := []struct {
		name     string
		giveArgs func(t *testing.T) []string
		wantCode int
		wantOut  string
	}{
		{
			name: "block number",
			giveArgs: func(t *testing.T) []string {
				t.Helper()

				return []string{"block-number", "--env-file", "", "--config", writeConfig(t, "rpc:\n  url: "+node.URL+"\n")}
			},
			wantCode: 0,
			wantOut:  "Current block number: 42\n",
		},
		{
			name: "help",
			giveArgs: func(t *testing.T) []string {
				t.Helper()

				return []string{"--help"}
			},
			wantCode: 0,
			wantOut:  "block-number",
		},
		{
			name: "missing rpc url",
			giveArgs: func(t *testing.T) []string {
				t.Helper()

				return []string{"block-number", "--env-file", "", "--config", writeConfig(t, "deploy:\n  confirmations: 1\n")}
			},
			wantCode: 1,
		},
		{
			name: "unknown command",
			giveArgs: func(t *testing.T) []string {
				t.Helper()

				return []string{"no-such-command"}
			},
			wantCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var out bytes.Buffer
			code := run(tt.giveArgs(t), &out)

			assert.Equal(t, tt.wantCode, code)
			if tt.wantOut != "" {
				assert.Contains(t, out.String(), tt.wantOut)
			}
		})
	}
}
