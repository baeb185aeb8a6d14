package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/walletvisor/pkg/client"
)

func fakeDaemon(t *testing.T, seen *[]string) string {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		*seen = append(*seen, r.Method+" "+r.URL.Path)
		switch {
		case r.URL.Path == "/api/health":
			_ = json.NewEncoder(w).Encode(client.Health{OK: true, Checks: map[string]string{"runtime": "ok"}})
		case r.URL.Path == "/api/cleanup":
			_ = json.NewEncoder(w).Encode(client.CleanupReport{Scanned: 2})
		case strings.HasSuffix(r.URL.Path, "/create"):
			var req client.CreateRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(client.CreateResponse{Container: "seed=" + req.Seed})
		case strings.HasSuffix(r.URL.Path, "/status"):
			_ = json.NewEncoder(w).Encode(client.WalletStatus{Username: "alice", Created: true})
		case strings.HasSuffix(r.URL.Path, "/connect"):
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(client.ErrorResponse{Error: "wallet not created: alice"})
		default:
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv.URL + "/api"
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHelp(t *testing.T) {
	out, err := run(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "walletvisor")
	for _, sub := range []string{"serve", "status", "create", "connect", "stop", "delete", "cleanup"} {
		assert.Contains(t, out, sub)
	}
}

func TestUserCommands(t *testing.T) {
	var seen []string
	api := fakeDaemon(t, &seen)

	out, err := run(t, "status", "alice", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, out, `"created": true`)

	out, err = run(t, "create", "alice", "--seed", "abbey about", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, out, "seed=abbey about")

	out, err = run(t, "stop", "alice", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, out, "stopped alice")

	out, err = run(t, "delete", "alice", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted alice")

	_, err = run(t, "connect", "alice", "--api-url", api)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not created")

	out, err = run(t, "cleanup", "--api-url", api)
	require.NoError(t, err)
	assert.Contains(t, out, `"scanned": 2`)

	_, err = run(t, "health", "--api-url", api)
	require.NoError(t, err)

	assert.Contains(t, seen, "DELETE /api/wallets/alice")
	assert.Contains(t, seen, "POST /api/wallets/alice/stop")
}

func TestUserCommandRequiresUsername(t *testing.T) {
	_, err := run(t, "status")
	assert.Error(t, err)
}

func TestUnreachableDaemon(t *testing.T) {
	_, err := run(t, "status", "alice", "--api-url", "http://127.0.0.1:1/api", "--api-timeout", "1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not reachable")
}

func TestServeRejectsBadConfig(t *testing.T) {
	_, err := run(t, "serve", "/nonexistent/walletvisor.toml", "--env-file", "/nonexistent/.env")
	assert.Error(t, err)
}

func TestHashPassword(t *testing.T) {
	out, err := run(t, "hash-password", "s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "$2a$"), out)
}

func TestLoginRequiresUser(t *testing.T) {
	_, err := run(t, "login", "--api-user", "")
	assert.ErrorContains(t, err, "--api-user")
}
