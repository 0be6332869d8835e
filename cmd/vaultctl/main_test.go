package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	jwttoken "identityvault/internal/jwt_token"
)

const addr = "0x00000000000000000000000000000000000000aa"

type captured struct {
	method string
	path   string
	auth   string
	body   map[string]string
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.RequestURI()
		got.auth = r.Header.Get("Authorization")
		if r.Body != nil {
			raw, _ := io.ReadAll(r.Body)
			if len(raw) > 0 {
				_ = json.Unmarshal(raw, &got.body)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	exiter := cli.OsExiter
	cli.OsExiter = func(int) {}
	t.Cleanup(func() { cli.OsExiter = exiter })

	var out bytes.Buffer
	app := newApp(&out)
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"vaultctl"}, args...))
	return out.String(), err
}

func TestGet(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"address":"`+addr+`","reputation":785}`)

	out, err := run(t, "--server", srv.URL, "get", addr)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/api/identity/"+addr, got.path)
	assert.Contains(t, out, `"reputation": 785`)
}

func TestStoreSendsTokenAndBody(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"message":"Identity stored successfully."}`)

	_, err := run(t, "--server", srv.URL, "--token", "tok", "store", "--hash", "0xabc", "--chain", "lisk")
	require.NoError(t, err)
	assert.Equal(t, "/api/chain/identity", got.path)
	assert.Equal(t, "Bearer tok", got.auth)
	assert.Equal(t, map[string]string{"identityHash": "0xabc", "sourceChain": "lisk"}, got.body)
}

func TestImportAndHistory(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{}`)

	_, err := run(t, "--server", srv.URL, "import", "--chain", "ethereum", "--address", addr, "--type", "poap")
	require.NoError(t, err)
	assert.Equal(t, "poap", got.body["identityType"])

	_, err = run(t, "--server", srv.URL, "history", "--limit", "5", addr)
	require.NoError(t, err)
	assert.Equal(t, "/api/chain/operations/"+addr+"/history?limit=5", got.path)
}

func TestAPIErrorIsReported(t *testing.T) {
	srv, _ := newServer(t, http.StatusNotFound, `{"error":"not_found","error_description":"Identity not found"}`)

	_, err := run(t, "--server", srv.URL, "get", addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_found (404): Identity not found")
}

func TestGetRequiresAddress(t *testing.T) {
	_, err := run(t, "get")
	require.Error(t, err)
}

func TestToken(t *testing.T) {
	out, err := run(t, "token", "--signing-key", "secret", "--subject", "ops")
	require.NoError(t, err)

	claims, err := jwttoken.NewJWTService("secret", jwttoken.TokenIssuer, jwttoken.TokenAudience).
		ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.Subject)
}
