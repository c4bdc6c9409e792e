package http

import (
	"bytes"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/chatline/chatline-server/internal/auth"
	"github.com/chatline/chatline-server/internal/config"
	"github.com/chatline/chatline-server/internal/core"
	"github.com/chatline/chatline-server/internal/store/sqlite"
)

// testEnv wires a full server against an in-memory store.
type testEnv struct {
	srv      *httptest.Server
	st       *sqlite.SQLiteStore
	registry *core.Registry
	clients  *ClientTable
	engine   *core.Engine
	auth     *auth.Service
	cfg      *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	logger := zerolog.Nop()

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	registry := core.NewRegistry()
	clients := NewClientTable(&logger)
	engine := core.NewEngine(st, registry, clients, &logger)

	server := NewServer(engine, registry, clients, authService, st, &cfg, &logger)
	srv := httptest.NewServer(server.Handler)
	t.Cleanup(srv.Close)

	return &testEnv{
		srv:      srv,
		st:       st,
		registry: registry,
		clients:  clients,
		engine:   engine,
		auth:     authService,
		cfg:      &cfg,
	}
}

// doJSON issues a request with an optional bearer token and JSON body.
func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := stdhttp.NewRequest(method, e.srv.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// registerUser creates a user over the API and returns its token.
func (e *testEnv) registerUser(t *testing.T, username string) string {
	t.Helper()

	resp := e.doJSON(t, stdhttp.MethodPost, "/api/register", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("register %q: status %d", username, resp.StatusCode)
	}

	var out AuthResponse
	decodeJSON(t, resp, &out)
	if out.Token == "" {
		t.Fatalf("register %q: empty token", username)
	}
	return out.Token
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func decodeJSON(t *testing.T, resp *stdhttp.Response, v any) {
	t.Helper()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}
