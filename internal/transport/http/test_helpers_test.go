package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/talkwire/talkwire-server/internal/auth"
	"github.com/talkwire/talkwire-server/internal/config"
	"github.com/talkwire/talkwire-server/internal/core"
	"github.com/talkwire/talkwire-server/internal/log"
	"github.com/talkwire/talkwire-server/internal/store"
	"github.com/talkwire/talkwire-server/internal/store/sqlite"
)

type testEnv struct {
	ts   *httptest.Server
	st   store.Store
	auth *auth.Service
}

func startTestServer(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	})

	logger := log.Nop()
	hub := core.NewHub(st, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, st, authService, config.Config{
		Addr:              ":0",
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, st: st, auth: authService}
}

// authedRequest builds a JSON request carrying a bearer token.
func authedRequest(t *testing.T, method, url string, body []byte, token string) *stdhttp.Request {
	t.Helper()

	req, err := stdhttp.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// registerUser creates an account over REST and returns its token and ID.
func registerUser(t *testing.T, env *testEnv, username string) (string, int64) {
	t.Helper()

	body, _ := json.Marshal(RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret123",
	})
	resp, err := env.ts.Client().Post(env.ts.URL+"/api/register", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("register %s: unexpected status %d", username, resp.StatusCode)
	}

	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	claims, err := env.auth.ValidateToken(out.Token)
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	return out.Token, claims.UserID
}

// createConversation creates a conversation over REST and returns its ID.
func createConversation(t *testing.T, env *testEnv, token, convType string, peers ...int64) int64 {
	t.Helper()

	body, _ := json.Marshal(CreateConversationRequest{
		Type:           convType,
		ParticipantIDs: peers,
	})
	resp, err := env.ts.Client().Do(authedRequest(t, "POST", env.ts.URL+"/api/conversations", body, token))
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != stdhttp.StatusCreated {
		t.Fatalf("create conversation: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Conversation store.Conversation `json:"conversation"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode conversation response: %v", err)
	}
	if out.Conversation.ID <= 0 {
		t.Fatalf("conversation was not assigned an id: %+v", out.Conversation)
	}
	return out.Conversation.ID
}
