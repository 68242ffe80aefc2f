package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/learnwire/internal/auth"
	"github.com/vovakirdan/learnwire/internal/config"
	"github.com/vovakirdan/learnwire/internal/core"
	applog "github.com/vovakirdan/learnwire/internal/log"
	"github.com/vovakirdan/learnwire/internal/proto"
	"github.com/vovakirdan/learnwire/internal/store"
	"github.com/vovakirdan/learnwire/internal/store/sqlite"
)

const testSecret = "test-secret-change-me"

type testEnv struct {
	ts      *httptest.Server
	hub     *core.Hub
	stopHub context.CancelFunc
	store   *sqlite.SQLiteStore
	auth    *auth.Service
	jwt     *auth.JWTConfig
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWTSecret = testSecret
	cfg.AdmissionTimeout = 2 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}

	disabledLogger := applog.Nop()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}

	hub := core.NewHub(disabledLogger, core.WithStateOptions(core.WithMaxContentLength(cfg.MaxContentLength)))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	authService := auth.NewService(st, jwtConfig)
	server := NewServer(cfg, Deps{
		Hub:      hub,
		Auth:     authService,
		Verifier: auth.NewVerifier(jwtConfig, st),
		Users:    st,
	}, disabledLogger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, stopHub: cancel, store: st, auth: authService, jwt: jwtConfig}
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// createUser stores a user and returns a valid token for it.
func (e *testEnv) createUser(t *testing.T, id, name string) string {
	t.Helper()

	err := e.store.CreateUser(context.Background(), &store.User{
		ID:           id,
		Name:         name,
		Email:        id + "@example.com",
		PasswordHash: "unused",
	})
	if err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
	token, err := auth.GenerateToken(e.jwt, id, name, "")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// dialRaw opens a socket without waiting for the handshake result.
func dialRaw(t *testing.T, ctx context.Context, url string, header stdhttp.Header) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

// dial connects with a bearer token and waits for the connected ack.
func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	conn := dialRaw(t, ctx, e.wsURL(), stdhttp.Header{"Authorization": {"Bearer " + token}})
	mustEvent(t, ctx, conn, proto.EventConnected)
	return conn
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()

	if err := wsjson.Write(ctx, conn, map[string]any{"event": event, "data": data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readUntil reads frames until one named event arrives and returns it along
// with the names of the frames skipped on the way.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) (frame, []string) {
	t.Helper()

	var skipped []string
	for {
		var f frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			t.Fatalf("waiting for %s: %v (skipped %v)", event, err, skipped)
		}
		if f.Event == event {
			return f, skipped
		}
		skipped = append(skipped, f.Event)
	}
}

func mustEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) frame {
	t.Helper()

	f, _ := readUntil(t, ctx, conn, event)
	return f
}

func decode[T any](t *testing.T, f frame) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(f.Data, &v); err != nil {
		t.Fatalf("decode %s payload %s: %v", f.Event, f.Data, err)
	}
	return v
}

// roundTrip sends an event the hub always rejects and waits for the error,
// which proves every earlier event of this connection has been applied.
func roundTrip(t *testing.T, ctx context.Context, conn *websocket.Conn) []string {
	t.Helper()

	send(t, ctx, conn, proto.EventSendMessage, map[string]string{"roomId": "sync", "content": ""})
	for {
		f, skipped := readUntil(t, ctx, conn, proto.EventError)
		if decode[proto.ErrorData](t, f).Code == core.ErrCodeEmptyContent {
			return skipped
		}
	}
}

func expectClose(t *testing.T, ctx context.Context, conn *websocket.Conn, status websocket.StatusCode) {
	t.Helper()

	for {
		_, _, err := conn.Read(ctx)
		if err == nil {
			continue
		}
		if got := websocket.CloseStatus(err); got != status {
			t.Fatalf("expected close status %v, got %v (%v)", status, got, err)
		}
		return
	}
}

func doJSON(t *testing.T, env *testEnv, method, path, token string, body any) (*stdhttp.Response, []byte) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := stdhttp.NewRequest(method, env.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}
