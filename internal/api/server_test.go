package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/countrelay/internal/audit"
	"github.com/nerrad567/countrelay/internal/auth"
	"github.com/nerrad567/countrelay/internal/device"
	"github.com/nerrad567/countrelay/internal/hub"
	"github.com/nerrad567/countrelay/internal/infrastructure/config"
	"github.com/nerrad567/countrelay/internal/infrastructure/logging"
	"github.com/nerrad567/countrelay/internal/ownership"
	"github.com/nerrad567/countrelay/internal/relay"
	"github.com/nerrad567/countrelay/internal/testutil"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// fastParams keeps password hashing cheap in tests.
var fastParams = auth.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

type fakeResetter struct {
	mu   sync.Mutex
	pins []string
	err  error
}

func (f *fakeResetter) PublishReset(pin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.pins = append(f.pins, pin)
	return nil
}

func (f *fakeResetter) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.pins...)
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

type fixedStats relay.Stats

func (f fixedStats) Stats() relay.Stats { return relay.Stats(f) }

type fixture struct {
	srv      *Server
	handler  http.Handler
	devices  *device.Store
	owners   *ownership.Directory
	audit    *audit.SQLiteRepository
	hub      *hub.Hub
	resetter *fakeResetter
}

type fixtureOption func(*Deps)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	db := testutil.OpenDB(t)
	svc := auth.NewService(auth.NewUserRepository(db), testSecret, time.Hour)
	svc.SetHashParams(fastParams)

	owners := ownership.NewDirectory(db)
	h := hub.New(owners)
	f := &fixture{
		devices:  device.NewStore(db),
		owners:   owners,
		audit:    audit.NewSQLiteRepository(db),
		hub:      h,
		resetter: &fakeResetter{},
	}

	deps := Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
			SendBuffer:     16,
		},
		Logger:   logging.Discard(),
		Auth:     svc,
		Devices:  f.devices,
		Owners:   owners,
		Audit:    f.audit,
		Hub:      h,
		Database: db,
		Resetter: f.resetter,
		Version:  "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	f.srv = srv
	f.handler = srv.Handler()
	return f
}

// do sends a request with an optional bearer token and JSON body.
func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

// signup registers a user and returns its session token.
func (f *fixture) signup(t *testing.T, username string) string {
	t.Helper()

	w := f.do(t, http.MethodPost, "/api/auth/register", "",
		`{"username":"`+username+`","password":"secret-password"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s status = %d, body = %s", username, w.Code, w.Body.String())
	}
	var resp loginResponse
	decode(t, w, &resp)
	if resp.AccessToken == "" {
		t.Fatal("register returned no token")
	}
	return resp.AccessToken
}

func (f *fixture) link(t *testing.T, token, pin string) {
	t.Helper()

	w := f.do(t, http.MethodPost, "/api/devices", token, `{"pin":"`+pin+`"}`)
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("link %s status = %d, body = %s", pin, w.Code, w.Body.String())
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

// ─── Health and Middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		opts       []fixtureOption
		wantCode   int
		wantStatus string
	}{
		{
			name:       "healthy without broker",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name:       "broker down is degraded",
			opts:       []fixtureOption{func(d *Deps) { d.Broker = fakeChecker{err: errors.New("offline")} }},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name:       "database down is unhealthy",
			opts:       []fixtureOption{func(d *Deps) { d.Database = fakeChecker{err: errors.New("locked")} }},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts...)
			w := f.do(t, http.MethodGet, "/health", "", "")

			if w.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", w.Code, tt.wantCode)
			}
			var resp map[string]any
			decode(t, w, &resp)
			if resp["status"] != tt.wantStatus {
				t.Errorf("status = %v, want %s", resp["status"], tt.wantStatus)
			}
			if resp["version"] != "test" {
				t.Errorf("version = %v, want test", resp["version"])
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Stats = fixedStats{Processed: 7, Ignored: 2, Failed: 1}
		d.Broker = fakeChecker{}
	})

	w := f.do(t, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp SystemMetrics
	decode(t, w, &resp)
	if resp.Messages == nil || resp.Messages.Processed != 7 || resp.Messages.Ignored != 2 || resp.Messages.Failed != 1 {
		t.Errorf("messages = %+v, want 7/2/1", resp.Messages)
	}
	if !resp.Broker.Connected {
		t.Error("broker.connected = false, want true")
	}
	if resp.Database == nil {
		t.Error("database pool stats missing")
	}
	if resp.Runtime.Goroutines == 0 {
		t.Error("runtime.goroutines = 0")
	}
}

func TestRequestID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", "", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w = httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/devices", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want http://localhost:3000", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("ACAC = %q, want true", got)
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"empty username", `{"username":"","password":"secret-password"}`, http.StatusBadRequest},
		{"short password", `{"username":"ann","password":"abc"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(t, http.MethodPost, "/api/auth/register", "", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "ann")

	w := f.do(t, http.MethodPost, "/api/auth/register", "", `{"username":"ann","password":"other-password"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestLogin_SetsCookie(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "ann")

	w := f.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"ann","password":"secret-password"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == tokenCookie {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatal("login did not set the token cookie")
	}
	if !cookie.HttpOnly {
		t.Error("token cookie is not HttpOnly")
	}

	// The cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(&http.Cookie{Name: tokenCookie, Value: cookie.Value})
	me := httptest.NewRecorder()
	f.handler.ServeHTTP(me, req)
	if me.Code != http.StatusOK {
		t.Errorf("/api/me with cookie status = %d, want 200", me.Code)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "ann")

	for _, body := range []string{
		`{"username":"ann","password":"wrong-password"}`,
		`{"username":"nobody","password":"secret-password"}`,
	} {
		w := f.do(t, http.MethodPost, "/api/auth/login", "", body)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("login %s status = %d, want 401", body, w.Code)
		}
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	f := newFixture(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/me"},
		{http.MethodGet, "/api/devices"},
		{http.MethodGet, "/api/devices/P1"},
		{http.MethodGet, "/api/logs/P1"},
	}
	for _, p := range paths {
		if w := f.do(t, p.method, p.path, "", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", p.method, p.path, w.Code)
		}
		if w := f.do(t, p.method, p.path, "not-a-jwt", ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s with bad token = %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestMe_ListsPinsAndBadge(t *testing.T) {
	f := newFixture(t)
	token := f.signup(t, "ann")
	f.link(t, token, "P2")
	f.link(t, token, "P1")

	w := f.do(t, http.MethodPut, "/api/me/rfid", token, `{"rfid_uid":"  04:A3:2B  "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set rfid status = %d, body = %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodGet, "/api/me", token, "")
	var me meResponse
	decode(t, w, &me)

	if me.Username != "ann" {
		t.Errorf("username = %q, want ann", me.Username)
	}
	if !me.RFIDRegistered {
		t.Error("rfid_registered = false after PUT /api/me/rfid")
	}
	if strings.Join(me.Pins, ",") != "P1,P2" {
		t.Errorf("pins = %v, want [P1 P2]", me.Pins)
	}
}

// ─── Devices ───────────────────────────────────────────────────────

func TestLinkDevice(t *testing.T) {
	f := newFixture(t)
	ann := f.signup(t, "ann")
	bob := f.signup(t, "bob")

	w := f.do(t, http.MethodPost, "/api/devices", ann, `{"pin":" P1 "}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("first link status = %d, want 201", w.Code)
	}

	// Relinking is idempotent.
	w = f.do(t, http.MethodPost, "/api/devices", ann, `{"pin":"P1"}`)
	if w.Code != http.StatusOK {
		t.Errorf("relink status = %d, want 200", w.Code)
	}

	// Co-ownership is allowed.
	w = f.do(t, http.MethodPost, "/api/devices", bob, `{"pin":"P1"}`)
	if w.Code != http.StatusCreated {
		t.Errorf("second owner link status = %d, want 201", w.Code)
	}

	w = f.do(t, http.MethodPost, "/api/devices", ann, `{"pin":"  "}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank pin status = %d, want 400", w.Code)
	}

	w = f.do(t, http.MethodGet, "/api/devices", ann, "")
	var devices []device.Device
	decode(t, w, &devices)
	if len(devices) != 1 || devices[0].Pin != "P1" || !devices[0].Enabled {
		t.Errorf("devices = %+v, want one enabled P1", devices)
	}
}

func TestGetDevice_OwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	ann := f.signup(t, "ann")
	bob := f.signup(t, "bob")
	f.link(t, ann, "P1")

	if _, err := f.devices.ApplyChange(context.Background(), "P1", 1, time.Now()); err != nil {
		t.Fatalf("ApplyChange() error: %v", err)
	}

	w := f.do(t, http.MethodGet, "/api/devices/P1", ann, "")
	if w.Code != http.StatusOK {
		t.Fatalf("owner get status = %d, want 200", w.Code)
	}
	var d device.Device
	decode(t, w, &d)
	if d.CurrentCount != 1 {
		t.Errorf("current_count = %d, want 1", d.CurrentCount)
	}

	for _, path := range []string{"/api/devices/P1", "/api/logs/P1", "/api/devices/P1/access"} {
		if w := f.do(t, http.MethodGet, path, bob, ""); w.Code != http.StatusForbidden {
			t.Errorf("GET %s by non-owner = %d, want 403", path, w.Code)
		}
	}
}

func TestSetMode(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMode device.Mode
	}{
		{"decrement", `{"mode":"decrement"}`, http.StatusOK, device.ModeDecrement},
		{"case and space folded", `{"mode":"  INCREMENT "}`, http.StatusOK, device.ModeIncrement},
		{"unknown mode", `{"mode":"sideways"}`, http.StatusBadRequest, ""},
		{"invalid json", `nope`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			token := f.signup(t, "ann")
			f.link(t, token, "P1")

			w := f.do(t, http.MethodPut, "/api/devices/P1/mode", token, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantMode == "" {
				return
			}
			got, err := f.devices.GetMode(context.Background(), "P1")
			if err != nil {
				t.Fatalf("GetMode() error: %v", err)
			}
			if got != tt.wantMode {
				t.Errorf("stored mode = %q, want %q", got, tt.wantMode)
			}
		})
	}
}

func TestLogs_Limit(t *testing.T) {
	f := newFixture(t)
	token := f.signup(t, "ann")
	f.link(t, token, "P1")

	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 5; i++ {
		if _, err := f.devices.ApplyChange(context.Background(), "P1", 1, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("ApplyChange() error: %v", err)
		}
	}

	tests := []struct {
		query    string
		wantCode int
		wantLen  int
	}{
		{"", http.StatusOK, 5},
		{"?limit=2", http.StatusOK, 2},
		{"?limit=0", http.StatusOK, 1},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		w := f.do(t, http.MethodGet, "/api/logs/P1"+tt.query, token, "")
		if w.Code != tt.wantCode {
			t.Errorf("logs%s status = %d, want %d", tt.query, w.Code, tt.wantCode)
			continue
		}
		if tt.wantCode != http.StatusOK {
			continue
		}
		var logs []device.LogEntry
		decode(t, w, &logs)
		if len(logs) != tt.wantLen {
			t.Errorf("logs%s returned %d entries, want %d", tt.query, len(logs), tt.wantLen)
		}
		if len(logs) > 0 && logs[0].NewCount != 5 {
			t.Errorf("logs%s newest new_count = %d, want 5", tt.query, logs[0].NewCount)
		}
	}
}

func TestUnlink_LastOwnerPurgesAndResets(t *testing.T) {
	f := newFixture(t)
	ann := f.signup(t, "ann")
	bob := f.signup(t, "bob")
	f.link(t, ann, "P1")
	f.link(t, bob, "P1")

	// Another owner remains: no purge, no reset.
	w := f.do(t, http.MethodDelete, "/api/devices/P1", ann, "")
	if w.Code != http.StatusOK {
		t.Fatalf("first unlink status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["purged"] != false {
		t.Errorf("purged = %v, want false while bob still owns P1", resp["purged"])
	}
	if sent := f.resetter.sent(); len(sent) != 0 {
		t.Errorf("reset sent %v before the last owner left", sent)
	}

	w = f.do(t, http.MethodDelete, "/api/devices/P1", bob, "")
	decode(t, w, &resp)
	if resp["purged"] != true || resp["reset_sent"] != true {
		t.Errorf("last unlink = %v, want purged and reset_sent", resp)
	}
	if sent := f.resetter.sent(); len(sent) != 1 || sent[0] != "P1" {
		t.Errorf("resets = %v, want [P1]", sent)
	}
	if _, err := f.devices.Get(context.Background(), "P1"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("Get(P1) after purge error = %v, want ErrDeviceNotFound", err)
	}
}

func TestUnlink_ResetFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.resetter.err = errors.New("not connected")
	token := f.signup(t, "ann")
	f.link(t, token, "P1")

	w := f.do(t, http.MethodDelete, "/api/devices/P1", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("unlink status = %d, want 200", w.Code)
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["purged"] != true || resp["reset_sent"] != false {
		t.Errorf("unlink = %v, want purged without reset", resp)
	}
}

func TestAccessEvents(t *testing.T) {
	f := newFixture(t)
	token := f.signup(t, "ann")
	f.link(t, token, "P1")

	ctx := context.Background()
	enabled := false
	uid := int64(1)
	events := []*audit.AccessEvent{
		{Pin: "P1", UUID: "bad", Reason: audit.ReasonCredentialMismatch},
		{Pin: "P1", UUID: "good", Granted: true, UserID: &uid, Enabled: &enabled, Reason: audit.ReasonGranted},
		{Pin: "P9", UUID: "x", Reason: audit.ReasonNoOwner},
	}
	for _, e := range events {
		if err := f.audit.Record(ctx, e); err != nil {
			t.Fatalf("Record() error: %v", err)
		}
	}

	w := f.do(t, http.MethodGet, "/api/devices/P1/access", token, "")
	var all audit.ListResult
	decode(t, w, &all)
	if all.Total != 2 {
		t.Errorf("total = %d, want 2 events for P1", all.Total)
	}

	w = f.do(t, http.MethodGet, "/api/devices/P1/access?granted=false", token, "")
	var refused audit.ListResult
	decode(t, w, &refused)
	if refused.Total != 1 || refused.Events[0].Reason != audit.ReasonCredentialMismatch {
		t.Errorf("refused = %+v, want the single mismatch", refused)
	}

	if w := f.do(t, http.MethodGet, "/api/devices/P1/access?granted=maybe", token, ""); w.Code != http.StatusBadRequest {
		t.Errorf("granted=maybe status = %d, want 400", w.Code)
	}
}

// ─── Viewer WebSocket ──────────────────────────────────────────────

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestWebSocket_RefusedWithoutSession(t *testing.T) {
	f := newFixture(t)
	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	for _, header := range []http.Header{
		nil,
		{"Cookie": []string{tokenCookie + "=garbage"}},
	} {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
		if err != nil {
			t.Fatalf("dial error: %v", err)
		}

		conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // Test deadline
		_, _, err = conn.ReadMessage()
		var closeErr *websocket.CloseError
		if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
			t.Errorf("read error = %v, want close 1008", err)
		}
		conn.Close()
	}

	if n := f.hub.ClientCount(); n != 0 {
		t.Errorf("hub has %d clients after refused handshakes", n)
	}
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	f := newFixture(t)
	token := f.signup(t, "ann")
	f.link(t, token, "P1")
	f.link(t, token, "P2")

	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	header := http.Header{"Cookie": []string{tokenCookie + "=" + token}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // Test deadline

	// Keepalives produce no reply; the next frame read is the subscription ack.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"pins":["P2","P1","P7"]}`)); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	var ack struct {
		Type string   `json:"type"`
		Pins []string `json:"pins"`
	}
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != hub.TypeSubscribed || strings.Join(ack.Pins, ",") != "P1,P2" {
		t.Errorf("ack = %+v, want subscribed to [P1 P2]", ack)
	}

	f.hub.Broadcast("P7", []byte(`{"pin":"P7"}`))
	f.hub.Broadcast("P2", []byte(`{"pin":"P2","change":1}`))

	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if string(frame) != `{"pin":"P2","change":1}` {
		t.Errorf("event = %s, want the P2 event only", frame)
	}
}

func TestWebSocket_CommaListSubscription(t *testing.T) {
	f := newFixture(t)
	token := f.signup(t, "ann")
	f.link(t, token, "P1")

	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	header := http.Header{"Authorization": []string{"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // Test deadline

	if err := conn.WriteMessage(websocket.TextMessage, []byte(" P1 , ,P3")); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if string(frame) != `{"type":"subscribed","pins":["P1"]}` {
		t.Errorf("ack = %s", frame)
	}
}
