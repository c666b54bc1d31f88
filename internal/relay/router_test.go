package relay_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/countrelay/internal/audit"
	"github.com/nerrad567/countrelay/internal/device"
	"github.com/nerrad567/countrelay/internal/infrastructure/database"
	"github.com/nerrad567/countrelay/internal/ownership"
	"github.com/nerrad567/countrelay/internal/relay"
	"github.com/nerrad567/countrelay/internal/testutil"
)

var t0 = time.Unix(1700000000, 0)

type sentEvent struct {
	pin    string
	fields map[string]any
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
}

func (b *recordingBroadcaster) Broadcast(pin string, payload []byte) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		panic(err)
	}
	b.mu.Lock()
	b.events = append(b.events, sentEvent{pin: pin, fields: fields})
	b.mu.Unlock()
}

func (b *recordingBroadcaster) sent() []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]sentEvent(nil), b.events...)
}

type countRecord struct {
	pin      string
	change   int
	newCount int64
}

type recordingTelemetry struct {
	records []countRecord
}

func (r *recordingTelemetry) RecordCount(pin string, change int, newCount int64, _ time.Time) {
	r.records = append(r.records, countRecord{pin, change, newCount})
}

type fixture struct {
	db     *database.DB
	store  *device.Store
	dir    *ownership.Directory
	audit  *audit.SQLiteRepository
	out    *recordingBroadcaster
	router *relay.Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	f := &fixture{
		db:    db,
		store: device.NewStore(db),
		dir:   ownership.NewDirectory(db),
		audit: audit.NewSQLiteRepository(db),
		out:   &recordingBroadcaster{},
	}
	gate := relay.NewGate(f.dir, f.store, f.audit, f.out)
	f.router = relay.NewRouter(f.store, gate, f.out)
	return f
}

func (f *fixture) seedUser(t *testing.T, username, rfid string) int64 {
	t.Helper()
	var rfidArg any
	if rfid != "" {
		rfidArg = rfid
	}
	res, err := f.db.ExecContext(context.Background(),
		"INSERT INTO users (username, password_hash, rfid_uid) VALUES (?, 'x', ?)",
		username, rfidArg,
	)
	if err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return id
}

func (f *fixture) link(t *testing.T, userID int64, pins ...string) {
	t.Helper()
	for _, pin := range pins {
		if _, err := f.dir.Link(context.Background(), userID, pin); err != nil {
			t.Fatalf("Link(%d, %s) error = %v", userID, pin, err)
		}
	}
}

func (f *fixture) enabled(t *testing.T, pin string) bool {
	t.Helper()
	d, err := f.store.Get(context.Background(), pin)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", pin, err)
	}
	return d.Enabled
}

func TestRoute_DropsMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		reason  string
	}{
		{"three segments", "ynov/A1/count", `{"change":1}`, relay.ReasonShortTopic},
		{"unknown action", "ynov/bdx/A1/reset", `{"change":1}`, relay.ReasonUnknownAction},
		{"empty pin", "ynov/bdx//count", `{"change":1}`, relay.ReasonEmptyPin},
		{"not json", "ynov/bdx/A1/count", `change=1`, relay.ReasonBadPayload},
		{"json array", "ynov/bdx/A1/count", `[1]`, relay.ReasonBadPayload},
		{"json null", "ynov/bdx/A1/count", `null`, relay.ReasonBadPayload},
		{"missing change", "ynov/bdx/A1/count", `{}`, relay.ReasonBadChange},
		{"change of two", "ynov/bdx/A1/count", `{"change":2}`, relay.ReasonBadChange},
		{"change of zero", "ynov/bdx/A1/count", `{"change":0}`, relay.ReasonBadChange},
		{"fractional change", "ynov/bdx/A1/count", `{"change":1.5}`, relay.ReasonBadChange},
		{"string change", "ynov/bdx/A1/count", `{"change":"1"}`, relay.ReasonBadChange},
		{"non-bool enabled", "ynov/bdx/A1/toggle", `{"enabled":"no","uuid":"B"}`, relay.ReasonBadPayload},
		{"non-string uuid", "ynov/bdx/A1/toggle", `{"enabled":true,"uuid":7}`, relay.ReasonBadPayload},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.router.Route(context.Background(), tt.topic, []byte(tt.payload), t0)
			if got.Status != relay.Ignored || got.Reason != tt.reason {
				t.Errorf("Route() = %+v, want ignored/%s", got, tt.reason)
			}
		})
	}

	if n, _ := f.store.CurrentCount(context.Background(), "A1"); n != 0 {
		t.Errorf("A1 count = %d after dropped messages, want 0", n)
	}
	if len(f.out.sent()) != 0 {
		t.Errorf("dropped messages produced %d events", len(f.out.sent()))
	}
	if st := f.router.Stats(); st.Ignored != uint64(len(tests)) || st.Processed != 0 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestRoute_CountAppliesAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	tel := &recordingTelemetry{}
	f.router.SetTelemetry(tel)
	ctx := context.Background()

	topic := "ynov/bdx/lidl/A1/count"
	for i, payload := range []string{`{"change":1}`, `{"change":1}`, `{"change":-1}`, `{"change":1}`} {
		got := f.router.Route(ctx, topic, []byte(payload), t0.Add(time.Duration(i)*time.Second))
		if got.Status != relay.Processed || got.Pin != "A1" || got.Action != relay.ActionCount {
			t.Fatalf("Route() = %+v, want processed count A1", got)
		}
	}

	if n, _ := f.store.CurrentCount(ctx, "A1"); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	logs, err := f.store.Logs(ctx, "A1", 10)
	if err != nil || len(logs) != 4 || logs[0].NewCount != 2 {
		t.Errorf("Logs() = %+v, %v; want 4 entries, newest new_count 2", logs, err)
	}

	events := f.out.sent()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	last := events[3]
	if last.pin != "A1" ||
		last.fields["topic"] != topic ||
		last.fields["change"] != float64(1) ||
		last.fields["new_count"] != float64(2) ||
		last.fields["ts"] != float64(t0.Unix()+3) {
		t.Errorf("last event = %+v", last)
	}
	if len(tel.records) != 4 || tel.records[3] != (countRecord{"A1", 1, 2}) {
		t.Errorf("telemetry = %+v", tel.records)
	}
}

func TestRoute_CountOnDisabledDeviceDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.SetEnabled(ctx, []string{"A1"}, false); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}

	got := f.router.Route(ctx, "ynov/bdx/A1/count", []byte(`{"change":1}`), t0)
	if got.Status != relay.Ignored || got.Reason != relay.ReasonDeviceDisabled {
		t.Errorf("Route() = %+v, want ignored/device_disabled", got)
	}
	if n, _ := f.store.CurrentCount(ctx, "A1"); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestRoute_ToggleGrantedGatesWholeFleet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.seedUser(t, "alice", "BADGE1")
	bob := f.seedUser(t, "bob", "BADGE2")
	f.link(t, alice, "A1", "A2", "A3")
	f.link(t, bob, "B1")

	got := f.router.Route(ctx, "ynov/bdx/A2/toggle", []byte(`{"enabled":false,"uuid":"BADGE1"}`), t0)
	if got.Status != relay.Processed || got.Reason != relay.ReasonToggleGranted {
		t.Fatalf("Route() = %+v, want processed/toggle_granted", got)
	}

	for _, pin := range []string{"A1", "A2", "A3"} {
		if f.enabled(t, pin) {
			t.Errorf("%s still enabled after fleet toggle", pin)
		}
	}
	if !f.enabled(t, "B1") {
		t.Error("B1 belongs to another user and must stay enabled")
	}

	events := f.out.sent()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.pin != "A2" || ev.fields["enabled"] != false || ev.fields["uuid"] != "BADGE1" || ev.fields["ts"] != float64(t0.Unix()) {
		t.Errorf("event = %+v", ev)
	}
	if _, ok := ev.fields["not_authorized"]; ok {
		t.Error("granted event must not carry not_authorized")
	}

	res, err := f.audit.List(ctx, audit.Filter{Pin: "A2"})
	if err != nil || len(res.Events) != 1 || !res.Events[0].Granted || res.Events[0].Reason != audit.ReasonGranted {
		t.Errorf("audit = %+v, %v", res, err)
	}

	// Counts on a disabled fleet are dropped until re-enabled.
	if got := f.router.Route(ctx, "ynov/bdx/A3/count", []byte(`{"change":1}`), t0); got.Reason != relay.ReasonDeviceDisabled {
		t.Errorf("count after disable = %+v", got)
	}
	f.router.Route(ctx, "ynov/bdx/A1/toggle", []byte(`{"uuid":"BADGE1"}`), t0)
	for _, pin := range []string{"A1", "A2", "A3"} {
		if !f.enabled(t, pin) {
			t.Errorf("%s not re-enabled by toggle without enabled field", pin)
		}
	}
}

func TestRoute_ToggleRejectedChangesNothing(t *testing.T) {
	for _, prior := range []bool{true, false} {
		t.Run(map[bool]string{true: "prior enabled", false: "prior disabled"}[prior], func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			alice := f.seedUser(t, "alice", "BADGE1")
			f.link(t, alice, "A1", "A2")
			if _, err := f.store.SetEnabled(ctx, []string{"A1", "A2"}, prior); err != nil {
				t.Fatalf("SetEnabled() error = %v", err)
			}

			payload := []byte(`{"enabled":` + map[bool]string{true: "false", false: "true"}[prior] + `,"uuid":"WRONG"}`)
			got := f.router.Route(ctx, "ynov/bdx/A1/toggle", payload, t0)
			if got.Status != relay.Processed || got.Reason != relay.ReasonToggleRejected {
				t.Fatalf("Route() = %+v, want processed/toggle_rejected", got)
			}

			for _, pin := range []string{"A1", "A2"} {
				if f.enabled(t, pin) != prior {
					t.Errorf("%s enabled changed by rejected toggle", pin)
				}
			}

			events := f.out.sent()
			if len(events) != 1 {
				t.Fatalf("events = %d, want 1", len(events))
			}
			ev := events[0]
			if ev.pin != "A1" || ev.fields["not_authorized"] != true || ev.fields["enabled"] != false || ev.fields["uuid"] != "WRONG" {
				t.Errorf("event = %+v", ev)
			}

			// A rejected toggle does not gate counting on its own.
			count := f.router.Route(ctx, "ynov/bdx/A1/count", []byte(`{"change":1}`), t0)
			if prior && count.Status != relay.Processed {
				t.Errorf("count after rejected toggle = %+v, want processed", count)
			}
			if !prior && count.Reason != relay.ReasonDeviceDisabled {
				t.Errorf("count on disabled pin = %+v, want device_disabled", count)
			}
		})
	}
}

func TestRoute_ToggleWithoutOwnerDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got := f.router.Route(ctx, "ynov/bdx/Z9/toggle", []byte(`{"enabled":false,"uuid":"BADGE1"}`), t0)
	if got.Status != relay.Ignored || got.Reason != relay.ReasonNoOwner {
		t.Errorf("Route() = %+v, want ignored/no_owner", got)
	}
	if len(f.out.sent()) != 0 {
		t.Error("unowned toggle must not fan out")
	}
	res, err := f.audit.List(ctx, audit.Filter{Pin: "Z9"})
	if err != nil || len(res.Events) != 1 || res.Events[0].Reason != audit.ReasonNoOwner {
		t.Errorf("audit = %+v, %v", res, err)
	}
}

func TestRoute_EmptyCredentialNeverMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	carol := f.seedUser(t, "carol", "")
	f.link(t, carol, "C1")

	got := f.router.Route(ctx, "ynov/bdx/C1/toggle", []byte(`{"enabled":false}`), t0)
	if got.Reason != relay.ReasonToggleRejected {
		t.Errorf("Route() = %+v, want toggle_rejected", got)
	}
	if !f.enabled(t, "C1") {
		t.Error("owner without a badge must not be able to toggle")
	}
}

type failingCounters struct{}

func (failingCounters) ApplyChange(context.Context, string, int, time.Time) (int64, error) {
	return 0, errors.New("disk I/O error")
}

func TestRoute_StoreFailureIsContained(t *testing.T) {
	out := &recordingBroadcaster{}
	router := relay.NewRouter(failingCounters{}, nil, out)

	got := router.Route(context.Background(), "ynov/bdx/A1/count", []byte(`{"change":1}`), t0)
	if got.Status != relay.Ignored || got.Reason != relay.ReasonStoreFailure {
		t.Errorf("Route() = %+v, want ignored/store_failure", got)
	}
	if len(out.sent()) != 0 {
		t.Error("failed change must not fan out")
	}
	if st := router.Stats(); st.Failed != 1 || st.Ignored != 0 {
		t.Errorf("Stats() = %+v, want one failure", st)
	}
}
