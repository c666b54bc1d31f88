package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/countrelay/internal/audit"
	"github.com/nerrad567/countrelay/internal/ownership"
)

// OwnerDirectory answers who owns a pin and which pins a user holds.
type OwnerDirectory interface {
	Owners(ctx context.Context, pin string) ([]ownership.Owner, error)
	ListOwnedPins(ctx context.Context, userID int64) ([]string, error)
}

// FleetStore applies one enabled state to a set of pins atomically.
type FleetStore interface {
	SetEnabled(ctx context.Context, pins []string, enabled bool) (int64, error)
}

// AccessRecorder stores toggle decisions.
type AccessRecorder interface {
	Record(ctx context.Context, event *audit.AccessEvent) error
}

// Decision is the gate's verdict on one toggle.
type Decision int

const (
	// DecisionNoOwner means the pin has no owner and nothing happened.
	DecisionNoOwner Decision = iota
	// DecisionRejected means the credential matched no owner.
	DecisionRejected
	// DecisionGranted means the owner's whole fleet was updated.
	DecisionGranted
)

// GateResult describes a toggle decision.
type GateResult struct {
	Decision Decision
	// UserID is the owner whose fleet changed; zero unless granted.
	UserID int64
	// Pins lists the fleet that received the new state.
	Pins []string
}

// Gate authorises toggles against owners' badge credentials.
type Gate struct {
	owners OwnerDirectory
	fleet  FleetStore
	audit  AccessRecorder
	out    Broadcaster
	logger Logger
}

// NewGate creates a Gate. recorder and out may be nil.
func NewGate(owners OwnerDirectory, fleet FleetStore, recorder AccessRecorder, out Broadcaster) *Gate {
	return &Gate{
		owners: owners,
		fleet:  fleet,
		audit:  recorder,
		out:    out,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the gate.
func (g *Gate) SetLogger(logger Logger) {
	g.logger = logger
}

// Toggle decides whether credential may set pin's fleet to enabled.
//
// The first owner, in link order, whose registered badge equals credential
// is the toggling user. Owners without a badge never match. A mismatch
// changes nothing and fans out a not_authorized event for operators.
func (g *Gate) Toggle(ctx context.Context, pin, credential string, enabled bool, at time.Time) (GateResult, error) {
	owners, err := g.owners.Owners(ctx, pin)
	if err != nil {
		return GateResult{}, fmt.Errorf("resolving owners of %s: %w", pin, err)
	}
	if len(owners) == 0 {
		g.record(ctx, &audit.AccessEvent{Pin: pin, UUID: credential, Reason: audit.ReasonNoOwner})
		return GateResult{Decision: DecisionNoOwner}, nil
	}

	owner, ok := matchOwner(owners, credential)
	if !ok {
		g.record(ctx, &audit.AccessEvent{Pin: pin, UUID: credential, Reason: audit.ReasonCredentialMismatch})
		emit(g.out, g.logger, pin, ToggleEvent{
			Pin:           pin,
			Enabled:       false,
			NotAuthorized: true,
			UUID:          credential,
			TS:            at.Unix(),
		})
		g.logger.Warn("toggle rejected", "pin", pin)
		return GateResult{Decision: DecisionRejected}, nil
	}

	pins, err := g.owners.ListOwnedPins(ctx, owner.UserID)
	if err != nil {
		return GateResult{}, fmt.Errorf("listing fleet of user %d: %w", owner.UserID, err)
	}
	if _, err := g.fleet.SetEnabled(ctx, pins, enabled); err != nil {
		return GateResult{}, fmt.Errorf("applying fleet state: %w", err)
	}

	userID := owner.UserID
	state := enabled
	g.record(ctx, &audit.AccessEvent{
		Pin:     pin,
		UUID:    credential,
		UserID:  &userID,
		Granted: true,
		Enabled: &state,
		Reason:  audit.ReasonGranted,
	})
	emit(g.out, g.logger, pin, ToggleEvent{
		Pin:     pin,
		Enabled: enabled,
		UUID:    credential,
		TS:      at.Unix(),
	})
	g.logger.Info("fleet toggled", "pin", pin, "user_id", owner.UserID, "enabled", enabled, "devices", len(pins))

	return GateResult{Decision: DecisionGranted, UserID: owner.UserID, Pins: pins}, nil
}

func matchOwner(owners []ownership.Owner, credential string) (ownership.Owner, bool) {
	for _, o := range owners {
		if o.HasCredential() && o.RFIDUID == credential {
			return o, true
		}
	}
	return ownership.Owner{}, false
}

// record stores a decision. Audit failures are logged and never change
// the outcome of the toggle.
func (g *Gate) record(ctx context.Context, event *audit.AccessEvent) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Record(ctx, event); err != nil {
		g.logger.Error("recording access decision failed", "pin", event.Pin, "error", err)
	}
}
