package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/countrelay/internal/infrastructure/mqtt"
)

// resetPayload is published on <prefix>/<pin>/reset when a device is purged.
var resetPayload = []byte(`{"reset":true}`)

// State is the supervisor's connection state.
type State int32

const (
	// StateReconnecting covers the first dial and every retry.
	StateReconnecting State = iota
	// StateConnected means a session is up and being drained.
	StateConnected
	// StateStopped means Run has returned.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateReconnecting:
		return "reconnecting"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session is one subscribed broker connection. *mqtt.Session satisfies it.
type Session interface {
	Messages() <-chan mqtt.Message
	Done() <-chan struct{}
	Err() error
	PublishJSON(topic string, payload []byte) error
	Close() error
}

// DialFunc opens a new subscribed Session.
type DialFunc func(ctx context.Context) (Session, error)

// MessageRouter handles one inbound message.
type MessageRouter interface {
	Route(ctx context.Context, topic string, payload []byte, at time.Time) Outcome
}

// Clock supplies time and cancellable sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Supervisor keeps one broker session alive and feeds its messages to a
// router in arrival order.
//
// State machine:
//
//	Reconnecting ──dial ok──▶ Connected
//	     ▲                        │
//	     └──── fixed delay ◀──────┘ session lost / dial failed
//
// Delivery is at-most-once: messages published while Reconnecting are lost.
type Supervisor struct {
	dial   DialFunc
	router MessageRouter
	topics mqtt.Topics
	delay  time.Duration
	clock  Clock
	logger Logger

	state    atomic.Int32
	connects atomic.Uint64

	mu      sync.RWMutex
	session Session

	onState func(State)
}

// NewSupervisor creates a Supervisor that waits delay between attempts.
func NewSupervisor(dial DialFunc, router MessageRouter, topics mqtt.Topics, delay time.Duration) *Supervisor {
	return &Supervisor{
		dial:   dial,
		router: router,
		topics: topics,
		delay:  delay,
		clock:  systemClock{},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// SetClock replaces the wall clock. Must be called before Run.
func (s *Supervisor) SetClock(clock Clock) {
	s.clock = clock
}

// SetOnStateChange registers a callback run on every transition, from the
// Run goroutine. Must be called before Run.
func (s *Supervisor) SetOnStateChange(fn func(State)) {
	s.onState = fn
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Connects returns how many sessions have been established.
func (s *Supervisor) Connects() uint64 {
	return s.connects.Load()
}

func (s *Supervisor) setState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	if s.onState != nil {
		s.onState(st)
	}
}

// Run dials, drains and redials until ctx is cancelled. It returns nil on
// cancellation; an in-progress delay is abandoned immediately.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.setState(StateStopped)

	for {
		s.setState(StateReconnecting)

		sess, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("broker connection failed", "error", err, "retry_in", s.delay)
			if s.clock.Sleep(ctx, s.delay) != nil {
				return nil
			}
			continue
		}

		s.attach(sess)
		s.connects.Add(1)
		s.setState(StateConnected)
		s.logger.Info("broker session established")

		lost := s.consume(ctx, sess)

		s.detach()
		if err := sess.Close(); err != nil {
			s.logger.Warn("closing broker session failed", "error", err)
		}

		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("broker session lost", "error", lost, "retry_in", s.delay)
		if s.clock.Sleep(ctx, s.delay) != nil {
			return nil
		}
	}
}

// consume routes messages until the session ends or ctx is cancelled.
// Messages already queued when the session ends are still routed.
func (s *Supervisor) consume(ctx context.Context, sess Session) error {
	messages := sess.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-messages:
			s.dispatch(ctx, msg)
		case <-sess.Done():
			for {
				select {
				case msg := <-messages:
					s.dispatch(ctx, msg)
				default:
					if err := sess.Err(); err != nil {
						return err
					}
					return mqtt.ErrConnectionLost
				}
			}
		}
	}
}

// dispatch routes one message. A panic is contained to that message.
func (s *Supervisor) dispatch(ctx context.Context, msg mqtt.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic routing message", "topic", msg.Topic, "panic", r)
		}
	}()

	at := msg.ReceivedAt
	if at.IsZero() {
		at = s.clock.Now()
	}
	s.router.Route(ctx, msg.Topic, msg.Payload, at)
}

func (s *Supervisor) attach(sess Session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
}

func (s *Supervisor) detach() {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
}

// Publish sends payload on the current session. It returns
// mqtt.ErrNotConnected while Reconnecting.
func (s *Supervisor) Publish(topic string, payload []byte) error {
	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	if sess == nil {
		return mqtt.ErrNotConnected
	}
	return sess.PublishJSON(topic, payload)
}

// PublishReset tells the device behind pin that it was unlinked.
func (s *Supervisor) PublishReset(pin string) error {
	if pin == "" {
		return errors.New("publishing reset: empty pin")
	}
	if err := s.Publish(s.topics.Reset(pin), resetPayload); err != nil {
		return fmt.Errorf("publishing reset for %s: %w", pin, err)
	}
	return nil
}

// HealthCheck reports mqtt.ErrNotConnected unless a session is up.
func (s *Supervisor) HealthCheck(context.Context) error {
	if s.State() != StateConnected {
		return mqtt.ErrNotConnected
	}
	return nil
}
