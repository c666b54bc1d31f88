package hub

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Logger defines the logging interface used by the hub.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// OwnershipChecker answers whether a user owns a pin.
type OwnershipChecker interface {
	IsOwned(ctx context.Context, userID int64, pin string) (bool, error)
}

// Hub is the registry of live viewer connections.
type Hub struct {
	owners OwnershipChecker
	logger Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// New creates an empty Hub.
func New(owners OwnershipChecker) *Hub {
	return &Hub{
		owners:  owners,
		logger:  noopLogger{},
		clients: make(map[*Client]struct{}),
	}
}

// SetLogger sets the logger for the hub.
func (h *Hub) SetLogger(logger Logger) {
	h.logger = logger
}

// Run blocks until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds an Authenticated client to the registry.
func (h *Hub) Register(c *Client) error {
	switch c.State() {
	case StateAuthenticated, StateSubscribed:
	case StateClosed:
		return ErrClientClosed
	default:
		return ErrNotAuthenticated
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("viewer connected", "user_id", c.UserID(), "clients", n)
	return nil
}

// Unregister removes c and closes it. It is safe to call more than once
// and from any goroutine.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	if existed {
		h.logger.Debug("viewer disconnected", "user_id", c.UserID(), "clients", n)
	}
}

// Subscribe replaces c's subscription set with the proposed pins the
// client's user owns, and returns the accepted pins sorted. On a lookup
// error the previous set is kept.
func (h *Hub) Subscribe(ctx context.Context, c *Client, proposed []string) ([]string, error) {
	if !h.registered(c) {
		if c.State() == StateClosed {
			return nil, ErrClientClosed
		}
		return nil, ErrNotRegistered
	}
	userID := c.UserID()

	accepted := make(map[string]struct{}, len(proposed))
	for _, raw := range proposed {
		pin := strings.TrimSpace(raw)
		if pin == "" {
			continue
		}
		if _, seen := accepted[pin]; seen {
			continue
		}
		owned, err := h.owners.IsOwned(ctx, userID, pin)
		if err != nil {
			return nil, fmt.Errorf("checking ownership of %s: %w", pin, err)
		}
		if owned {
			accepted[pin] = struct{}{}
		}
	}

	if err := c.replacePins(accepted); err != nil {
		return nil, err
	}
	pins := sortedPins(accepted)
	h.logger.Debug("viewer subscribed", "user_id", userID, "pins", pins)
	return pins, nil
}

// Broadcast queues payload for every Subscribed client holding pin. A
// client that cannot take the payload is unregistered. An empty pin is a
// no-op.
func (h *Hub) Broadcast(pin string, payload []byte) {
	if pin == "" {
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if !c.wants(pin) {
			continue
		}
		if !c.trySend(payload) {
			h.logger.Warn("viewer send failed, dropping connection", "user_id", c.UserID(), "pin", pin)
			h.Unregister(c)
			continue
		}
		sent++
	}
	if sent > 0 {
		h.logger.Debug("event fanned out", "pin", pin, "recipients", sent)
	}
}

// Deliver queues data for c alone, such as a subscription reply. A client
// that cannot take it is unregistered.
func (h *Hub) Deliver(c *Client, data []byte) bool {
	if c.trySend(data) {
		return true
	}
	h.Unregister(c)
	return false
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registered(c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[c]
	return ok
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}
