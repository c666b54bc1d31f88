package hub

import (
	"fmt"
	"sort"
	"sync"
)

// State is a viewer connection's lifecycle state.
type State int

// Client states.
const (
	StateConnecting State = iota
	StateAuthenticated
	StateSubscribed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateSubscribed:
		return "subscribed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Client is one viewer connection.
type Client struct {
	send chan []byte

	mu     sync.RWMutex
	state  State
	userID int64
	pins   map[string]struct{}
}

// NewClient creates a Connecting client with a bounded outbound buffer.
func NewClient(buffer int) *Client {
	if buffer < 1 {
		buffer = 1
	}
	return &Client{
		send: make(chan []byte, buffer),
	}
}

// Authenticate moves a Connecting client to Authenticated as userID.
func (c *Client) Authenticate(userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateConnecting:
		c.userID = userID
		c.state = StateAuthenticated
		return nil
	case StateClosed:
		return ErrClientClosed
	default:
		return fmt.Errorf("authenticating client in state %s", c.state)
	}
}

// Send is the outbound queue. It is closed when the client is closed.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// State returns the current state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// UserID returns the authenticated user, or zero.
func (c *Client) UserID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Pins returns the active subscription set in sorted order.
func (c *Client) Pins() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedPins(c.pins)
}

func (c *Client) replacePins(pins map[string]struct{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClientClosed
	}
	c.pins = pins
	c.state = StateSubscribed
	return nil
}

func (c *Client) wants(pin string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateSubscribed {
		return false
	}
	_, ok := c.pins[pin]
	return ok
}

// trySend queues data without blocking. It reports false when the client
// is closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == StateClosed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// close moves the client to Closed and closes Send. Only the first call
// has effect.
func (c *Client) close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.state = StateClosed
	c.pins = nil
	close(c.send)
	return true
}

func sortedPins(set map[string]struct{}) []string {
	pins := make([]string, 0, len(set))
	for pin := range set {
		pins = append(pins, pin)
	}
	sort.Strings(pins)
	return pins
}
