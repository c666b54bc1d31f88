package mqtt

import (
	"fmt"
	"time"
)

// Subscribe registers a handler for messages on topic. Wildcards
// (+ and #) are allowed.
//
// Example:
//
//	err := client.Subscribe("ynov/bdx/lidl/#", 0,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// Stream subscribes to topic and delivers messages on the returned channel
// in arrival order. Delivery blocks while the channel is full and stops
// once Done is closed; the channel itself is never closed, so consumers
// should also select on Done.
func (c *Client) Stream(topic string, qos byte, buffer int) (<-chan Message, error) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Message, buffer)

	err := c.Subscribe(topic, qos, func(t string, payload []byte) error {
		return c.deliver(ch, Message{Topic: t, Payload: payload, ReceivedAt: time.Now()})
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// deliver hands msg to ch unless the client has finished.
func (c *Client) deliver(ch chan<- Message, msg Message) error {
	select {
	case ch <- msg:
		return nil
	case <-c.done:
		return ErrNotConnected
	}
}
