// Package mqtt provides the broker connection for the counter relay.
//
// Devices publish on <prefix>/<pin>/count and <prefix>/<pin>/toggle; the
// relay subscribes to <prefix>/# and publishes <prefix>/<pin>/reset when a
// device is unlinked from its last owner.
//
// A Client is one connection. Automatic reconnection is off: when the
// connection drops, Done is closed and the relay's supervisor dials again
// after its fixed delay. Delivery is at-most-once and nothing is replayed.
//
// # Usage
//
//	session, err := mqtt.Dial(ctx, cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	for {
//	    select {
//	    case msg := <-session.Messages():
//	        handle(msg.Topic, msg.Payload)
//	    case <-session.Done():
//	        return session.Err()
//	    }
//	}
package mqtt
