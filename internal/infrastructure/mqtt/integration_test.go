//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestDial_StreamAndPublish(t *testing.T) {
	cfg := testConfig()
	cfg.Topic = "countrelay-it/" + time.Now().Format("150405.000") + "/#"
	cfg.Broker.ClientID = "countrelay-it-" + time.Now().Format("150405.000")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	session, err := Dial(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer session.Close() //nolint:errcheck // Test cleanup

	topic := session.Topics().Count("A1")
	if err := session.PublishJSON(topic, []byte(`{"change":1}`)); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	for {
		select {
		case msg := <-session.Messages():
			if msg.Topic != topic {
				continue // retained status message
			}
			if string(msg.Payload) != `{"change":1}` {
				t.Errorf("payload = %s", msg.Payload)
			}
			return
		case <-ctx.Done():
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestClose_ClosesDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := Connect(ctx, testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Close")
	}
	if client.Err() != nil {
		t.Errorf("Err() after clean close = %v", client.Err())
	}
}
