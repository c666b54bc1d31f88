package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// TypeSubscribed is the type of the reply to a subscription request.
const TypeSubscribed = "subscribed"

// Request is a parsed viewer frame.
type Request struct {
	// Pins is the proposed subscription; nil when the frame asks for
	// nothing.
	Pins []string
	// Keepalive is set for a bare "ping".
	Keepalive bool
}

// ParseRequest reads one viewer frame. It accepts {"pins": [...]}, a
// comma-separated list of pins, or "ping". Any other valid JSON yields an
// empty Request.
func ParseRequest(frame []byte) Request {
	text := strings.TrimSpace(string(frame))
	if strings.EqualFold(text, "ping") {
		return Request{Keepalive: true}
	}

	if json.Valid(frame) {
		return Request{Pins: jsonPins(frame)}
	}

	var pins []string
	for _, token := range strings.Split(text, ",") {
		if token = strings.TrimSpace(token); token != "" {
			pins = append(pins, token)
		}
	}
	return Request{Pins: pins}
}

// jsonPins extracts the pins array, stringifying scalar entries.
func jsonPins(frame []byte) []string {
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil
	}
	list, ok := body["pins"].([]any)
	if !ok {
		return nil
	}

	pins := make([]string, 0, len(list))
	for _, v := range list {
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case json.Number:
			s = x.String()
		case bool:
			s = fmt.Sprint(x)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			pins = append(pins, s)
		}
	}
	return pins
}

// SubscribedReply encodes the acknowledgement for accepted pins.
func SubscribedReply(pins []string) []byte {
	if pins == nil {
		pins = []string{}
	}
	data, _ := json.Marshal(struct { //nolint:errcheck // Encoding strings cannot fail
		Type string   `json:"type"`
		Pins []string `json:"pins"`
	}{TypeSubscribed, pins})
	return data
}
