package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementCounterChanges = "counter_changes"
	MeasurementRelay          = "relay"
)

// RecordCount writes one accepted counter change.
//
// Example point:
//
//	counter_changes,pin=A1 change=1i,count=42i 1700000000000000000
func (c *Client) RecordCount(pin string, change int, newCount int64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(countPoint(pin, change, newCount, at))
}

// RecordRelayStats writes the router's running totals.
func (c *Client) RecordRelayStats(processed, ignored, failed uint64, viewers int, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(statsPoint(processed, ignored, failed, viewers, at))
}

func countPoint(pin string, change int, newCount int64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementCounterChanges,
		map[string]string{"pin": pin},
		map[string]interface{}{
			"change": int64(change),
			"count":  newCount,
		},
		at,
	)
}

func statsPoint(processed, ignored, failed uint64, viewers int, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementRelay,
		nil,
		map[string]interface{}{
			"processed": processed,
			"ignored":   ignored,
			"failed":    failed,
			"viewers":   int64(viewers),
		},
		at,
	)
}
