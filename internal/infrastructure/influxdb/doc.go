// Package influxdb provides optional InfluxDB telemetry for the counter relay.
//
// It wraps the official influxdb-client-go v2 library. Every accepted
// counter change becomes one point in the counter_changes measurement,
// tagged by pin, so counting rates can be graphed outside the relay.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	router.SetTelemetry(client)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval; write errors arrive
// asynchronously through SetOnError.
package influxdb
