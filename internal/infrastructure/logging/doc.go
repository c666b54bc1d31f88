// Package logging provides structured logging for the counter relay.
//
// It wraps the standard log/slog package so every component logs with the
// same default fields (service, version) and the same level filtering.
//
// Configuration comes from the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("relay started", "topic", cfg.MQTT.Topic)
//	logger.Component("hub").Debug("viewer subscribed", "pins", pins)
//
// Never log session tokens, passwords or RFID credentials in full.
package logging
