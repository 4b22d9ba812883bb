// Package logging provides structured logging for the smart house services.
//
// It wraps log/slog so every entry carries the same default fields
// (service, version) and honours the configured level and format.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting service", "address", addr)
//	rxLogger := logger.Device("thermometer", "living-room-thermometer")
//
// Debug level also records source locations. The text format prints
// timestamps with millisecond precision.
//
// Never log secrets such as the MQTT password or InfluxDB token.
package logging
