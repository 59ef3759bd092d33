// Package logging provides structured logging for the Tuya BLE bridge.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text for development, and a service/version pair on every
// entry.
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
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("scanner").Info("scan started", "adapter", "hci0")
//
// Values of the local_key, uuid, password and token attributes are
// replaced with [REDACTED] before they reach the output.
package logging
