// Package config handles loading and validating the Tuya BLE bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with TUYABLE_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Device local keys and MQTT/InfluxDB credentials live in this file; keep it 0600
//   - Prefer environment variables for broker passwords and tokens
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Bridge.TopicPrefix)
package config
