// Package api implements the read-only HTTP API of the Tuya BLE bridge.
//
// This package provides:
//   - Device and entity listings from the registry, merged with live link state
//   - Entity state history from SQLite
//   - The product catalog
//   - A health endpoint aggregating component checks
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API sits beside the MQTT surface. State and events are pushed over
// MQTT; the API only answers questions about what the bridge knows:
//
//	HTTP client ──► chi router ──► Registry (SQLite cache)
//	                          ├──► History repository
//	                          ├──► Bridge live view
//	                          └──► Scanner seen table
//
// # Graceful Degradation
//
// History, the bridge view and the scanner are optional. Routes that need a
// missing dependency answer 503 while the rest keep working.
package api
