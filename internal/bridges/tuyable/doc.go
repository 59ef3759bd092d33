// Package tuyable exposes Tuya BLE devices as sensor entities.
//
// The device manager (a separate process owning the BLE link) reports
// devices through the devicemanager package. For each ready device the
// Bridge:
//   - registers the device and its entities in the registry
//   - runs a Coordinator that follows connection and datapoint callbacks
//   - runs one sensor entity per mapped datapoint, plus signal strength
//   - publishes entity state, entity descriptions and bus events on MQTT
//
// # Topics
//
//	{prefix}/config/{entity_id}     entity description (retained)
//	{prefix}/state/{entity_id}      entity state (retained)
//	{prefix}/event/{event_type}     fingerbot and lock events
//	{prefix}/discovery/{address}    unmanaged devices heard over the air (retained)
//	{prefix}/health                 bridge health (retained)
//
// # Availability
//
// A device counts as connected from its first connect or datapoint update.
// A disconnect is only acted on when no reconnect or update arrives within
// the disconnect delay (10 minutes by default), so short BLE drops do not
// flap entity availability.
package tuyable
