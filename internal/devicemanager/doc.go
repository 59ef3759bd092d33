// Package devicemanager is the bridge's side of the external Tuya BLE
// device manager.
//
// The device manager owns the radio: it connects to devices, handles
// pairing and encryption and parses datapoints. It reports each device
// over MQTT:
//
//	{prefix}/manager/{address}/info        identity (retained)
//	{prefix}/manager/{address}/status      {"connected": true, "rssi": -70}
//	{prefix}/manager/{address}/datapoints  {"datapoints": [{"id": 1, "type": "enum", "value": 0}]}
//
// Manager validates each payload against an embedded JSON Schema,
// normalises datapoint values and applies them to a Proxy, which
// implements Device. Consumers register callbacks on the proxy exactly as
// they would on a directly connected device.
//
// CredentialStore persists the local keys the device manager needs, seeded
// from configuration.
package devicemanager
