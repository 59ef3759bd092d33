// Package mqtt provides MQTT client connectivity for the Tuya BLE bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// MQTT is the only channel between the bridge and the rest of the house.
// The external device manager publishes device identity, connection status
// and datapoints; the bridge publishes entity state, entity descriptions,
// bus events and its own health.
//
//	device manager → MQTT → bridge → MQTT → automation host / dashboards
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.Bridge.TopicPrefix)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.SubscribeManager(mqtt.KindDatapoints, 1,
//	    func(address string, payload []byte) error {
//	        log.Printf("datapoints for %s: %s", address, payload)
//	        return nil
//	    })
package mqtt
