// Package influxdb writes Tuya BLE sensor telemetry to InfluxDB.
//
// Numeric sensor states (temperature, humidity, CO2, battery, water
// intake, signal strength) are written as points of the tuya_ble_sensor
// measurement, tagged by address, entity and key. The optional BLE
// scanner writes advertisement RSSI to ble_advertisement.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensorReading(influxdb.SensorReading{
//	    Address:  "DC:23:4D:11:22:33",
//	    EntityID: "sensor.bf12_temperature",
//	    Key:      "temperature",
//	    Value:    21.5,
//	})
//
// Writes are non-blocking and batched per the batch_size and
// flush_interval settings. Batch failures are delivered to the SetOnError
// callback.
package influxdb
