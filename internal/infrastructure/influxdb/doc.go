// Package influxdb records sensor history and fired events in InfluxDB.
//
// It wraps influxdb-client-go v2 with the non-blocking batched write API.
// Writes never block the ingest path; failures are delivered through the
// SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensorValue("aa:bb:cc:dd:ee:ff", "sensor.esp_now_aabbccddeeff_node1_temp", "temp", 21.5)
//
// Measurements:
//   - sensor_values: tags mac, entity_id, path; one field named after the value kind
//   - node_events: tags mac, event_type; fields from the event data
package influxdb
