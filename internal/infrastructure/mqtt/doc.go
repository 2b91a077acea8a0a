// Package mqtt provides the bridge's MQTT client.
//
// The bridge publishes sensor states, fired events, health reports and Home
// Assistant discovery configs, and listens for the Home Assistant birth
// message so discovery can be replayed after a restart of the consumer.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.SensorState("aa:bb:cc:dd:ee:ff", "temp")
//	err = client.Publish(topic, payload, 1, true)
//
// A retained status message on espnow/bridge/status reports online and
// graceful shutdown; the broker publishes the Last Will on a crash.
//
// Auto-reconnect is handled by paho; subscriptions made through Subscribe
// are restored after every reconnect.
package mqtt
