// Package config loads and validates the ESP-NOW bridge configuration.
//
// Configuration comes from a YAML file laid over built-in defaults, then
// environment variables of the form ESPNOW_SECTION_KEY. Validate reports every
// problem at once rather than stopping at the first.
//
// Credentials (MQTT password, InfluxDB token) should be supplied through the
// environment, not the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Serial.Port)
package config
