// Package config handles loading and validating relay configuration.
//
// Values are resolved in order: built-in defaults, the YAML file, an
// optional .env file, then RELAY_* environment variables. Secrets such as
// MQTT passwords and the InfluxDB token should come from the environment.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Relay.CleanupInterval)
package config
