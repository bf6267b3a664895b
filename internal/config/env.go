package config

import "os"

// ApplyEnv overlays environment variables onto a parsed config. The
// overlay runs after every parse, including hot reloads, so environment
// values always win over file values. Broker credentials keep the names
// the rest of the fleet already uses.
func ApplyEnv(cfg *Config) {
	setIf(&cfg.MQTT.BrokerURL, "MQTT_BROKER_URL")
	setIf(&cfg.MQTT.Username, "MQTT_USERNAME")
	setIf(&cfg.MQTT.Password, "MQTT_PASSWORD")
	setIf(&cfg.MQTT.ClientID, "MQTT_CLIENT_ID")
	setIf(&cfg.MQTT.TopicPrefix, "MQTT_TOPIC_PREFIX")

	setIf(&cfg.Timezone, "HOMECTL_TIMEZONE")
	setIf(&cfg.PollInterval, "HOMECTL_POLL_INTERVAL")
	setIf(&cfg.MinRefireFloor, "HOMECTL_MIN_REFIRE_FLOOR")
	setIf(&cfg.Store.Driver, "HOMECTL_STORE_DRIVER")
	setIf(&cfg.Store.Path, "HOMECTL_STORE_PATH")
	setIf(&cfg.Logging.Level, "HOMECTL_LOG_LEVEL")
	setIf(&cfg.Metrics.Listen, "HOMECTL_METRICS_LISTEN")
}

func setIf(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}
