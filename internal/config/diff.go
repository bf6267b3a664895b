package config

// SummarizeChange lists, per section, what a reload touched. Sections in
// the second return value take effect only after a restart; the app logs
// them instead of applying.
func SummarizeChange(old, next *Config) (applied, restartOnly []string) {
	if old == nil || next == nil {
		return nil, nil
	}

	if old.Timezone != next.Timezone {
		applied = append(applied, "timezone")
	}
	if old.PollInterval != next.PollInterval {
		applied = append(applied, "poll_interval")
	}
	if old.MinRefireFloor != next.MinRefireFloor {
		applied = append(applied, "min_refire_floor")
	}
	if !loggingEqual(old.Logging, next.Logging) {
		applied = append(applied, "logging")
	}
	if old.Maintenance != next.Maintenance {
		applied = append(applied, "maintenance")
	}

	if old.Store != next.Store {
		restartOnly = append(restartOnly, "store")
	}
	if old.MQTT != next.MQTT {
		restartOnly = append(restartOnly, "mqtt")
	}
	if old.Metrics != next.Metrics {
		restartOnly = append(restartOnly, "metrics")
	}
	if old.Pprof != next.Pprof {
		restartOnly = append(restartOnly, "pprof")
	}
	return applied, restartOnly
}

// loggingEqual compares by value through the Console pointer.
func loggingEqual(a, b LoggingConfig) bool {
	if a.Level != b.Level || a.File != b.File {
		return false
	}
	return a.ConsoleEnabled() == b.ConsoleEnabled()
}
