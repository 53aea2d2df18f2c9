package config

import (
	"os"
	"strings"
)

// envKeys maps the recognised environment variables to config keys.
var envKeys = map[string]string{
	"SOURCE_PATHS":                "source_paths",
	"DESTINATION_PATH":            "destination_path",
	"NUMBER_OF_LAST_BACKUPS_KEPT": "retention.keep",
	"ONLY_SNAPSHOT_NAMES":         "retention.only_snapshots",
	"POOLING_INTERVAL_IN_MINUTES": "schedule.interval_minutes",
	"POOLING_IN_MINUTES":          "schedule.interval_minutes",
	"POOLING_TIME":                "schedule.time",
	"DEBUG":                       "debug",
	"SNAPSHOT_NAMES_UTC":          "utc_names",
	"ON_MIRROR_FAILURE":           "on_failure",
	"MIRROR_COMMAND":              "mirror.command",
	"MIRROR_ARGS":                 "mirror.args",
	"MIRROR_REMOTE_SHELL":         "mirror.remote_shell",
	"MIRROR_TIMEOUT":              "mirror.timeout",
	"MIRROR_PARALLELISM":          "mirror.parallelism",
	"LOG_FILE":                    "log.file",
	"LOG_LEVEL":                   "log.level",
	"METRICS_ADDR":                "metrics.addr",
	"CONFIG_RELOAD":               "reload.enabled",
}

// envValue translates one environment variable into a config key and value.
// An empty key tells the env provider to skip the variable.
func envValue(name, value string) (string, any) {
	key, ok := envKeys[name]
	if !ok {
		return "", nil
	}

	switch name {
	case "DEBUG":
		// Presence switches one-shot mode on.
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "0", "false", "no", "off":
			return key, false
		}
		return key, true
	case "POOLING_IN_MINUTES":
		if os.Getenv("POOLING_INTERVAL_IN_MINUTES") != "" {
			return "", nil
		}
	}

	if strings.TrimSpace(value) == "" {
		return "", nil
	}

	switch name {
	case "SOURCE_PATHS":
		return key, splitList(value)
	case "MIRROR_ARGS":
		return key, strings.Fields(value)
	}
	return key, value
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
