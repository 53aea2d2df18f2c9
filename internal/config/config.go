package config

import "time"

// FailurePolicy decides what a failed cycle does to the process.
type FailurePolicy string

const (
	// FailExit stops the daemon after the first failed cycle.
	FailExit FailurePolicy = "exit"
	// FailContinue logs the failure and waits for the next trigger.
	FailContinue FailurePolicy = "continue"
)

type Config struct {
	SourcePaths     []string        `koanf:"source_paths"`
	DestinationPath string          `koanf:"destination_path"`
	Retention       RetentionConfig `koanf:"retention"`
	Schedule        ScheduleConfig  `koanf:"schedule"`
	Debug           bool            `koanf:"debug"`
	UTCNames        bool            `koanf:"utc_names"`
	OnFailure       FailurePolicy   `koanf:"on_failure"`
	Mirror          MirrorConfig    `koanf:"mirror"`
	Log             LogConfig       `koanf:"log"`
	Metrics         MetricsConfig   `koanf:"metrics"`
	Reload          ReloadConfig    `koanf:"reload"`
}

type RetentionConfig struct {
	Keep          int  `koanf:"keep"`
	OnlySnapshots bool `koanf:"only_snapshots"`
}

// ScheduleConfig holds the two mutually exclusive schedule forms. An
// interval of 0 means unset.
type ScheduleConfig struct {
	IntervalMinutes int    `koanf:"interval_minutes"`
	Time            string `koanf:"time"` // "HH:MM", local time
}

type MirrorConfig struct {
	Command     string        `koanf:"command"`
	Args        []string      `koanf:"args"`
	RemoteShell string        `koanf:"remote_shell"`
	Timeout     time.Duration `koanf:"timeout"` // 0 = no limit
	Parallelism int           `koanf:"parallelism"`
}

type LogConfig struct {
	File  string `koanf:"file"` // empty = stderr
	Level string `koanf:"level"`
}

type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// ReloadConfig controls watching the config file. SIGHUP reloads
// regardless of Enabled.
type ReloadConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Mode         string        `koanf:"mode"` // "auto", "poll", "fsnotify"
	PollInterval time.Duration `koanf:"poll_interval"`
	Debounce     time.Duration `koanf:"debounce"`
}

// Location is the time zone snapshot names are written in.
func (c *Config) Location() *time.Location {
	if c.UTCNames {
		return time.UTC
	}
	return time.Local
}

func defaults() map[string]any {
	return map[string]any{
		"on_failure": string(FailExit),
		"retention": map[string]any{
			"only_snapshots": false,
		},
		"mirror": map[string]any{
			"command":     "rsync",
			"args":        []string{"-av"},
			"parallelism": 1,
		},
		"log": map[string]any{
			"level": "info",
		},
		"reload": map[string]any{
			"enabled":       false,
			"mode":          "auto",
			"poll_interval": "5s",
			"debounce":      "500ms",
		},
	}
}
