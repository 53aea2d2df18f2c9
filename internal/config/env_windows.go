//go:build windows

package config

// windowsEnv maps Unix variable names used in $(VAR) placeholders to their
// Windows equivalents, so one config file serves both.
var windowsEnv = map[string]string{
	"HOSTNAME": "COMPUTERNAME",
	"HOME":     "USERPROFILE",
	"USER":     "USERNAME",
	"TMPDIR":   "TEMP",
}

func mapEnvKey(key string) string {
	if win, ok := windowsEnv[key]; ok {
		return win
	}
	return key
}
