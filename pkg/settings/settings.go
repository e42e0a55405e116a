// Package settings loads and stores the monitor's persistent settings.
package settings

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Bounds for the tunable monitor parameters, in seconds.
const (
	MinCompletionDelay = 120
	MaxCompletionDelay = 900
	MinCheckInterval   = 1
	MaxCheckInterval   = 120

	DefaultCompletionDelay = 300
	DefaultCheckInterval   = 30
)

// Settings is the on-disk settings file.
type Settings struct {
	NtfyTopic          string `koanf:"ntfy_topic"          yaml:"ntfy_topic"          json:"ntfy_topic"          validate:"omitempty,max=64,excludesall=/?#"`
	NtfyServer         string `koanf:"ntfy_server"         yaml:"ntfy_server"         json:"ntfy_server"         validate:"omitempty,url"`
	DefaultLogFile     string `koanf:"default_logfile"     yaml:"default_logfile"     json:"default_logfile"     validate:"required"`
	TestLogFile        string `koanf:"test_logfile"        yaml:"test_logfile"        json:"test_logfile"        validate:"required"`
	UseTestLogFile     bool   `koanf:"use_test_logfile"    yaml:"use_test_logfile"    json:"use_test_logfile"`
	AutostartEnabled   bool   `koanf:"autostart_enabled"   yaml:"autostart_enabled"   json:"autostart_enabled"`
	PopupNotifications bool   `koanf:"popup_notifications" yaml:"popup_notifications" json:"popup_notifications"`
	CompletionDelay    int    `koanf:"completion_delay"    yaml:"completion_delay"    json:"completion_delay"    validate:"min=120,max=900"`
	CheckInterval      int    `koanf:"check_interval"      yaml:"check_interval"      json:"check_interval"      validate:"min=1,max=120"`

	// FilePath is where the settings were loaded from (not serialized).
	FilePath string `koanf:"-" yaml:"-" json:"-"`
}

// Default returns settings populated with the render client's standard paths.
func Default() *Settings {
	dir := dataDir()
	return &Settings{
		NtfyServer:      "https://ntfy.sh",
		DefaultLogFile:  filepath.Join(dir, "rndr_log.txt"),
		TestLogFile:     filepath.Join(dir, "rndr_log_testing.txt"),
		CompletionDelay: DefaultCompletionDelay,
		CheckInterval:   DefaultCheckInterval,
	}
}

// DefaultPath returns the per-user settings file location.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "rndrwatch", "settings.yaml"), nil
}

// LogFile returns the log the monitor should watch.
func (s Settings) LogFile() string {
	if s.UseTestLogFile {
		return s.TestLogFile
	}
	return s.DefaultLogFile
}

// CompletionDelayDuration returns CompletionDelay as a duration.
func (s Settings) CompletionDelayDuration() time.Duration {
	return time.Duration(s.CompletionDelay) * time.Second
}

// CheckIntervalDuration returns CheckInterval as a duration.
func (s Settings) CheckIntervalDuration() time.Duration {
	return time.Duration(s.CheckInterval) * time.Second
}

// dataDir is where the render client keeps its logs.
func dataDir() string {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, "OtoyRndrNetwork")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "OtoyRndrNetwork"
	}
	return filepath.Join(home, ".local", "share", "OtoyRndrNetwork")
}

// expandPath expands ~ and environment variables ($VAR, ${VAR}) in p.
func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
