package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. RNDRWATCH_NTFY_TOPIC.
const EnvPrefix = "RNDRWATCH_"

// Load reads settings from path, layered as defaults < file < environment.
// A missing file is not an error. Files ending in .json are read as the
// legacy JSON settings format.
func Load(path string) (*Settings, error) {
	k := koanf.New(".")

	for key, value := range defaultsMap() {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			var parser koanf.Parser = kyaml.Parser()
			if strings.EqualFold(filepath.Ext(path), ".json") {
				parser = json.Parser()
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	s.FilePath = path
	s.normalize()
	return &s, nil
}

// Parse decodes YAML settings data on top of the defaults.
func Parse(data []byte) (*Settings, error) {
	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	s.normalize()
	return s, nil
}

// Save writes s to path as YAML, creating parent directories as needed.
func Save(s *Settings, path string) error {
	if path == "" {
		return errors.New("settings path is empty")
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace settings: %w", err)
	}
	s.FilePath = path
	return nil
}

func (s *Settings) normalize() {
	s.NtfyTopic = strings.TrimSpace(s.NtfyTopic)
	s.NtfyServer = strings.TrimRight(strings.TrimSpace(s.NtfyServer), "/")
	s.DefaultLogFile = expandPath(s.DefaultLogFile)
	s.TestLogFile = expandPath(s.TestLogFile)
}

func defaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"ntfy_topic":          d.NtfyTopic,
		"ntfy_server":         d.NtfyServer,
		"default_logfile":     d.DefaultLogFile,
		"test_logfile":        d.TestLogFile,
		"use_test_logfile":    d.UseTestLogFile,
		"autostart_enabled":   d.AutostartEnabled,
		"popup_notifications": d.PopupNotifications,
		"completion_delay":    d.CompletionDelay,
		"check_interval":      d.CheckInterval,
	}
}

// envTransform maps RNDRWATCH_CHECK_INTERVAL to check_interval.
func envTransform(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}
