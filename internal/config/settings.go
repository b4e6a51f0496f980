package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPython      = "python3"
	defaultHost        = "0.0.0.0"
	defaultStopTimeout = 10
	defaultStartGrace  = 1
)

// SettingKeys lists the keys accepted by `harness setting set`.
var SettingKeys = []string{"python", "host", "stop-timeout", "start-grace", "env-file"}

// Settings holds persisted user-configurable settings.
type Settings struct {
	BaseDir     string `json:"base-dir"`
	Python      string `json:"python"`       // interpreter used to create virtual environments
	Host        string `json:"host"`         // default bind address
	StopTimeout int    `json:"stop-timeout"` // seconds between SIGTERM and SIGKILL
	StartGrace  int    `json:"start-grace"`  // seconds a detached child must survive
	EnvFile     string `json:"env-file"`     // key=value file exported into services
}

// StopTimeoutDuration returns StopTimeout as a time.Duration.
func (s *Settings) StopTimeoutDuration() time.Duration {
	return time.Duration(s.StopTimeout) * time.Second
}

// StartGraceDuration returns StartGrace as a time.Duration.
func (s *Settings) StartGraceDuration() time.Duration {
	return time.Duration(s.StartGrace) * time.Second
}

// Value returns the string form of a setting.
func (s *Settings) Value(key string) (string, error) {
	switch key {
	case "base-dir":
		return s.BaseDir, nil
	case "python":
		return s.Python, nil
	case "host":
		return s.Host, nil
	case "stop-timeout":
		return strconv.Itoa(s.StopTimeout), nil
	case "start-grace":
		return strconv.Itoa(s.StartGrace), nil
	case "env-file":
		return s.EnvFile, nil
	default:
		return "", unknownKeyError(key)
	}
}

// Set parses and assigns a setting.
func (s *Settings) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "base-dir":
		return fmt.Errorf("base-dir is static; set %s instead", EnvHome)
	case "python":
		if value == "" {
			return fmt.Errorf("python must not be empty")
		}
		s.Python = value
	case "host":
		if value == "" {
			return fmt.Errorf("host must not be empty")
		}
		s.Host = value
	case "stop-timeout", "start-grace":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative number of seconds, got %q", key, value)
		}
		if key == "stop-timeout" {
			s.StopTimeout = n
		} else {
			s.StartGrace = n
		}
	case "env-file":
		s.EnvFile = value
	default:
		return unknownKeyError(key)
	}
	return nil
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown setting key %q (supported: %s)", key, strings.Join(SettingKeys, ", "))
}

// SettingsManager handles settings persistence.
type SettingsManager struct {
	paths *Paths
}

// NewSettingsManager creates a settings manager.
func NewSettingsManager(paths *Paths) *SettingsManager {
	return &SettingsManager{paths: paths}
}

// Path returns the settings file path.
func (sm *SettingsManager) Path() string {
	return sm.paths.SettingsFile()
}

// Load reads settings from disk.
func (sm *SettingsManager) Load() (*Settings, error) {
	data, err := os.ReadFile(sm.Path())
	if err != nil {
		return nil, err
	}

	settings := defaultSettings(sm.paths.BaseDir)
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}
	sm.sanitize(settings)

	return settings, nil
}

// Save writes settings to disk.
func (sm *SettingsManager) Save(settings *Settings) error {
	if settings == nil {
		return fmt.Errorf("settings required")
	}
	sm.sanitize(settings)

	if err := os.MkdirAll(sm.paths.SettingsDir(), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return os.WriteFile(sm.Path(), append(data, '\n'), 0644)
}

// LoadOrDefault reads settings if available, otherwise returns runtime defaults.
func (sm *SettingsManager) LoadOrDefault() (*Settings, error) {
	settings, err := sm.Load()
	if err == nil {
		return settings, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	return defaultSettings(sm.paths.BaseDir), nil
}

func defaultSettings(baseDir string) *Settings {
	return &Settings{
		BaseDir:     baseDir,
		Python:      defaultPython,
		Host:        defaultHost,
		StopTimeout: defaultStopTimeout,
		StartGrace:  defaultStartGrace,
		EnvFile:     DefaultEnvFile,
	}
}

func (sm *SettingsManager) sanitize(settings *Settings) {
	// base-dir is static and derived from runtime paths.
	settings.BaseDir = sm.paths.BaseDir

	settings.Python = strings.TrimSpace(settings.Python)
	if settings.Python == "" {
		settings.Python = defaultPython
	}
	settings.Host = strings.TrimSpace(settings.Host)
	if settings.Host == "" {
		settings.Host = defaultHost
	}
	if settings.StopTimeout < 0 {
		settings.StopTimeout = defaultStopTimeout
	}
	if settings.StartGrace < 0 {
		settings.StartGrace = defaultStartGrace
	}
	settings.EnvFile = strings.TrimSpace(settings.EnvFile)
	if settings.EnvFile == "" {
		settings.EnvFile = DefaultEnvFile
	}
}
