package config

import "fmt"

// Load reads the service table and settings every command needs.
func Load(paths *Paths) (*Table, *Settings, error) {
	table, err := LoadTable(paths)
	if err != nil {
		return nil, nil, err
	}

	settings, err := NewSettingsManager(paths).LoadOrDefault()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return table, settings, nil
}
