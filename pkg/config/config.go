// Package config loads the daemons' YAML configuration, layered under the
// cobra flags each cmd/ binary registers on top of it (flags win over file
// values, file values win over the defaults below).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every directory and port the daemons need, with defaults
// matching the reference deployment.
type Config struct {
	// LockDir holds named-lock (".sem") and shared-memory (".mem") tokens.
	LockDir string `yaml:"lock_dir"`
	// HistoryDir holds per-metric history files (".mhf").
	HistoryDir string `yaml:"history_dir"`

	// UDPPort is the history daemon's ingest listener port.
	UDPPort int `yaml:"udp_port"`
	// HistoryHTTPPort serves history-file queries.
	HistoryHTTPPort int `yaml:"history_http_port"`
	// SampleHTTPPort serves live counter-table samples.
	SampleHTTPPort int `yaml:"sample_http_port"`

	// Docroot is the static-file root served by the sample server's
	// catch-all route. Empty disables the static fallback.
	Docroot string `yaml:"docroot"`

	// TableName is the shared counter table's stable name.
	TableName string `yaml:"table_name"`

	// IndexCapacity sizes the history daemon's in-memory metric index.
	IndexCapacity int `yaml:"index_capacity"`
}

// Default returns the reference deployment's defaults.
func Default() Config {
	return Config{
		LockDir:         "/tmp",
		HistoryDir:      "/mnt/tmp",
		UDPPort:         7010,
		HistoryHTTPPort: 4000,
		SampleHTTPPort:  8080,
		Docroot:         "",
		TableName:       "gostats",
		IndexCapacity:   3001,
	}
}

// Load reads path, if non-empty, and overlays it onto Default. A missing
// path is not an error: the caller gets the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
