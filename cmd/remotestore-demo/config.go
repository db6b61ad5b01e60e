package main

import (
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relaydb/remotestore/internal/logging"
	"github.com/relaydb/remotestore/internal/remotestore"
)

// demoConfig is the top-level configuration for this binary, following the
// teacher's yaml-tagged-struct-plus-ApplyDefaults convention, scaled down to
// the one service this binary runs.
type demoConfig struct {
	Logging logging.Config     `yaml:"logging"`
	Backend backendConfig      `yaml:"backend"`
	Remote  remotestore.Config `yaml:"remote"`
}

// backendConfig describes the wsdatastore endpoint this demo dials, and the
// bundled in-process server backing it when no external backend is given.
type backendConfig struct {
	URL                      string   `yaml:"url"`
	ListenAddr               string   `yaml:"listen_addr"`
	PermanentErrorCodes      []string `yaml:"permanent_error_codes"`
	PermanentWriteErrorCodes []string `yaml:"permanent_write_error_codes"`
}

func defaultDemoConfig() *demoConfig {
	return &demoConfig{
		Logging: logging.DefaultConfig(),
		Backend: backendConfig{
			ListenAddr:               ":8089",
			URL:                      "ws://127.0.0.1:8089/ws",
			PermanentErrorCodes:      []string{"permission-denied", "not-found", "failed-precondition"},
			PermanentWriteErrorCodes: []string{"permission-denied", "invalid-argument", "failed-precondition"},
		},
		Remote: remotestore.DefaultConfig(),
	}
}

// loadDemoConfig loads config/config.yml over the defaults, mirroring the
// teacher's LoadConfig: defaults first, then an optional file overrides
// them, then ApplyDefaults fills whatever the file left blank.
func loadDemoConfig() *demoConfig {
	cfg := defaultDemoConfig()
	loadDemoConfigFile("config/config.yml", cfg)

	cfg.Logging.ApplyDefaults()
	cfg.Remote.ApplyDefaults()
	if cfg.Backend.ListenAddr == "" {
		cfg.Backend.ListenAddr = ":8089"
	}
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = "ws://127.0.0.1:8089/ws"
	}
	return cfg
}

func loadDemoConfigFile(filename string, cfg *demoConfig) {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		log.Printf("Warning: Error reading %s: %v", filename, err)
		return
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("Warning: Error parsing %s: %v", filename, err)
	}
}
