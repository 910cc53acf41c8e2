// Package config loads NTRIP/connection settings from a YAML file,
// layering defaults under whatever the file supplies. Grounded on the
// goblimey-go-ntrip retrieval pack's jsonconfig.Config (same
// read-file/unmarshal/default shape), ported from JSON to YAML since
// gopkg.in/yaml.v3 is already in this module's dependency graph and no
// other component exercises it otherwise.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bramburn/rtkcore/internal/ntrip"
)

// File is the on-disk shape of a config file. Zero-valued fields fall
// back to ntrip.DefaultConfig()'s values in Resolve.
type File struct {
	CasterHost string `yaml:"casterHost"`
	CasterPort int    `yaml:"casterPort"`
	Mountpoint string `yaml:"mountpoint"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`

	SendGGA           *bool  `yaml:"sendGga"`
	ConnectionMode    string `yaml:"connectionMode"`
	ProxyURL          string `yaml:"proxyUrl"`
	WebsocketURL      string `yaml:"websocketUrl"`
	GGAUpdateInterval int    `yaml:"ggaUpdateIntervalSec"`

	AutoReconnect *bool `yaml:"autoReconnect"`
	MaxAttempts   int   `yaml:"maxAttempts"`
	AmbientTLS    bool  `yaml:"ambientTls"`

	SerialPort string `yaml:"serialPort"`
	SerialBaud int    `yaml:"serialBaud"`
}

// Load reads and parses path as a YAML File.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &f, nil
}

// Resolve merges f over ntrip.DefaultConfig(), so every field the file
// leaves unset takes its default. casterHost and mountpoint have no
// default, so the result fails Validate() unless the file sets both.
func (f *File) Resolve() ntrip.NtripConfig {
	cfg := ntrip.DefaultConfig()

	if f.CasterHost != "" {
		cfg.CasterHost = f.CasterHost
	}
	if f.CasterPort != 0 {
		cfg.CasterPort = f.CasterPort
	}
	if f.Mountpoint != "" {
		cfg.Mountpoint = f.Mountpoint
	}
	if f.Username != "" {
		cfg.Username = f.Username
	}
	if f.Password != "" {
		cfg.Password = f.Password
	}
	if f.SendGGA != nil {
		cfg.SendGGA = *f.SendGGA
	}
	if f.ConnectionMode != "" {
		cfg.ConnectionMode = ntrip.Mode(f.ConnectionMode)
	}
	if f.ProxyURL != "" {
		cfg.ProxyURL = f.ProxyURL
	}
	if f.WebsocketURL != "" {
		cfg.WebsocketURL = f.WebsocketURL
	}
	if f.GGAUpdateInterval != 0 {
		cfg.GGAUpdateInterval = time.Duration(f.GGAUpdateInterval) * time.Second
	}
	if f.AutoReconnect != nil {
		cfg.AutoReconnect = *f.AutoReconnect
	}
	if f.MaxAttempts != 0 {
		cfg.MaxAttempts = f.MaxAttempts
	}
	cfg.AmbientTLS = f.AmbientTLS

	return cfg
}
