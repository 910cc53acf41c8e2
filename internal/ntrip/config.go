package ntrip

import (
	"fmt"
	"time"

	"github.com/bramburn/rtkcore/internal/rtkerr"
)

// Mode selects which transport(s) the Client will attempt.
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeDirect    Mode = "direct"
	ModeProxy     Mode = "proxy"
	ModeWebsocket Mode = "websocket"
)

// NtripConfig is the caller-facing configuration for a Client, matching
// the option set of spec §6 ("Configuration recognized options").
type NtripConfig struct {
	CasterHost string
	CasterPort int
	Mountpoint string
	Username   string
	Password   string

	SendGGA           bool
	ConnectionMode    Mode
	ProxyURL          string
	WebsocketURL      string
	GGAUpdateInterval time.Duration

	AutoReconnect bool
	MaxAttempts   int

	// AmbientTLS mirrors Config.AmbientTLS for the mixed-content guard.
	AmbientTLS bool
}

// DefaultConfig returns a NtripConfig with the spec's documented
// defaults: port 2101, auto mode, GGA on every 10s, up to 5 reconnect
// attempts.
func DefaultConfig() NtripConfig {
	return NtripConfig{
		CasterPort:        2101,
		SendGGA:           true,
		ConnectionMode:    ModeAuto,
		GGAUpdateInterval: 10 * time.Second,
		AutoReconnect:     true,
		MaxAttempts:       5,
	}
}

// Validate enforces the non-empty host/mountpoint invariant of spec
// §4.5 ("idle → connecting on connect(cfg) after validation"). Any
// other failure here is an *rtkerr.Error of kind Validation.
func (c NtripConfig) Validate() error {
	if c.CasterHost == "" {
		return rtkerr.New(rtkerr.Validation, "ntrip.Config.Validate", fmt.Errorf("casterHost is required"))
	}
	if c.Mountpoint == "" {
		return rtkerr.New(rtkerr.Validation, "ntrip.Config.Validate", fmt.Errorf("mountpoint is required"))
	}
	switch c.ConnectionMode {
	case ModeAuto, ModeDirect, ModeProxy, ModeWebsocket:
	default:
		return rtkerr.New(rtkerr.Validation, "ntrip.Config.Validate", fmt.Errorf("unknown connection mode %q", c.ConnectionMode))
	}
	if c.ConnectionMode == ModeProxy && c.ProxyURL == "" {
		return rtkerr.New(rtkerr.Validation, "ntrip.Config.Validate", fmt.Errorf("proxyUrl is required in proxy mode"))
	}
	if c.ConnectionMode == ModeWebsocket && c.WebsocketURL == "" {
		return rtkerr.New(rtkerr.Validation, "ntrip.Config.Validate", fmt.Errorf("websocketUrl is required in websocket mode"))
	}
	return nil
}

func (c NtripConfig) transportConfig() Config {
	return Config{
		CasterHost:   c.CasterHost,
		CasterPort:   c.CasterPort,
		Mountpoint:   c.Mountpoint,
		Username:     c.Username,
		Password:     c.Password,
		AmbientTLS:   c.AmbientTLS,
		ProxyURL:     c.ProxyURL,
		WebsocketURL: c.WebsocketURL,
	}
}
