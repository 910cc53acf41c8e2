package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bramburn/rtkcore/internal/ntrip"
)

func writeTempConfig(t *testing.T, contents string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "rtkcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesYAMLFields(t *testing.T) {
	path := writeTempConfig(t, `
casterHost: rtk2go.com
casterPort: 2101
mountpoint: TEST
username: user
password: pass
connectionMode: proxy
proxyUrl: https://proxy.example
ggaUpdateIntervalSec: 30
maxAttempts: 3
`)

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rtk2go.com", f.CasterHost)
	assert.Equal(t, 2101, f.CasterPort)
	assert.Equal(t, "TEST", f.Mountpoint)
	assert.Equal(t, "proxy", f.ConnectionMode)
	assert.Equal(t, 30, f.GGAUpdateInterval)
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/rtkcore.yaml")
	assert.Error(t, err)
}

func TestResolveFillsDefaultsForZeroFields(t *testing.T) {
	f := &File{CasterHost: "host", Mountpoint: "MOUNT"}
	cfg := f.Resolve()

	assert.Equal(t, "host", cfg.CasterHost)
	assert.Equal(t, "MOUNT", cfg.Mountpoint)
	assert.Equal(t, 2101, cfg.CasterPort)
	assert.Equal(t, ntrip.ModeAuto, cfg.ConnectionMode)
	assert.Equal(t, 10*time.Second, cfg.GGAUpdateInterval)
	assert.True(t, cfg.SendGGA)
	assert.True(t, cfg.AutoReconnect)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestResolveOverridesDefaultsWhenFileSetsThem(t *testing.T) {
	sendGGA := false
	autoReconnect := false
	f := &File{
		CasterHost:        "host",
		Mountpoint:        "MOUNT",
		CasterPort:        2102,
		SendGGA:           &sendGGA,
		ConnectionMode:    "websocket",
		WebsocketURL:      "wss://bridge.example",
		GGAUpdateInterval: 5,
		AutoReconnect:     &autoReconnect,
		MaxAttempts:       1,
		AmbientTLS:        true,
	}

	cfg := f.Resolve()
	assert.Equal(t, 2102, cfg.CasterPort)
	assert.False(t, cfg.SendGGA)
	assert.Equal(t, ntrip.ModeWebsocket, cfg.ConnectionMode)
	assert.Equal(t, "wss://bridge.example", cfg.WebsocketURL)
	assert.Equal(t, 5*time.Second, cfg.GGAUpdateInterval)
	assert.False(t, cfg.AutoReconnect)
	assert.Equal(t, 1, cfg.MaxAttempts)
	assert.True(t, cfg.AmbientTLS)
	assert.NoError(t, cfg.Validate())
}
