package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFileMissingReturnsDefault(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFileEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFileOverlaysProvidedFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen_addr":"127.0.0.1:9000","intercept":true,"loss_percent":5}`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	require.True(t, cfg.Intercept)
	require.Equal(t, Default().BridgeAddr, cfg.BridgeAddr)
	require.Equal(t, 5.0, cfg.LossPercent)
}

func TestThrottleConfigNilWhenUnset(t *testing.T) {
	cfg := Default()
	require.Nil(t, cfg.ThrottleConfig())
}

func TestThrottleConfigSetWhenAnyFieldNonZero(t *testing.T) {
	cfg := Default()
	cfg.UploadBytesPerSecond = 1024
	tc := cfg.ThrottleConfig()
	require.NotNil(t, tc)
	require.Equal(t, 1024, tc.UploadBytesPerSecond)
}

func TestProxyConfigCarriesIntercept(t *testing.T) {
	cfg := Default()
	cfg.Intercept = true
	pc := cfg.ProxyConfig()
	require.True(t, pc.Intercept)
	require.Equal(t, cfg.ListenAddr, pc.ListenAddr)
}
