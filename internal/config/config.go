// Package config decodes the proxy's on-disk configuration file into typed
// values. Flags remain the primary interface for the CLI (see
// internal/commands/server); a config file is an optional layer underneath
// them, decoded the same way the rest of this codebase turns a generic JSON
// payload into a typed value: mapstructure over a map[string]interface{}.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"

	"github.com/syrahproxy/syrah/internal/proxy"
)

// defaultDir is ~/.syrah, the certificate-artifact and rules-file home
// named in the external interfaces.
func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".syrah"
	}
	return filepath.Join(home, ".syrah")
}

// Config is the full set of tunables for `syrah server`, decodable from a
// JSON config file and overridable by flags.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	BridgeAddr string `mapstructure:"bridge_addr"`

	CADir     string `mapstructure:"ca_dir"`
	RulesFile string `mapstructure:"rules_file"`
	Intercept bool   `mapstructure:"intercept"`

	InsecureSkipVerifyUpstream bool `mapstructure:"insecure_skip_verify_upstream"`

	MetricsAddr   string `mapstructure:"metrics_addr"`
	ProfilingAddr string `mapstructure:"profiling_addr"`

	LogLevel string `mapstructure:"log_level"`
	LogJSON  bool   `mapstructure:"log_json"`

	UploadBytesPerSecond   int     `mapstructure:"upload_bytes_per_sec"`
	DownloadBytesPerSecond int     `mapstructure:"download_bytes_per_sec"`
	LossPercent            float64 `mapstructure:"loss_percent"`
}

// Default returns a Config with every field set to its documented default.
func Default() Config {
	dir := defaultDir()
	return Config{
		ListenAddr:    "0.0.0.0:8888",
		BridgeAddr:    "0.0.0.0:9999",
		CADir:         dir,
		RulesFile:     filepath.Join(dir, "rules.json"),
		Intercept:     false,
		MetricsAddr:   "",
		ProfilingAddr: "",
		LogLevel:      "info",
		LogJSON:       false,
	}
}

// LoadFile decodes a JSON config file at path over Default(), so any field
// the file omits keeps its default. A missing file is not an error: it
// yields Default() unchanged, since the CLI's flags are the primary
// interface and the config file is optional.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return cfg, err
	}
	if err := mapstructure.Decode(raw, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ProxyConfig projects the decoded Config onto the Connection Manager's
// own Config type, overlaying proxy.DefaultConfig's timeouts.
func (c Config) ProxyConfig() proxy.Config {
	pc := proxy.DefaultConfig()
	pc.ListenAddr = c.ListenAddr
	pc.Intercept = c.Intercept
	pc.InsecureSkipVerifyUpstream = c.InsecureSkipVerifyUpstream
	pc.Throttle = c.ThrottleConfig()
	return pc
}

// ThrottleConfig projects the decoded Config onto proxy.ThrottleConfig,
// returning nil (disabling throttling) when none of its fields are set.
func (c Config) ThrottleConfig() *proxy.ThrottleConfig {
	if c.UploadBytesPerSecond == 0 && c.DownloadBytesPerSecond == 0 && c.LossPercent == 0 {
		return nil
	}
	return &proxy.ThrottleConfig{
		UploadBytesPerSecond:   c.UploadBytesPerSecond,
		DownloadBytesPerSecond: c.DownloadBytesPerSecond,
		PacketLossPercent:      c.LossPercent,
	}
}
