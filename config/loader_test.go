// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 5000, cfg.Server.HTTPPort)
	assert.Equal(t, "localhost:9000", cfg.Upstream.Address())
	assert.Equal(t, 3000, cfg.Stream.BufferCapacity)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
server:
  http_port: 8888
  read_timeout: 60s
  cors_allowed_origins:
    - "https://dashboard.example.com"

upstream:
  host: "sensor.local"
  port: 9100
  reconnect_delay: 1s

stream:
  arity: 4
  buffer_capacity: 500

gateway:
  path: "/stream"
  send_timeout: 500ms
  allowed_origins: ["*"]

log:
  level: "debug"
  format: "console"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://dashboard.example.com"}, cfg.Server.CORSAllowedOrigins)

	assert.Equal(t, "sensor.local:9100", cfg.Upstream.Address())
	assert.Equal(t, time.Second, cfg.Upstream.ReconnectDelay)
	// 文件未覆盖的字段保留默认值
	assert.Equal(t, 3*time.Second, cfg.Upstream.DialTimeout)

	assert.Equal(t, 4, cfg.Stream.Arity)
	assert.Equal(t, 500, cfg.Stream.BufferCapacity)

	assert.Equal(t, "/stream", cfg.Gateway.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Gateway.SendTimeout)
	assert.Equal(t, []string{"*"}, cfg.Gateway.AllowedOrigins)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("SAMPLEFLOW_SERVER_HTTP_PORT", "7777")
	t.Setenv("SAMPLEFLOW_UPSTREAM_HOST", "producer")
	t.Setenv("SAMPLEFLOW_UPSTREAM_RECONNECT_DELAY", "250ms")
	t.Setenv("SAMPLEFLOW_STREAM_BUFFER_CAPACITY", "42")
	t.Setenv("SAMPLEFLOW_GATEWAY_ALLOWED_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("SAMPLEFLOW_GATEWAY_READ_LIMIT", "1024")
	t.Setenv("SAMPLEFLOW_TELEMETRY_ENABLED", "true")
	t.Setenv("SAMPLEFLOW_TELEMETRY_SAMPLE_RATE", "0.5")
	t.Setenv("SAMPLEFLOW_LOG_LEVEL", "warn")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, "producer", cfg.Upstream.Host)
	assert.Equal(t, 250*time.Millisecond, cfg.Upstream.ReconnectDelay)
	assert.Equal(t, 42, cfg.Stream.BufferCapacity)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Gateway.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.Gateway.ReadLimit)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.InDelta(t, 0.5, cfg.Telemetry.SampleRate, 1e-9)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("upstream:\n  port: 9100\n"), 0o644))

	t.Setenv("SAMPLEFLOW_UPSTREAM_PORT", "9200")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, 9200, cfg.Upstream.Port)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("RELAY_STREAM_ARITY", "3")

	cfg, err := NewLoader().WithEnvPrefix("RELAY").Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Stream.Arity)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("server: [unclosed"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("SAMPLEFLOW_UPSTREAM_RECONNECT_DELAY", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAMPLEFLOW_UPSTREAM_RECONNECT_DELAY")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("SAMPLEFLOW_STREAM_ARITY", "0")

	_, err := NewLoader().WithValidator((*Config).Validate).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream arity must be positive")
}

func TestMustLoad_PanicsOnBadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(":\n\t- bad"), 0o644))

	assert.Panics(t, func() { MustLoad(configPath) })
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"http port out of range", func(c *Config) { c.Server.HTTPPort = 70000 }, "invalid HTTP port"},
		{"metrics port clash", func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort }, "metrics port must differ"},
		{"metrics disabled", func(c *Config) { c.Server.MetricsPort = 0 }, ""},
		{"half tls", func(c *Config) { c.Server.TLSCertFile = "cert.pem" }, "must be set together"},
		{"empty upstream host", func(c *Config) { c.Upstream.Host = "" }, "upstream host is required"},
		{"zero reconnect delay", func(c *Config) { c.Upstream.ReconnectDelay = 0 }, "reconnect_delay"},
		{"zero capacity", func(c *Config) { c.Stream.BufferCapacity = 0 }, "buffer_capacity"},
		{"relative gateway path", func(c *Config) { c.Gateway.Path = "ws" }, "gateway path"},
		{"zero send timeout", func(c *Config) { c.Gateway.SendTimeout = 0 }, "send_timeout"},
		{"sample rate too high", func(c *Config) { c.Telemetry.SampleRate = 1.5 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateAggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stream.Arity = 0
	cfg.Gateway.ReadLimit = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream arity must be positive")
	assert.Contains(t, err.Error(), "gateway read_limit must be positive")
}
