package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 6053, cfg.Port)
	assert.Equal(t, "bleproxy", cfg.Name)
	assert.Equal(t, "Bluetooth Proxy", cfg.FriendlyName)
	assert.Empty(t, cfg.Password)
	assert.True(t, cfg.ActiveConnections)
	assert.Equal(t, 3, cfg.MaxConnections)
	assert.Equal(t, 16, cfg.BatchSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: 127.0.0.1
port: 7053
name: hallway-proxy
password: secret
active_connections: false
log_level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 7053, cfg.Port)
	assert.Equal(t, "hallway-proxy", cfg.Name)
	assert.Equal(t, "secret", cfg.Password)
	assert.False(t, cfg.ActiveConnections)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Unset keys keep their defaults
	assert.Equal(t, "Bluetooth Proxy", cfg.FriendlyName)
	assert.Equal(t, 3, cfg.MaxConnections)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [not a number"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.Port = 0 },
			wantErr: "invalid port",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Port = 70000 },
			wantErr: "invalid port",
		},
		{
			name:    "max_connections zero",
			mutate:  func(c *Config) { c.MaxConnections = 0 },
			wantErr: "max_connections",
		},
		{
			name:    "batch_size zero",
			mutate:  func(c *Config) { c.BatchSize = 0 },
			wantErr: "batch_size",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "chatty" },
			wantErr: "invalid log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: "debug",
			want:     logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: "info",
			want:     logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: "warn",
			want:     logrus.WarnLevel,
		},
		{
			name:     "creates logger with error level",
			logLevel: "error",
			want:     logrus.ErrorLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LogLevel = tt.logLevel

			logger, err := cfg.NewLogger()
			require.NoError(t, err)
			assert.Equal(t, tt.want, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestConfig_NewLogger_InvalidLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loudest"

	_, err := cfg.NewLogger()
	assert.Error(t, err)
}

func TestConfig_NewLogger_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	cfg := DefaultConfig()
	cfg.LogFile = path

	logger, err := cfg.NewLogger()
	require.NoError(t, err)

	logger.Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
