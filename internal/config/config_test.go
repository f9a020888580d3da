package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parley.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
address: agent-a
directory:
  url: http://localhost:9002
  api_key: secret
  declared_name: tester
channel:
  queue_size: 32
  workers: 2
  ping_period: 10m
  probe_period: 5s
  search_delay: 2s
  retry_attempts: 4
  retry_delay: 3s
token_store:
  kind: file
  path: /tmp/parley-token
log:
  level: debug
  format: json
metrics_listen: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "agent-a", cfg.Address)
	assert.Equal(t, "http://localhost:9002", cfg.Directory.URL)
	assert.Equal(t, "secret", cfg.Directory.APIKey)
	assert.Equal(t, 32, cfg.Channel.QueueSize)
	assert.Equal(t, 10*time.Minute, cfg.Channel.PingPeriod.Std())
	assert.Equal(t, 5*time.Second, cfg.Channel.ProbePeriod.Std())
	assert.Equal(t, 4, cfg.Channel.RetryAttempts)
	assert.Equal(t, "file", cfg.TokenStore.Kind)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.MetricsListen)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
address: agent-a
directory:
  url: http://localhost:9002
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "none", cfg.TokenStore.Kind)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing address", "directory:\n  url: http://x\n"},
		{"missing directory url", "address: agent-a\n"},
		{"unknown token store", "address: a\ndirectory:\n  url: http://x\ntoken_store:\n  kind: etcd\n"},
		{"file store without path", "address: a\ndirectory:\n  url: http://x\ntoken_store:\n  kind: file\n"},
		{"redis store without addr", "address: a\ndirectory:\n  url: http://x\ntoken_store:\n  kind: redis\n"},
		{"bad duration", "address: a\ndirectory:\n  url: http://x\nchannel:\n  ping_period: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
