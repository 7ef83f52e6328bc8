package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2*time.Second, cfg.Poll.Interval.Std())
	assert.Equal(t, 30, cfg.Poll.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.ProbeTimeout(), "probe timeout defaults to the interval")
	assert.Equal(t, "paymentConfirmed", cfg.Push.Channel)
	assert.Equal(t, "high", cfg.Alert.Severity)
	assert.Equal(t, 256, cfg.Ledger.Recent)
	assert.Empty(t, cfg.Store.Path)
}

func TestLoad_Full(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "full.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Poll.Interval.Std())
	assert.Equal(t, 10, cfg.Poll.MaxAttempts)
	assert.Equal(t, "http://localhost:8080/api", cfg.Probe.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.ProbeTimeout())
	assert.Equal(t, "localhost:6379", cfg.Push.RedisAddr)
	assert.Equal(t, "payments", cfg.Push.Channel)
	assert.Equal(t, "critical", cfg.Alert.Severity)
	assert.Equal(t, "staging", cfg.Alert.Environment)
	assert.Equal(t, 5, cfg.Alert.RatePerMinute)
	assert.Equal(t, 3*time.Second, cfg.Alert.SendTimeout.Std())
	assert.Equal(t, "https://alerts.example.com/hook", cfg.Alert.WebhookURL)
	assert.Equal(t, "payconfirm.alerts", cfg.Alert.RedisChannel)
	assert.Equal(t, 64, cfg.Ledger.Recent)
	assert.Equal(t, "/var/lib/payconfirm/state.db", cfg.Store.Path)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("poll:\n  max_attempts: 5\n"))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Poll.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Poll.Interval.Std())
	assert.Equal(t, "development", cfg.Alert.Environment)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown top-level key", "polling:\n  interval: 2s\n"},
		{"unknown nested key", "poll:\n  every: 2s\n"},
		{"interval without unit", "poll:\n  interval: 2\n"},
		{"zero attempts", "poll:\n  max_attempts: 0\n"},
		{"fractional attempts", "poll:\n  max_attempts: 1.5\n"},
		{"bad severity", "alert:\n  severity: urgent\n"},
		{"non-http probe url", "probe:\n  base_url: ftp://example.com\n"},
		{"empty channel", "push:\n  channel: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("poll: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse yaml")
}

func TestValidate_CrossField(t *testing.T) {
	cfg := Default()
	cfg.Alert.RedisChannel = "alerts"
	assert.ErrorContains(t, cfg.Validate(), "redis_addr")

	cfg.Push.RedisAddr = "localhost:6379"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDuration_YAML(t *testing.T) {
	var v struct {
		D Duration `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("d: 1m30s\n"), &v))
	assert.Equal(t, 90*time.Second, v.D.Std())

	out, err := yaml.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, "d: 1m30s\n", string(out))

	assert.Error(t, yaml.Unmarshal([]byte("d: soon\n"), &v))
}
