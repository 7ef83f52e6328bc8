// Package config loads payconfirm configuration files.
//
// A file is YAML. It is first checked against the embedded CUE schema
// (schema.cue), which rejects unknown keys and malformed values, then
// decoded over Default() so omitted keys keep their defaults.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config is the full configuration of a payconfirm process.
type Config struct {
	Poll   PollConfig   `yaml:"poll" json:"poll"`
	Probe  ProbeConfig  `yaml:"probe" json:"probe"`
	Push   PushConfig   `yaml:"push" json:"push"`
	Alert  AlertConfig  `yaml:"alert" json:"alert"`
	Ledger LedgerConfig `yaml:"ledger" json:"ledger"`
	Store  StoreConfig  `yaml:"store" json:"store"`
}

// PollConfig is fixed for the lifetime of a coordinator.
type PollConfig struct {
	Interval    Duration `yaml:"interval" json:"interval"`
	MaxAttempts int      `yaml:"max_attempts" json:"max_attempts"`
}

// ProbeConfig locates the confirmation collaborator.
type ProbeConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Timeout bounds one probe call. Zero means the poll interval.
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

// PushConfig configures the push channel. An empty RedisAddr disables it.
type PushConfig struct {
	RedisAddr string `yaml:"redis_addr" json:"redis_addr"`
	Channel   string `yaml:"channel" json:"channel"`
}

// AlertConfig configures timeout escalation. With neither WebhookURL nor
// RedisChannel set, alerts are only logged.
type AlertConfig struct {
	Severity      string   `yaml:"severity" json:"severity"`
	Environment   string   `yaml:"environment" json:"environment"`
	RatePerMinute int      `yaml:"rate_per_minute" json:"rate_per_minute"`
	SendTimeout   Duration `yaml:"send_timeout" json:"send_timeout"`
	WebhookURL    string   `yaml:"webhook_url" json:"webhook_url"`
	RedisChannel  string   `yaml:"redis_channel" json:"redis_channel"`
}

// LedgerConfig sizes the in-memory alert ledger.
type LedgerConfig struct {
	Recent int `yaml:"recent" json:"recent"`
}

// StoreConfig locates the sqlite database. Empty keeps everything in memory.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Poll: PollConfig{
			Interval:    Duration(2 * time.Second),
			MaxAttempts: 30,
		},
		Push: PushConfig{
			Channel: "paymentConfirmed",
		},
		Alert: AlertConfig{
			Severity:      "high",
			Environment:   "development",
			RatePerMinute: 60,
			SendTimeout:   Duration(10 * time.Second),
		},
		Ledger: LedgerConfig{
			Recent: 256,
		},
	}
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates data against the schema and decodes it over Default().
func Parse(data []byte) (*Config, error) {
	if err := CheckSchema(data); err != nil {
		return nil, err
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CheckSchema unifies the YAML document in data with #Config.
func CheckSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be positive")
	}
	if c.Poll.MaxAttempts < 1 {
		return fmt.Errorf("poll.max_attempts must be at least 1")
	}
	if c.Probe.Timeout < 0 {
		return fmt.Errorf("probe.timeout must not be negative")
	}
	if c.Push.Channel == "" {
		return fmt.Errorf("push.channel is required")
	}
	if c.Alert.RedisChannel != "" && c.Push.RedisAddr == "" {
		return fmt.Errorf("alert.redis_channel needs push.redis_addr")
	}
	return nil
}

// ProbeTimeout returns the effective per-probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	if c.Probe.Timeout > 0 {
		return c.Probe.Timeout.Std()
	}
	return c.Poll.Interval.Std()
}

// Duration is a time.Duration written as a Go duration string ("2s").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"2s\"", node.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// MarshalText implements encoding.TextMarshaler, used by JSON output.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
