// Package config loads the servalguard YAML configuration.
//
// Every field has a default, so an empty file (or no file at all) yields a
// working in-memory setup. Unknown keys are rejected.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/khill1269/servalsheets-sub001/internal/diff"
	"github.com/khill1269/servalsheets-sub001/internal/docstore/memstore"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/txn"
)

// Store backends.
const (
	BackendMemory  = "memory"
	BackendGSheets = "gsheets"
)

// Registry backends.
const (
	RegistryMemory = "memory"
	RegistrySQLite = "sqlite"
	RegistryRedis  = "redis"
)

// Config is the root configuration.
type Config struct {
	Store        StoreConfig       `yaml:"store"`
	Transactions TransactionConfig `yaml:"transactions"`
	Snapshots    SnapshotConfig    `yaml:"snapshots"`
	Diff         DiffConfig        `yaml:"diff"`
	SQLite       SQLiteConfig      `yaml:"sqlite"`
	Redis        RedisConfig       `yaml:"redis"`
	Telemetry    TelemetryConfig   `yaml:"telemetry"`

	// PolicyDir holds CUE policy files. Empty disables policy defaults.
	PolicyDir string `yaml:"policy_dir"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Backend string `yaml:"backend"`

	// CredentialsFile is a service-account JSON key for the gsheets backend.
	// Empty uses application default credentials.
	CredentialsFile string `yaml:"credentials_file,omitempty"`

	// RateLimit and Burst bound requests per second to the store.
	// Zero disables the quota.
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	Burst     int     `yaml:"burst,omitempty"`

	// Documents seed the memory backend.
	Documents []memstore.Seed `yaml:"documents,omitempty"`
}

// TransactionConfig selects the transaction registry.
type TransactionConfig struct {
	Registry string        `yaml:"registry"`
	TTL      time.Duration `yaml:"ttl"`
}

// SnapshotConfig selects the snapshot registry and its failure policy.
type SnapshotConfig struct {
	Registry string                `yaml:"registry"`
	Policy   engine.SnapshotPolicy `yaml:"policy"`

	// MaxAge and MaxPerDocument drive "snapshots prune". Zero disables
	// each rule.
	MaxAge         time.Duration `yaml:"max_age,omitempty"`
	MaxPerDocument int           `yaml:"max_per_document,omitempty"`
}

// DiffConfig tunes diff tiers.
type DiffConfig struct {
	CostBudget int `yaml:"cost_budget"`
	SampleRows int `yaml:"sample_rows"`
	RandomRows int `yaml:"random_rows"`
}

// SQLiteConfig locates the durable registry database.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig locates the transaction registry server.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	Prefix   string        `yaml:"prefix"`
	Retain   time.Duration `yaml:"retain,omitempty"`
}

// TelemetryConfig enables OTLP export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	d := diff.DefaultConfig()
	return &Config{
		Store:        StoreConfig{Backend: BackendMemory},
		Transactions: TransactionConfig{Registry: RegistryMemory, TTL: txn.DefaultTTL},
		Snapshots:    SnapshotConfig{Registry: RegistryMemory, Policy: engine.SnapshotFailOpen},
		Diff: DiffConfig{
			CostBudget: d.CostBudget,
			SampleRows: d.SampleRows,
			RandomRows: d.RandomRows,
		},
		SQLite: SQLiteConfig{Path: "servalguard.db"},
		Redis:  RedisConfig{Addr: "localhost:6379", Prefix: "servalguard:txn:"},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Insecure:    true,
			ServiceName: "servalguard",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty document leaves the defaults in place.
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing YAML: %w", err)
	}
	return c.Validate()
}

// Validate checks value ranges and cross-field requirements.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch c.Store.Backend {
	case BackendMemory, BackendGSheets:
	default:
		add("store.backend: unknown backend %q", c.Store.Backend)
	}
	if c.Store.RateLimit < 0 || c.Store.Burst < 0 {
		add("store: rate_limit and burst must be non-negative")
	}
	if c.Store.RateLimit > 0 && c.Store.Burst == 0 {
		add("store.burst: required when rate_limit is set")
	}
	if len(c.Store.Documents) > 0 && c.Store.Backend != BackendMemory {
		add("store.documents: only the memory backend can be seeded")
	}

	switch c.Transactions.Registry {
	case RegistryMemory, RegistrySQLite, RegistryRedis:
	default:
		add("transactions.registry: unknown registry %q", c.Transactions.Registry)
	}
	if c.Transactions.TTL <= 0 {
		add("transactions.ttl: must be positive")
	}

	switch c.Snapshots.Registry {
	case RegistryMemory, RegistrySQLite:
	default:
		add("snapshots.registry: unknown registry %q", c.Snapshots.Registry)
	}
	switch c.Snapshots.Policy {
	case engine.SnapshotFailOpen, engine.SnapshotFailClosed:
	default:
		add("snapshots.policy: must be %q or %q", engine.SnapshotFailOpen, engine.SnapshotFailClosed)
	}
	if c.Snapshots.MaxAge < 0 || c.Snapshots.MaxPerDocument < 0 {
		add("snapshots: max_age and max_per_document must be non-negative")
	}

	if c.Diff.CostBudget <= 0 || c.Diff.SampleRows <= 0 || c.Diff.RandomRows < 0 {
		add("diff: cost_budget and sample_rows must be positive, random_rows non-negative")
	}

	if c.usesSQLite() && c.SQLite.Path == "" {
		add("sqlite.path: required by the sqlite registry")
	}
	if c.Transactions.Registry == RegistryRedis && c.Redis.Addr == "" {
		add("redis.addr: required by the redis registry")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		add("telemetry.endpoint: required when telemetry is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

func (c *Config) usesSQLite() bool {
	return c.Transactions.Registry == RegistrySQLite || c.Snapshots.Registry == RegistrySQLite
}

// DiffSettings converts the diff section for the engine.
func (c *Config) DiffSettings() diff.Config {
	return diff.Config{
		CostBudget: c.Diff.CostBudget,
		SampleRows: c.Diff.SampleRows,
		RandomRows: c.Diff.RandomRows,
	}
}
