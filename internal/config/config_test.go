package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/txn"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, txn.DefaultTTL, cfg.Transactions.TTL)
	assert.Equal(t, engine.SnapshotFailOpen, cfg.Snapshots.Policy)
	assert.Equal(t, 20000, cfg.DiffSettings().CostBudget)
}

func TestLoad_EmptyPathAndEmptyFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Testdata(t *testing.T) {
	cfg, err := Load("testdata/servalguard.yaml")
	require.NoError(t, err)

	assert.Equal(t, RegistrySQLite, cfg.Transactions.Registry)
	assert.Equal(t, 15*time.Minute, cfg.Transactions.TTL)
	assert.Equal(t, engine.SnapshotFailClosed, cfg.Snapshots.Policy)
	assert.Equal(t, 720*time.Hour, cfg.Snapshots.MaxAge)
	assert.Equal(t, 10, cfg.Snapshots.MaxPerDocument)
	assert.Equal(t, 5000, cfg.Diff.CostBudget)
	assert.Equal(t, 5, cfg.Diff.SampleRows, "unset keys keep their default")
	assert.Equal(t, "policies", cfg.PolicyDir)

	require.Len(t, cfg.Store.Documents, 1)
	doc := cfg.Store.Documents[0]
	assert.Equal(t, "budget", doc.ID)
	require.Len(t, doc.Sheets, 1)
	assert.Equal(t, []any{"Item", "Cost"}, doc.Sheets[0].Values[0])
	assert.Equal(t, []any{"Rent", 1200}, doc.Sheets[0].Values[1])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("store:\n  backend: memory\n  colour: blue\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "colour")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{"unknown backend", "store: {backend: excel}", "store.backend"},
		{"burst required", "store: {rate_limit: 5}", "store.burst"},
		{"seeding gsheets", "store: {backend: gsheets, documents: [{id: d}]}", "store.documents"},
		{"unknown registry", "transactions: {registry: etcd}", "transactions.registry"},
		{"zero ttl", "transactions: {ttl: 0s}", "transactions.ttl"},
		{"redis snapshots", "snapshots: {registry: redis}", "snapshots.registry"},
		{"bad policy", "snapshots: {policy: maybe}", "snapshots.policy"},
		{"negative retention", "snapshots: {max_per_document: -1}", "snapshots:"},
		{"zero budget", "diff: {cost_budget: 0}", "diff:"},
		{"sqlite path", "transactions: {registry: sqlite}\nsqlite: {path: \"\"}", "sqlite.path"},
		{"redis addr", "transactions: {registry: redis}\nredis: {addr: \"\"}", "redis.addr"},
		{"telemetry endpoint", "telemetry: {enabled: true, endpoint: \"\"}", "telemetry.endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	_, err := Parse([]byte("store: {backend: x}\ntransactions: {registry: y}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.backend")
	assert.Contains(t, err.Error(), "transactions.registry")
}
