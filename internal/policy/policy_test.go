package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khill1269/servalsheets-sub001/internal/actions"
	"github.com/khill1269/servalsheets-sub001/internal/diff"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
)

func intp(n int) *int { return &n }

func TestLoad_Directory(t *testing.T) {
	p, err := Load("testdata/strict")
	require.NoError(t, err)

	require.NotNil(t, p.Default)
	require.NotNil(t, p.Default.EffectScope)
	assert.Equal(t, 5000, p.Default.EffectScope.MaxCellsAffected)
	assert.Equal(t, diff.Minimal, p.Default.Verbosity)

	del := p.Actions[actions.KindDeleteRows]
	require.NotNil(t, del.EffectScope)
	assert.Equal(t, 0, del.EffectScope.MaxCellsAffected, "schema default")
	assert.Equal(t, intp(50), del.EffectScope.MaxRowsAffected)
	assert.Nil(t, del.EffectScope.MaxColumnsAffected)
	assert.True(t, del.EffectScope.RequireExplicitRange)
	assert.True(t, del.AutoSnapshot)
}

func TestLoad_UnknownKindHasPosition(t *testing.T) {
	_, err := Load("testdata/broken")
	require.Error(t, err)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.Pos.IsValid())
	assert.Contains(t, err.Error(), "not allowed")
}

func TestLoad_MissingAndEmpty(t *testing.T) {
	_, err := Load("testdata/nope")
	assert.Error(t, err)

	_, err = Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files")
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"negative limit", `policy: default: effectScope: maxCellsAffected: -1`},
		{"bad verbosity", `policy: default: verbosity: "loud"`},
		{"unknown field", `policy: default: autoSnap: true`},
		{"wrong type", `policy: actions: write_range: autoSnapshot: "yes"`},
		{"missing policy", `limits: {}`},
		{"syntax", `policy: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("p.cue", tt.src)
			assert.Error(t, err)
		})
	}
}

func TestParse_AcceptsEveryActionKind(t *testing.T) {
	for _, kind := range []string{actions.KindWriteRange, actions.KindClearRange, actions.KindInsertRows, actions.KindDeleteRows} {
		p, err := Parse("p.cue", `policy: actions: "`+kind+`": autoSnapshot: true`)
		require.NoError(t, err, kind)
		assert.True(t, p.Rule(kind).AutoSnapshot, kind)
	}
}

func TestParse_EmptyPolicy(t *testing.T) {
	p, err := Parse("p.cue", `policy: {}`)
	require.NoError(t, err)
	assert.Nil(t, p.Default)
	assert.Empty(t, p.Actions)
	assert.Equal(t, Rule{}, p.Rule(actions.KindWriteRange))
}

func TestRule_FallsBackToDefault(t *testing.T) {
	p, err := Load("testdata/strict")
	require.NoError(t, err)

	cr := p.Rule(actions.KindClearRange)
	require.NotNil(t, cr.EffectScope)
	assert.Equal(t, 5000, cr.EffectScope.MaxCellsAffected)
	assert.Equal(t, diff.Minimal, cr.Verbosity)
	assert.True(t, cr.AutoSnapshot)

	write := p.Rule(actions.KindWriteRange)
	assert.False(t, write.AutoSnapshot)
	assert.Equal(t, 5000, write.EffectScope.MaxCellsAffected)
}

func TestApply(t *testing.T) {
	p, err := Load("testdata/strict")
	require.NoError(t, err)

	t.Run("fills unset options", func(t *testing.T) {
		got := p.Apply(actions.KindDeleteRows, engine.SafetyOptions{TransactionID: "t1"})
		require.NotNil(t, got.EffectScope)
		assert.Equal(t, intp(50), got.EffectScope.MaxRowsAffected)
		assert.True(t, got.AutoSnapshot)
		assert.Equal(t, diff.Minimal, got.Verbosity)
		assert.Equal(t, "t1", got.TransactionID)
	})

	t.Run("explicit options win", func(t *testing.T) {
		own := &engine.EffectScope{MaxCellsAffected: 1}
		got := p.Apply(actions.KindDeleteRows, engine.SafetyOptions{EffectScope: own, Verbosity: diff.Detailed})
		assert.Same(t, own, got.EffectScope)
		assert.Equal(t, diff.Detailed, got.Verbosity)
	})

	t.Run("copies the scope", func(t *testing.T) {
		got := p.Apply(actions.KindWriteRange, engine.SafetyOptions{})
		got.EffectScope.MaxCellsAffected = 1
		assert.Equal(t, 5000, p.Default.EffectScope.MaxCellsAffected)
	})

	t.Run("nil policy", func(t *testing.T) {
		var none *Policy
		opts := engine.SafetyOptions{DryRun: true}
		assert.Equal(t, opts, none.Apply(actions.KindWriteRange, opts))
	})
}
