package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

func intp(n int) *int { return &n }

func TestCheckScope(t *testing.T) {
	limits := &EffectScope{MaxCellsAffected: 100, MaxRowsAffected: intp(10), MaxColumnsAffected: intp(3)}

	tests := []struct {
		name    string
		scope   Scope
		limits  *EffectScope
		limit   string
		allowed int
	}{
		{"within", Scope{Cells: 30, Rows: 10, Columns: 3}, limits, "", 0},
		{"nil scope", Scope{Cells: 1e6}, nil, "", 0},
		{"cells first", Scope{Cells: 500, Rows: 50, Columns: 10}, limits, LimitCells, 100},
		{"rows", Scope{Cells: 22, Rows: 11, Columns: 2}, limits, LimitRows, 10},
		{"columns", Scope{Cells: 4, Rows: 1, Columns: 4}, limits, LimitColumns, 3},
		{"no cell ceiling", Scope{Cells: 500, Rows: 1, Columns: 1}, &EffectScope{}, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := CheckScope(tt.scope, tt.limits)
			if tt.limit == "" {
				assert.Nil(t, e)
				return
			}
			require.NotNil(t, e)
			assert.Equal(t, KindEffectScopeExceeded, e.Kind)
			assert.Equal(t, tt.limit, e.Limit)
			assert.Equal(t, tt.allowed, e.Allowed)
		})
	}
}

func TestCheckScope_ReportsPredicted(t *testing.T) {
	e := CheckScope(Scope{Cells: 500}, &EffectScope{MaxCellsAffected: 100})
	require.NotNil(t, e)
	assert.Equal(t, 500, e.Predicted)
	assert.Equal(t, 100, e.Allowed)
}

func TestCheckRange(t *testing.T) {
	explicit := &EffectScope{RequireExplicitRange: true}

	assert.Nil(t, CheckRange(sheet.GridRange{Sheet: "Data"}, nil))
	assert.Nil(t, CheckRange(sheet.GridRange{Sheet: "Data"}, &EffectScope{}))
	assert.Nil(t, CheckRange(sheet.NewRange("Data", 0, 5, 0, 3), explicit))

	e := CheckRange(sheet.GridRange{Sheet: "Data"}, explicit)
	require.NotNil(t, e)
	assert.Equal(t, KindExplicitRangeRequired, e.Kind)

	cols, err := sheet.ParseA1("Data!A:C")
	require.NoError(t, err)
	e = CheckRange(cols, explicit)
	require.NotNil(t, e)
	assert.Equal(t, KindAmbiguousRange, e.Kind)
}
