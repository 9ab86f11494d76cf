package engine

import (
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// Limit names reported in scope errors.
const (
	LimitCells   = "maxCellsAffected"
	LimitRows    = "maxRowsAffected"
	LimitColumns = "maxColumnsAffected"
)

// CheckScope compares an effect size against the caller's limits, checking
// cells, then rows, then columns. A nil scope always passes.
func CheckScope(s Scope, scope *EffectScope) *EngineError {
	v := firstViolation(s, scope)
	if v == nil {
		return nil
	}
	e := newError(KindEffectScopeExceeded, "%s exceeded: %d > %d", v.Limit, v.Actual, v.Allowed)
	e.Limit = v.Limit
	e.Predicted = v.Actual
	e.Allowed = v.Allowed
	return e
}

func firstViolation(s Scope, scope *EffectScope) *ScopeViolation {
	if scope == nil {
		return nil
	}
	if scope.MaxCellsAffected > 0 && s.Cells > scope.MaxCellsAffected {
		return &ScopeViolation{Limit: LimitCells, Actual: s.Cells, Allowed: scope.MaxCellsAffected}
	}
	if scope.MaxRowsAffected != nil && s.Rows > *scope.MaxRowsAffected {
		return &ScopeViolation{Limit: LimitRows, Actual: s.Rows, Allowed: *scope.MaxRowsAffected}
	}
	if scope.MaxColumnsAffected != nil && s.Columns > *scope.MaxColumnsAffected {
		return &ScopeViolation{Limit: LimitColumns, Actual: s.Columns, Allowed: *scope.MaxColumnsAffected}
	}
	return nil
}

// CheckRange enforces requireExplicitRange on the range as the caller
// declared it. A range with no bounds at all addresses the whole sheet; a
// range with some open bounds (such as "A:C") cannot be sized without
// reading the sheet.
func CheckRange(declared sheet.GridRange, scope *EffectScope) *EngineError {
	if scope == nil || !scope.RequireExplicitRange {
		return nil
	}
	switch {
	case declared.Unbounded():
		return newError(KindExplicitRangeRequired, "range %q addresses the whole sheet", declared.A1())
	case !declared.Bounded():
		return newError(KindAmbiguousRange, "range %q has open bounds", declared.A1())
	}
	return nil
}

// checkDeclaredRange applies CheckRange to action, accepting whole-row
// spans as explicit.
func checkDeclaredRange(action MutationAction, scope *EffectScope) *EngineError {
	if _, ok := action.(RowSpanner); ok {
		return nil
	}
	return CheckRange(action.Range(), scope)
}
