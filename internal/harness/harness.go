package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/khill1269/servalsheets-sub001/internal/actions"
	"github.com/khill1269/servalsheets-sub001/internal/diff"
	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/docstore/memstore"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
	"github.com/khill1269/servalsheets-sub001/internal/idgen"
	"github.com/khill1269/servalsheets-sub001/internal/policy"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
	"github.com/khill1269/servalsheets-sub001/internal/testutil"
)

// Epoch is the fixed clock start of every scenario.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness runs one scenario against a fresh in-memory store with a fixed
// clock, sequential snapshot ids and a seeded sampler.
type Harness struct {
	store    *memstore.Store
	engine   *engine.Engine
	clock    *testutil.FixedClock
	policy   *policy.Policy
	observed map[string]fingerprint.Fingerprint
	logger   *slog.Logger
}

// New builds the harness for s.
func New(s *Scenario) (*Harness, error) {
	store := memstore.New()
	if err := store.Load(s.Documents...); err != nil {
		return nil, fmt.Errorf("seeding documents: %w", err)
	}

	var pol *policy.Policy
	if s.Policy != "" {
		p, err := policy.Parse(s.Name+".cue", s.Policy)
		if err != nil {
			return nil, fmt.Errorf("policy: %w", err)
		}
		pol = p
	}

	seed := s.Seed
	if seed == 0 {
		seed = 1
	}
	clk := testutil.NewFixedClock(Epoch)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := []engine.EngineOption{
		engine.WithLogger(logger),
		engine.WithIDGenerator(idgen.NewSequence("snap")),
		engine.WithDiffConfig(diff.Config{
			CostBudget: s.Engine.CostBudget,
			SampleRows: s.Engine.SampleRows,
			RandomRows: s.Engine.RandomRows,
		}),
	}
	if s.Engine.SnapshotPolicy != "" {
		opts = append(opts, engine.WithSnapshotPolicy(s.Engine.SnapshotPolicy))
	}
	if s.Engine.TransactionTTL > 0 {
		opts = append(opts, engine.WithTransactionTTL(s.Engine.TransactionTTL))
	}
	eng := engine.New(store, engine.EngineContext{Clock: clk, Rand: testutil.SeededRand(seed)}, opts...)

	return &Harness{
		store:    store,
		engine:   eng,
		clock:    clk,
		policy:   pol,
		observed: map[string]fingerprint.Fingerprint{},
		logger:   logger,
	}, nil
}

// Store exposes the in-memory store for assertions.
func (h *Harness) Store() *memstore.Store {
	return h.store
}

// Run executes s and returns its transcript. Expectation and assertion
// failures are recorded in the result; the error is reserved for
// scenarios that cannot run at all.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	h, err := New(s)
	if err != nil {
		return nil, err
	}
	result := NewResult()
	for i, step := range s.Steps {
		rec, err := h.runStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		checkExpect(result, i, step, rec)
		result.Steps = append(result.Steps, rec)
	}
	for i, a := range s.Assertions {
		if err := h.check(ctx, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return result, nil
}

func (h *Harness) runStep(ctx context.Context, i int, step Step) (rec StepRecord, err error) {
	rec = StepRecord{Step: i, Name: step.Name, Kind: step.Kind(), Outcome: OutcomeOK}
	writes := h.store.Calls(memstore.OpApplyBatch)
	defer func() {
		rec.Writes = h.store.Calls(memstore.OpApplyBatch) - writes
	}()

	switch rec.Kind {
	case StepGuard:
		act, err := actions.FromSpec(*step.Guard)
		if err != nil {
			return rec, err
		}
		opts, err := h.options(act.Kind(), step.Options)
		if err != nil {
			return rec, err
		}
		rec.Action = act.Kind()
		report, gerr := h.engine.Guard(ctx, act, opts)
		if gerr != nil {
			h.recordError(&rec, gerr)
			break
		}
		rec.Report = viewReport(report)

	case StepObserve:
		ref := sheet.DocumentRef{SpreadsheetID: step.Observe.Document, Sheet: step.Observe.Sheet}
		var rng *sheet.GridRange
		if step.Observe.Range != "" {
			r, err := sheet.ParseA1(step.Observe.Range)
			if err != nil {
				return rec, fmt.Errorf("observe range: %w", err)
			}
			rng = &r
		}
		fp, err := h.engine.Fingerprints().Observe(ctx, ref, rng)
		if err != nil {
			return rec, fmt.Errorf("observe: %w", err)
		}
		h.observed[step.Name] = fp
		rec.Observed = viewFingerprint(fp)

	case StepEdit:
		act, err := actions.FromSpec(*step.Edit)
		if err != nil {
			return rec, err
		}
		rec.Action = act.Kind()
		if _, err := act.Apply(ctx, h.store); err != nil {
			return rec, fmt.Errorf("edit: %w", err)
		}

	case StepRename:
		ref := sheet.DocumentRef{SpreadsheetID: step.Rename.Document, Sheet: step.Rename.Sheet}
		if err := h.store.RenameSheet(ref, step.Rename.To); err != nil {
			return rec, fmt.Errorf("rename: %w", err)
		}

	case StepFault:
		h.store.FailNext(step.Fault.Op, faultError(*step.Fault))

	case StepAdvance:
		h.clock.Advance(step.Advance)

	case StepRestore:
		ref, err := h.engine.RestoreSnapshot(ctx, step.Restore)
		if err != nil {
			h.recordError(&rec, err)
			break
		}
		rec.Restored = ref.SpreadsheetID

	default:
		return rec, errors.New("step kind is ambiguous")
	}
	return rec, nil
}

func (h *Harness) recordError(rec *StepRecord, err error) {
	var ee *engine.EngineError
	if !errors.As(err, &ee) {
		rec.Outcome = "error"
		return
	}
	rec.Outcome = string(ee.Kind)
	rec.Error = viewError(ee)
}

// options converts step options, resolving expected_state.from and
// applying the scenario policy.
func (h *Harness) options(kind string, o Options) (engine.SafetyOptions, error) {
	opts := engine.SafetyOptions{
		DryRun:        o.DryRun,
		TransactionID: o.TransactionID,
		AutoSnapshot:  o.AutoSnapshot,
		ForceSnapshot: o.ForceSnapshot,
		Verbosity:     o.Verbosity,
	}
	if es := o.EffectScope; es != nil {
		opts.EffectScope = &engine.EffectScope{
			MaxCellsAffected:     es.MaxCells,
			MaxRowsAffected:      es.MaxRows,
			MaxColumnsAffected:   es.MaxColumns,
			RequireExplicitRange: es.RequireExplicitRange,
		}
	}
	if es := o.ExpectedState; es != nil {
		exp := &fingerprint.Expected{}
		if es.From != "" {
			fp, ok := h.observed[es.From]
			if !ok {
				return opts, fmt.Errorf("no observed fingerprint %q", es.From)
			}
			exp = fingerprint.ExpectAll(fp)
		}
		if es.Title != nil {
			exp.Title = fingerprint.Some(*es.Title)
		}
		if es.ChecksumRange != nil {
			exp.ChecksumRange = fingerprint.Some(*es.ChecksumRange)
		}
		if es.RowCount != nil {
			exp.RowCount = fingerprint.Some(*es.RowCount)
		}
		if es.ColumnCount != nil {
			exp.ColumnCount = fingerprint.Some(*es.ColumnCount)
		}
		if es.Checksum != nil {
			exp.Checksum = fingerprint.Some(*es.Checksum)
		}
		if es.FirstRowValues != nil {
			exp.FirstRowValues = fingerprint.Some(es.FirstRowValues)
		}
		opts.ExpectedState = exp
	}
	return h.policy.Apply(kind, opts), nil
}

func faultError(f Fault) error {
	if f.Status == 0 {
		return errors.New("connection reset by peer")
	}
	return &docstore.StatusError{
		Op:         string(f.Op),
		Code:       f.Status,
		Message:    "injected fault",
		RetryAfter: f.RetryAfter,
	}
}
