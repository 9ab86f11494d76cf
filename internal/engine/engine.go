package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/khill1269/servalsheets-sub001/internal/clock"
	"github.com/khill1269/servalsheets-sub001/internal/diff"
	"github.com/khill1269/servalsheets-sub001/internal/docstore"
	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
	"github.com/khill1269/servalsheets-sub001/internal/idgen"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
	"github.com/khill1269/servalsheets-sub001/internal/snapshot"
	"github.com/khill1269/servalsheets-sub001/internal/txn"
)

// SnapshotPolicy decides what happens when a requested snapshot cannot be
// created.
type SnapshotPolicy string

const (
	// SnapshotFailOpen proceeds with the mutation and reports it as not
	// reversible.
	SnapshotFailOpen SnapshotPolicy = "fail_open"

	// SnapshotFailClosed aborts before writing with SNAPSHOT_CREATE_FAILED.
	SnapshotFailClosed SnapshotPolicy = "fail_closed"
)

// Outcomes recorded for completed guard calls that did not fail.
const (
	OutcomeApplied  = "applied"
	OutcomeDryRun   = "dry_run"
	OutcomeReplayed = "replayed"
)

// Metrics receives guard measurements. Implemented by the observability
// package; the default discards everything.
type Metrics interface {
	GuardCompleted(ctx context.Context, action, outcome string, d time.Duration)
	StageCompleted(ctx context.Context, stage string, d time.Duration)
	SnapshotAttempted(ctx context.Context, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) GuardCompleted(context.Context, string, string, time.Duration) {}
func (noopMetrics) StageCompleted(context.Context, string, time.Duration)         {}
func (noopMetrics) SnapshotAttempted(context.Context, string)                     {}

// EngineContext carries the collaborators that outlive a single request.
// Nil registries default to in-memory ones, a nil clock to the system
// clock and a nil Rand to a randomly seeded one.
type EngineContext struct {
	Transactions txn.Registry
	Snapshots    snapshot.Registry
	Clock        clock.Clock
	Rand         *rand.Rand
}

// Engine guards mutations against a document store.
//
// Thread-safety: Guard and the snapshot methods are safe for concurrent
// use. Requests sharing a transaction id are serialized by the
// coordinator; everything else runs in parallel.
type Engine struct {
	store     docstore.Store
	fp        *fingerprint.Service
	txns      *txn.Coordinator
	snapshots *snapshot.Manager
	differ    *diff.Computer
	clock     clock.Clock

	logger  *slog.Logger
	metrics Metrics
	tracer  trace.Tracer
	policy  SnapshotPolicy

	// Construction-time settings consumed by New.
	diffConfig diff.Config
	ttl        time.Duration
	ids        idgen.Generator
}

var _ MutationGuard = (*Engine)(nil)

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the logger. Default: slog.Default() tagged component=engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer sets the tracer used for per-stage spans.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithDiffConfig sets the diff budget and sample sizes.
func WithDiffConfig(cfg diff.Config) EngineOption {
	return func(e *Engine) {
		e.diffConfig = cfg
	}
}

// WithSnapshotPolicy sets the snapshot failure policy. Default: fail_open.
func WithSnapshotPolicy(p SnapshotPolicy) EngineOption {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithTransactionTTL sets how long transaction ids are remembered.
// Default: 10 minutes (txn.DefaultTTL).
func WithTransactionTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) {
		e.ttl = ttl
	}
}

// WithIDGenerator sets the snapshot id generator. Default: UUIDv7.
func WithIDGenerator(g idgen.Generator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// New creates an Engine over store.
func New(store docstore.Store, ec EngineContext, opts ...EngineOption) *Engine {
	e := &Engine{
		store:      store,
		clock:      clock.OrSystem(ec.Clock),
		logger:     slog.Default().With("component", "engine"),
		metrics:    noopMetrics{},
		tracer:     noop.NewTracerProvider().Tracer("servalguard/engine"),
		policy:     SnapshotFailOpen,
		diffConfig: diff.DefaultConfig(),
		ttl:        txn.DefaultTTL,
	}
	for _, opt := range opts {
		opt(e)
	}

	txReg := ec.Transactions
	if txReg == nil {
		txReg = txn.NewMemoryRegistry()
	}
	snapReg := ec.Snapshots
	if snapReg == nil {
		snapReg = snapshot.NewMemoryRegistry()
	}

	e.fp = fingerprint.NewService(store)
	e.txns = txn.NewCoordinator(txReg, e.clock, e.ttl)
	e.snapshots = snapshot.NewManager(store, snapReg, e.clock, e.ids)
	e.differ = diff.NewComputer(e.diffConfig, ec.Rand)
	return e
}

// Fingerprints returns the fingerprint service bound to the engine's store.
func (e *Engine) Fingerprints() *fingerprint.Service {
	return e.fp
}

// Guard verifies, optionally snapshots, applies and reports one mutation.
//
// Stages run in order: transaction lookup, observe, precondition, range
// and scope checks, then either a dry-run simulation or transaction admit,
// snapshot, apply, post-apply scope check, diff and commit. Every error is
// an *EngineError. Once the write has happened the remaining bookkeeping
// ignores cancellation of ctx.
func (e *Engine) Guard(ctx context.Context, action MutationAction, opts SafetyOptions) (report *MutationReport, err error) {
	start := time.Now()
	ref := action.Target()
	ctx, span := e.tracer.Start(ctx, "servalguard.guard", trace.WithAttributes(
		attribute.String("action.kind", action.Kind()),
		attribute.String("document", ref.String()),
		attribute.Bool("dry_run", opts.DryRun),
	))
	outcome := OutcomeApplied
	defer func() {
		if err != nil {
			outcome = string(KindOf(err))
			if outcome == "" {
				outcome = "error"
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
		e.metrics.GuardCompleted(context.WithoutCancel(ctx), action.Kind(), outcome, time.Since(start))
	}()

	if cerr := ctx.Err(); cerr != nil {
		return nil, cancelled(cerr)
	}
	log := e.logger.With("action", action.Kind(), "document", ref.String())

	// TXN_LOOKUP: an identical retry after success replays here, before its
	// precondition has gone stale. Dry runs never touch the registry.
	txID := opts.TransactionID
	if opts.DryRun {
		txID = ""
	}
	var requestFP string
	if txID != "" {
		fp, ferr := RequestFingerprint(action, opts)
		if ferr != nil {
			return nil, ferr
		}
		requestFP = fp
		d, lerr := e.txns.Lookup(ctx, txID, requestFP)
		if lerr != nil {
			return nil, registryError("transaction lookup", lerr)
		}
		if d.Outcome == txn.Replay {
			outcome = OutcomeReplayed
			return e.replay(log, txID, d)
		}
		if terr := transactionError(txID, d); terr != nil {
			return nil, terr
		}
	}

	// OBSERVE
	obs, oerr := e.observe(ctx, ref, opts.ExpectedState)
	if oerr != nil {
		return nil, oerr
	}

	// PRECONDITION
	if verr := Verify(opts.ExpectedState, obs.Fingerprint); verr != nil {
		log.Debug("precondition failed", "field", verr.Field, "kind", verr.Kind)
		return nil, verr
	}

	// RANGE / SCOPE (pre-apply)
	if rerr := checkDeclaredRange(action, opts.EffectScope); rerr != nil {
		return nil, rerr
	}
	predicted := action.PredictScope(obs.Fingerprint)
	if serr := CheckScope(predicted, opts.EffectScope); serr != nil {
		log.Debug("effect scope exceeded", "limit", serr.Limit, "predicted", serr.Predicted, "allowed", serr.Allowed)
		return nil, serr
	}

	region := e.diffRegion(action, obs)
	tier := e.differ.Plan(opts.Verbosity.Tier(), max(predicted.Cells, region.rect.Cells()))

	if opts.DryRun {
		outcome = OutcomeDryRun
		return e.dryRun(ctx, log, action, opts, obs, region, predicted, tier)
	}

	// TXN_ADMIT
	ticket, d, aerr := e.txns.Admit(ctx, txID, requestFP)
	if aerr != nil {
		return nil, registryError("transaction admit", aerr)
	}
	switch d.Outcome {
	case txn.Replay:
		outcome = OutcomeReplayed
		return e.replay(log, txID, d)
	case txn.Conflict, txn.Expired:
		return nil, transactionError(txID, d)
	}
	settled := false
	defer func() {
		if !settled {
			if abortErr := ticket.Abort(context.WithoutCancel(ctx)); abortErr != nil {
				log.Warn("abort transaction", "transaction_id", txID, "error", abortErr)
			}
		}
	}()

	// SNAPSHOT
	snap, snapErr := e.snapshot(ctx, log, action, opts)
	if snapErr != nil {
		return nil, snapErr
	}

	var before sheet.Grid
	if tier != diff.TierMetadata {
		g, rerr := e.readRegion(ctx, ref, obs, region)
		if rerr != nil {
			return nil, rerr
		}
		before = g
	}

	if cerr := ctx.Err(); cerr != nil {
		return nil, cancelled(cerr)
	}

	// APPLY
	applyCtx, endApply := e.stage(ctx, "apply")
	out, applyErr := action.Apply(applyCtx, e.store)
	endApply()
	if applyErr != nil {
		ee := classifyStoreError("apply", applyErr)
		if ee.Kind == KindCancelled {
			// The write may have reached the store. Leave the entry pending
			// so a retry sees a conflict instead of writing twice.
			settled = true
			ticket.Abandon()
		}
		return nil, ee
	}
	settled = true
	log.Info("mutation applied", "cells", out.Scope.Cells, "rows", out.Scope.Rows, "columns", out.Scope.Columns)

	// Everything below must finish even if the caller has gone away.
	bctx := context.WithoutCancel(ctx)

	report = newReport(out.Scope)
	if snap != nil {
		report.Reversible = true
		report.RevertSnapshotID = snap.ID
	}

	// SCOPE (post-apply)
	if v := firstViolation(out.Scope, opts.EffectScope); v != nil {
		report.ScopeExceeded = v
		log.Warn("effect scope exceeded after apply",
			"limit", v.Limit, "actual", v.Actual, "allowed", v.Allowed)
	}

	// DIFF
	report.Diff = e.diffAfter(bctx, log, ref, obs, region, before, out.Scope, opts)

	// COMMIT
	if ticket == nil {
		return report, nil
	}
	data, merr := json.Marshal(report)
	if merr != nil {
		log.Error("encode report for transaction", "transaction_id", txID, "error", merr)
		ticket.Abandon()
		return report, nil
	}
	if cerr := ticket.Commit(bctx, data); cerr != nil {
		// The entry stays pending and expires with its TTL; retries see a
		// conflict rather than a second write.
		log.Error("commit transaction", "transaction_id", txID, "error", cerr)
	}
	return report, nil
}

// stage starts a child span and returns a function that ends it and
// records the stage duration.
func (e *Engine) stage(ctx context.Context, name string) (context.Context, func()) {
	start := time.Now()
	sctx, span := e.tracer.Start(ctx, "servalguard."+name)
	return sctx, func() {
		span.End()
		e.metrics.StageCompleted(context.WithoutCancel(ctx), name, time.Since(start))
	}
}

func (e *Engine) replay(log *slog.Logger, id string, d txn.Decision) (*MutationReport, error) {
	r, err := decodeReport(d.Report)
	if err != nil {
		ee := newError(KindReplayFailed, "transaction %s: cached report unreadable", id)
		ee.Err = err
		return nil, ee
	}
	log.Debug("transaction replayed", "transaction_id", id)
	return r, nil
}

// observe fingerprints the target. The checksum covers the expected
// checksumRange when the caller gave one, else the whole sheet.
func (e *Engine) observe(ctx context.Context, ref sheet.DocumentRef, expected *fingerprint.Expected) (*fingerprint.Observation, *EngineError) {
	ctx, end := e.stage(ctx, "observe")
	defer end()

	var checksumRange *sheet.GridRange
	if expected != nil {
		if a1, ok := expected.ChecksumRange.Get(); ok {
			// An unparseable range falls back to the whole sheet and fails
			// the checksumRange comparison.
			if rng, err := sheet.ParseA1(a1); err == nil {
				if rng.Sheet != "" && ref.Sheet != "" && rng.Sheet != ref.Sheet {
					ee := newError(KindPreconditionFailed, "checksum range %q is not on sheet %q", a1, ref.Sheet)
					ee.Field = fingerprint.FieldChecksumRange
					ee.Expected = a1
					ee.Observed = ref.Sheet
					return nil, ee
				}
				checksumRange = &rng
			}
		}
	}

	obs, err := e.fp.Capture(ctx, ref, checksumRange)
	if err != nil {
		return nil, classifyStoreError("observe", err)
	}
	return obs, nil
}

// region is the rectangle a SAMPLE or FULL diff compares.
type region struct {
	sheet string
	rect  sheet.Rect
}

func (e *Engine) diffRegion(action MutationAction, obs *fingerprint.Observation) region {
	rng := action.Range()
	if dr, ok := action.(DiffRanger); ok {
		rng = dr.DiffRange(obs.Fingerprint)
	}
	title := rng.Sheet
	if title == "" {
		title = obs.Meta.SheetTitle
	}
	return region{sheet: title, rect: rng.Extent(obs.Meta.RowCount, obs.Meta.ColumnCount)}
}

// readRegion returns the current cells of rg, relative to rg.rect. Cells
// already read by observe are reused.
func (e *Engine) readRegion(ctx context.Context, ref sheet.DocumentRef, obs *fingerprint.Observation, rg region) (sheet.Grid, *EngineError) {
	if rg.sheet == obs.Range.Sheet && contains(obs.Rect, rg.rect) {
		return obs.Grid.Sub(sheet.Rect{
			Row:  rg.rect.Row - obs.Rect.Row,
			Col:  rg.rect.Col - obs.Rect.Col,
			Rows: rg.rect.Rows,
			Cols: rg.rect.Cols,
		}), nil
	}
	g, err := e.readCells(ctx, ref, rg)
	if err != nil {
		return nil, classifyStoreError("read diff region", err)
	}
	return g, nil
}

// readCells reads rg from the store, clamped to the sheet as it is now.
func (e *Engine) readCells(ctx context.Context, ref sheet.DocumentRef, rg region) (sheet.Grid, error) {
	ref = ref.WithSheet(rg.sheet)
	meta, err := e.store.Metadata(ctx, ref)
	if err != nil {
		return nil, err
	}
	clamped := rg.rect.Range(rg.sheet).Resolve(meta.RowCount, meta.ColumnCount)
	if clamped.Cells() == 0 {
		return sheet.Grid{}, nil
	}
	g, err := e.store.ReadCells(ctx, ref, clamped.Range(rg.sheet))
	if err != nil {
		return nil, err
	}
	return g.Sub(sheet.Rect{Rows: clamped.Rows, Cols: clamped.Cols}), nil
}

func contains(outer, inner sheet.Rect) bool {
	return inner.Row >= outer.Row && inner.Col >= outer.Col &&
		inner.Row+inner.Rows <= outer.Row+outer.Rows &&
		inner.Col+inner.Cols <= outer.Col+outer.Cols
}

// snapshot takes a snapshot when opts and the action call for one. Under
// fail_open a failure is logged and the mutation proceeds without one.
func (e *Engine) snapshot(ctx context.Context, log *slog.Logger, action MutationAction, opts SafetyOptions) (*snapshot.Snapshot, *EngineError) {
	want := snapshot.Want{
		AutoSnapshot: opts.AutoSnapshot,
		Force:        opts.ForceSnapshot,
		Destructive:  action.IsDestructive(),
	}
	if !want.Triggered() {
		return nil, nil
	}
	sctx, end := e.stage(ctx, "snapshot")
	snap, err := e.snapshots.MaybeSnapshot(sctx, action.Target(), want)
	end()
	if err == nil {
		e.metrics.SnapshotAttempted(ctx, "created")
		return snap, nil
	}
	e.metrics.SnapshotAttempted(ctx, "failed")

	if ctx.Err() != nil {
		return nil, cancelled(ctx.Err())
	}
	if e.policy == SnapshotFailClosed {
		ee := newError(KindSnapshotCreateFailed, "snapshot of %s failed", action.Target())
		ee.Retryable, ee.RetryStrategy, ee.Err = true, RetryExponentialBackoff, err
		return nil, ee
	}
	log.Warn("snapshot failed; proceeding without one", "error", err)
	return nil, nil
}

// diffAfter computes the report diff once the write has happened. Read
// failures degrade the diff rather than failing the request.
func (e *Engine) diffAfter(ctx context.Context, log *slog.Logger, ref sheet.DocumentRef, obs *fingerprint.Observation, rg region, before sheet.Grid, actual Scope, opts SafetyOptions) *diff.Diff {
	ctx, end := e.stage(ctx, "diff")
	defer end()

	in := diff.Input{
		Requested:      opts.Verbosity.Tier(),
		EstimatedCells: actual.Cells,
		RowsChanged:    actual.Rows,
		CostCells:      rg.rect.Cells(),
		Before:         obs.Fingerprint,
		Sheet:          rg.sheet,
		Origin:         rg.rect,
		BeforeGrid:     before,
	}

	if before != nil {
		after, err := e.readCells(ctx, ref, rg)
		if err == nil {
			in.AfterGrid = after
			d := e.differ.Compute(in)
			if d.Tier != diff.TierMetadata {
				return &d
			}
		} else {
			log.Warn("read after-image; falling back to metadata diff", "error", err)
		}
	}

	// The checksum range is re-read as observed before the write so the
	// two fingerprints are comparable.
	rng := obs.Range
	afterFP, err := e.fp.Observe(ctx, ref, &rng)
	if err != nil {
		log.Warn("fingerprint after apply; diff omitted", "error", err)
		return nil
	}
	in.After = afterFP
	in.BeforeGrid, in.AfterGrid = nil, nil
	d := e.differ.Compute(in)
	return &d
}

// dryRun reports the predicted effect. It never writes, snapshots or
// registers a transaction. A diff is included when the action can simulate
// itself within the diff budget.
func (e *Engine) dryRun(ctx context.Context, log *slog.Logger, action MutationAction, opts SafetyOptions, obs *fingerprint.Observation, rg region, predicted Scope, tier diff.Tier) (*MutationReport, error) {
	report := newReport(predicted)
	report.DryRun = true

	sim, ok := action.(Simulator)
	if !ok || tier == diff.TierMetadata {
		log.Debug("dry run", "cells", predicted.Cells)
		return report, nil
	}
	before, err := e.readRegion(ctx, action.Target(), obs, rg)
	if err != nil {
		return nil, err
	}
	d := e.differ.Compute(diff.Input{
		Requested:      opts.Verbosity.Tier(),
		EstimatedCells: predicted.Cells,
		RowsChanged:    predicted.Rows,
		CostCells:      rg.rect.Cells(),
		Before:         obs.Fingerprint,
		Sheet:          rg.sheet,
		Origin:         rg.rect,
		BeforeGrid:     before,
		AfterGrid:      sim.Simulate(before, rg.rect),
	})
	report.Diff = &d
	log.Debug("dry run", "cells", predicted.Cells, "diff_tier", d.Tier)
	return report, nil
}
