package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/khill1269/servalsheets-sub001/internal/clock"
)

// Outcome is the result of Lookup or Admit.
type Outcome int

const (
	Fresh Outcome = iota
	Replay
	Conflict
	Expired
)

func (o Outcome) String() string {
	switch o {
	case Fresh:
		return "fresh"
	case Replay:
		return "replay"
	case Conflict:
		return "conflict"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Decision is what the coordinator decided for one request.
type Decision struct {
	Outcome Outcome

	// Report is the cached serialized report for Replay.
	Report []byte

	// Existing is the entry that caused Replay, Conflict or Expired. Its
	// State reflects the decision (conflicted, expired) and is not persisted.
	Existing *Transaction

	// InFlight is set on a Conflict caused by a pending entry, as opposed to
	// a committed entry for a different request.
	InFlight bool
}

// ErrReportCorrupt is returned when a cached report no longer matches its
// recorded hash.
var ErrReportCorrupt = errors.New("txn: cached report does not match result hash")

// Coordinator decides fresh/replay/conflict/expired per transaction id.
//
// Thread-safety: all methods are safe for concurrent use.
type Coordinator struct {
	reg    Registry
	clock  clock.Clock
	ttl    time.Duration
	locks  *KeyedLock
	logger *slog.Logger
}

// NewCoordinator creates a coordinator. A non-positive ttl means DefaultTTL.
func NewCoordinator(reg Registry, clk clock.Clock, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Coordinator{
		reg:    reg,
		clock:  clock.OrSystem(clk),
		ttl:    ttl,
		locks:  NewKeyedLock(),
		logger: slog.Default().With("component", "txn"),
	}
}

// TTL returns the configured entry lifetime.
func (c *Coordinator) TTL() time.Duration {
	return c.ttl
}

// Lookup peeks at id without locking or registering anything. A pending
// entry yields Fresh: Admit makes the final decision under the lock.
// An expired entry is evicted.
func (c *Coordinator) Lookup(ctx context.Context, id, requestFP string) (Decision, error) {
	if id == "" {
		return Decision{Outcome: Fresh}, nil
	}
	tx, err := c.reg.Get(ctx, id)
	if err != nil {
		return Decision{}, fmt.Errorf("txn lookup %s: %w", id, err)
	}
	if tx == nil || (tx.State == StatePending && !tx.Expired(c.clock.Now())) {
		return Decision{Outcome: Fresh}, nil
	}
	return c.decideExisting(ctx, tx, requestFP)
}

// Admit registers id as pending and returns a Ticket holding the per-id
// lock. For any outcome other than Fresh the ticket is nil and the lock is
// already released. An empty id always admits with a no-op ticket.
func (c *Coordinator) Admit(ctx context.Context, id, requestFP string) (*Ticket, Decision, error) {
	if id == "" {
		return nil, Decision{Outcome: Fresh}, nil
	}

	release, err := c.locks.Lock(ctx, id)
	if err != nil {
		return nil, Decision{}, fmt.Errorf("txn admit %s: %w", id, err)
	}

	ticket, decision, err := c.admitLocked(ctx, id, requestFP, release)
	if ticket == nil {
		release()
	}
	return ticket, decision, err
}

func (c *Coordinator) admitLocked(ctx context.Context, id, requestFP string, release func()) (*Ticket, Decision, error) {
	existing, err := c.reg.Get(ctx, id)
	if err != nil {
		return nil, Decision{}, fmt.Errorf("txn admit %s: %w", id, err)
	}
	if existing != nil {
		d, err := c.decideExisting(ctx, existing, requestFP)
		if err != nil || d.Outcome != Fresh {
			return nil, d, err
		}
	}

	now := c.clock.Now()
	tx := &Transaction{
		ID:                 id,
		RequestFingerprint: requestFP,
		State:              StatePending,
		CreatedAt:          now,
		ExpiresAt:          now.Add(c.ttl),
	}
	created, err := c.reg.Create(ctx, tx)
	if err != nil {
		return nil, Decision{}, fmt.Errorf("txn admit %s: %w", id, err)
	}
	if !created {
		// Another process registered the id between Get and Create.
		other, err := c.reg.Get(ctx, id)
		if err != nil {
			return nil, Decision{}, fmt.Errorf("txn admit %s: %w", id, err)
		}
		if other == nil {
			other = tx.Clone()
		}
		return nil, c.conflict(other), nil
	}

	c.logger.Debug("transaction admitted", "transaction_id", id)
	return &Ticket{c: c, tx: tx, release: release}, Decision{Outcome: Fresh}, nil
}

// decideExisting classifies an existing entry. It returns Fresh only when
// the entry was evicted and the id may be reused by Admit.
func (c *Coordinator) decideExisting(ctx context.Context, tx *Transaction, requestFP string) (Decision, error) {
	if tx.Expired(c.clock.Now()) {
		if err := c.reg.Delete(ctx, tx.ID); err != nil {
			return Decision{}, fmt.Errorf("txn evict %s: %w", tx.ID, err)
		}
		c.logger.Info("transaction expired", "transaction_id", tx.ID, "expired_at", tx.ExpiresAt)
		expired := tx.Clone()
		expired.State = StateExpired
		return Decision{Outcome: Expired, Existing: expired}, nil
	}

	switch {
	case tx.State == StatePending:
		return c.conflict(tx), nil
	case tx.RequestFingerprint != requestFP:
		return c.conflict(tx), nil
	case ReportHash(tx.Report) != tx.ResultHash:
		return Decision{}, fmt.Errorf("txn replay %s: %w", tx.ID, ErrReportCorrupt)
	default:
		c.logger.Debug("transaction replayed", "transaction_id", tx.ID)
		return Decision{Outcome: Replay, Report: tx.Report, Existing: tx}, nil
	}
}

func (c *Coordinator) conflict(tx *Transaction) Decision {
	cp := tx.Clone()
	cp.State = StateConflicted
	c.logger.Info("transaction conflict", "transaction_id", tx.ID, "entry_state", tx.State)
	return Decision{Outcome: Conflict, Existing: cp, InFlight: tx.State == StatePending}
}

// Sweep evicts every expired entry and returns how many were removed.
func (c *Coordinator) Sweep(ctx context.Context) (int, error) {
	n, err := c.reg.DeleteExpired(ctx, c.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("txn sweep: %w", err)
	}
	if n > 0 {
		c.logger.Info("expired transactions evicted", "count", n)
	}
	return n, nil
}

// Ticket is a pending admission. Exactly one of Commit, Abort or Abandon
// must be called; each releases the per-id lock. A nil Ticket is a valid no-op,
// used for requests without a transaction id.
type Ticket struct {
	c       *Coordinator
	tx      *Transaction
	release func()
}

// ID returns the transaction id, or "" for a nil ticket.
func (t *Ticket) ID() string {
	if t == nil {
		return ""
	}
	return t.tx.ID
}

// Commit stores the serialized report and marks the entry committed. The
// TTL restarts at commit time.
func (t *Ticket) Commit(ctx context.Context, report []byte) error {
	if t == nil {
		return nil
	}
	defer t.release()

	now := t.c.clock.Now()
	tx := t.tx.Clone()
	tx.State = StateCommitted
	tx.Report = append([]byte(nil), report...)
	tx.ResultHash = ReportHash(report)
	tx.ExpiresAt = now.Add(t.c.ttl)
	if err := t.c.reg.Update(ctx, tx); err != nil {
		return fmt.Errorf("txn commit %s: %w", tx.ID, err)
	}
	t.c.logger.Debug("transaction committed", "transaction_id", tx.ID)
	return nil
}

// Abort removes the pending entry so the id can be retried.
func (t *Ticket) Abort(ctx context.Context) error {
	if t == nil {
		return nil
	}
	defer t.release()

	if err := t.c.reg.Delete(ctx, t.tx.ID); err != nil {
		return fmt.Errorf("txn abort %s: %w", t.tx.ID, err)
	}
	t.c.logger.Debug("transaction aborted", "transaction_id", t.tx.ID)
	return nil
}

// Abandon releases the lock but leaves the entry pending until it expires.
// Used when the outcome of the write is unknown: retries see a conflict
// instead of applying a second time.
func (t *Ticket) Abandon() {
	if t == nil {
		return
	}
	t.release()
	t.c.logger.Warn("transaction abandoned while pending", "transaction_id", t.tx.ID, "expires_at", t.tx.ExpiresAt)
}
