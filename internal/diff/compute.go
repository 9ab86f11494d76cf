package diff

import (
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
)

// Default tuning.
const (
	DefaultCostBudget = 20000
	DefaultSampleRows = 5
	DefaultRandomRows = 5
)

// Config tunes tier selection and sampling.
type Config struct {
	// CostBudget is the largest estimated cost, in cells read, a diff may spend.
	CostBudget int

	// SampleRows is N: how many changed rows go into firstRows and lastRows each.
	SampleRows int

	// RandomRows is K: how many of the remaining changed rows are drawn at random.
	RandomRows int
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		CostBudget: DefaultCostBudget,
		SampleRows: DefaultSampleRows,
		RandomRows: DefaultRandomRows,
	}
}

// Cost estimates the extra cells read to produce a diff of tier t over a
// change touching cells cells. FULL reads both sides, SAMPLE reads the after
// side, METADATA only re-fingerprints.
func Cost(t Tier, cells int) int {
	switch t {
	case TierFull:
		return 2 * cells
	case TierSample:
		return cells
	default:
		return 0
	}
}

// SelectTier downgrades requested one tier at a time while its cost exceeds
// budget. METADATA is the floor.
func SelectTier(requested Tier, cells, budget int) Tier {
	t := requested
	for t != TierMetadata && Cost(t, cells) > budget {
		t = downgrade(t)
	}
	return t
}

func downgrade(t Tier) Tier {
	if t == TierFull {
		return TierSample
	}
	return TierMetadata
}

// Input is everything Compute needs. BeforeGrid and AfterGrid are relative
// to Origin and may be nil when only a METADATA diff is possible.
type Input struct {
	Requested      Tier
	EstimatedCells int
	RowsChanged    int

	// CostCells is the size of the region a SAMPLE or FULL diff reads. It
	// drives tier selection together with EstimatedCells.
	CostCells int

	Before fingerprint.Fingerprint
	After  fingerprint.Fingerprint

	Sheet      string
	Origin     sheet.Rect
	BeforeGrid sheet.Grid
	AfterGrid  sheet.Grid
}

// Computer builds diffs.
//
// Thread-safety: Compute is safe for concurrent use; the sampling RNG is
// guarded by a mutex.
type Computer struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewComputer creates a Computer. A nil rng is replaced by a randomly
// seeded one; pass a seeded rng for reproducible SAMPLE diffs.
func NewComputer(cfg Config, rng *rand.Rand) *Computer {
	if cfg.CostBudget <= 0 {
		cfg.CostBudget = DefaultCostBudget
	}
	if cfg.SampleRows <= 0 {
		cfg.SampleRows = DefaultSampleRows
	}
	if cfg.RandomRows < 0 {
		cfg.RandomRows = DefaultRandomRows
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Computer{
		cfg:    cfg,
		logger: slog.Default().With("component", "diff"),
		rng:    rng,
	}
}

// Config returns the effective configuration.
func (c *Computer) Config() Config {
	return c.cfg
}

// Plan returns the tier Compute will produce for requested over cells.
func (c *Computer) Plan(requested Tier, cells int) Tier {
	return SelectTier(requested, cells, c.cfg.CostBudget)
}

// Compute builds the diff for in.
func (c *Computer) Compute(in Input) Diff {
	cells := max(in.EstimatedCells, in.CostCells)
	tier := c.Plan(in.Requested, cells)
	if tier != TierMetadata && (in.BeforeGrid == nil || in.AfterGrid == nil) {
		tier = TierMetadata
	}
	if tier != in.Requested {
		c.logger.Debug("diff tier downgraded",
			"requested", in.Requested,
			"selected", tier,
			"cells", cells,
			"budget", c.cfg.CostBudget)
	}

	switch tier {
	case TierFull:
		return Diff{Tier: TierFull, Full: c.full(in)}
	case TierSample:
		return Diff{Tier: TierSample, Sample: c.sample(in)}
	default:
		return Diff{Tier: TierMetadata, Metadata: &MetadataDiff{
			Before: in.Before,
			After:  in.After,
			Summary: MetadataSummary{
				RowsChanged:           in.RowsChanged,
				EstimatedCellsChanged: in.EstimatedCells,
			},
		}}
	}
}

func (c *Computer) full(in Input) *FullDiff {
	changes := BuildChanges(in.Sheet, in.Origin, in.BeforeGrid, in.AfterGrid)
	d := &FullDiff{Changes: changes}
	if d.Changes == nil {
		d.Changes = []CellChange{}
	}
	for _, ch := range changes {
		d.Summary.CellsChanged++
		switch {
		case ch.Before == nil:
			d.Summary.CellsAdded++
		case ch.After == nil:
			d.Summary.CellsRemoved++
		}
	}
	return d
}

func (c *Computer) sample(in Input) *SampleDiff {
	changes := BuildChanges(in.Sheet, in.Origin, in.BeforeGrid, in.AfterGrid)
	rows, byRow := changedRows(changes)

	first, last, random := c.pickRows(rows)
	collect := func(picked []int) []CellChange {
		out := []CellChange{}
		for _, r := range picked {
			out = append(out, byRow[r]...)
		}
		return out
	}

	d := &SampleDiff{
		Samples: Samples{
			FirstRows:  collect(first),
			LastRows:   collect(last),
			RandomRows: collect(random),
		},
		Summary: SampleSummary{RowsChanged: len(rows)},
	}
	d.Summary.CellsSampled = len(d.Samples.FirstRows) + len(d.Samples.LastRows) + len(d.Samples.RandomRows)
	return d
}

// pickRows selects the first N rows, the last N rows not already taken, and
// K rows drawn uniformly from the remainder. rows must be sorted.
func (c *Computer) pickRows(rows []int) (first, last, random []int) {
	n, k := c.cfg.SampleRows, c.cfg.RandomRows

	cut := min(n, len(rows))
	first = rows[:cut]
	rest := rows[cut:]

	tail := max(len(rest)-n, 0)
	last = rest[tail:]
	middle := slices.Clone(rest[:tail])

	if k >= len(middle) {
		return first, last, middle
	}

	c.mu.Lock()
	for i := 0; i < k; i++ {
		j := i + c.rng.IntN(len(middle)-i)
		middle[i], middle[j] = middle[j], middle[i]
	}
	c.mu.Unlock()

	random = middle[:k]
	slices.Sort(random)
	return first, last, random
}
