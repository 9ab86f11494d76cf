package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/khill1269/servalsheets-sub001/internal/actions"
	"github.com/khill1269/servalsheets-sub001/internal/diff"
	"github.com/khill1269/servalsheets-sub001/internal/docstore/memstore"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/policy"
)

// Scenario is a scripted sequence of guarded mutations and concurrent
// interference against seeded in-memory documents.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Seed seeds the diff sampler. Zero means 1.
	Seed uint64 `yaml:"seed,omitempty"`

	Engine EngineSettings `yaml:"engine,omitempty"`

	// Policy is inline CUE applied to every guard step's options.
	Policy string `yaml:"policy,omitempty"`

	Documents  []memstore.Seed `yaml:"documents"`
	Steps      []Step          `yaml:"steps"`
	Assertions []Assertion     `yaml:"assertions,omitempty"`
}

// EngineSettings override engine defaults for one scenario.
type EngineSettings struct {
	SnapshotPolicy engine.SnapshotPolicy `yaml:"snapshot_policy,omitempty"`
	TransactionTTL time.Duration         `yaml:"transaction_ttl,omitempty"`
	CostBudget     int                   `yaml:"cost_budget,omitempty"`
	SampleRows     int                   `yaml:"sample_rows,omitempty"`
	RandomRows     int                   `yaml:"random_rows,omitempty"`
}

// Step is one scenario step. Exactly one of Guard, Observe, Edit, Rename,
// Fault, Advance or Restore is set.
type Step struct {
	// Name labels the step. Observe steps store their fingerprint under it.
	Name string `yaml:"name,omitempty"`

	Guard   *actions.Spec `yaml:"guard,omitempty"`
	Options Options       `yaml:"options,omitempty"`

	Observe *Observe `yaml:"observe,omitempty"`

	// Edit applies an action directly to the store, bypassing the guard,
	// as a concurrent collaborator would.
	Edit *actions.Spec `yaml:"edit,omitempty"`

	Rename  *Rename       `yaml:"rename,omitempty"`
	Fault   *Fault        `yaml:"fault,omitempty"`
	Advance time.Duration `yaml:"advance,omitempty"`
	Restore string        `yaml:"restore,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Options are the safety options of a guard step.
type Options struct {
	DryRun        bool           `yaml:"dry_run,omitempty"`
	TransactionID string         `yaml:"transaction_id,omitempty"`
	AutoSnapshot  bool           `yaml:"auto_snapshot,omitempty"`
	ForceSnapshot bool           `yaml:"force_snapshot,omitempty"`
	Verbosity     diff.Verbosity `yaml:"verbosity,omitempty"`
	EffectScope   *EffectScope   `yaml:"effect_scope,omitempty"`
	ExpectedState *ExpectedState `yaml:"expected_state,omitempty"`
}

// EffectScope mirrors engine.EffectScope.
type EffectScope struct {
	MaxCells             int  `yaml:"max_cells,omitempty"`
	MaxRows              *int `yaml:"max_rows,omitempty"`
	MaxColumns           *int `yaml:"max_columns,omitempty"`
	RequireExplicitRange bool `yaml:"require_explicit_range,omitempty"`
}

// ExpectedState builds a precondition. From copies every field of a
// fingerprint captured by an earlier observe step; the other fields
// override or add to it.
type ExpectedState struct {
	From           string   `yaml:"from,omitempty"`
	Title          *string  `yaml:"title,omitempty"`
	ChecksumRange  *string  `yaml:"checksum_range,omitempty"`
	RowCount       *int     `yaml:"row_count,omitempty"`
	ColumnCount    *int     `yaml:"column_count,omitempty"`
	Checksum       *string  `yaml:"checksum,omitempty"`
	FirstRowValues []string `yaml:"first_row_values,omitempty"`
}

// Observe fingerprints a sheet.
type Observe struct {
	Document string `yaml:"document"`
	Sheet    string `yaml:"sheet,omitempty"`
	Range    string `yaml:"range,omitempty"`
}

// Rename retitles a sheet behind the guard's back.
type Rename struct {
	Document string `yaml:"document"`
	Sheet    string `yaml:"sheet"`
	To       string `yaml:"to"`
}

// Fault makes the next call of Op fail. Status 0 is a network failure
// without a response.
type Fault struct {
	Op         memstore.Op   `yaml:"op"`
	Status     int           `yaml:"status,omitempty"`
	RetryAfter time.Duration `yaml:"retry_after,omitempty"`
}

// Expect checks the outcome of a guard or restore step. Unset fields are
// not checked.
type Expect struct {
	Error         engine.Kind `yaml:"error,omitempty"`
	Field         string      `yaml:"field,omitempty"`
	CellsAffected *int        `yaml:"cells_affected,omitempty"`
	Reversible    *bool       `yaml:"reversible,omitempty"`
	DryRun        *bool       `yaml:"dry_run,omitempty"`
	Writes        *int        `yaml:"writes,omitempty"`
	DiffTier      diff.Tier   `yaml:"diff_tier,omitempty"`
	ScopeExceeded string      `yaml:"scope_exceeded,omitempty"`
}

// Assertion checks final store state.
type Assertion struct {
	// Type is one of cells, row_count, writes or snapshots.
	Type string `yaml:"type"`

	// Document is the spreadsheet id (cells, row_count, snapshots).
	Document string `yaml:"document,omitempty"`

	// Range is the A1 range compared by cells; its sheet selects the sheet
	// for row_count.
	Range string `yaml:"range,omitempty"`

	// Values are the expected cells of Range.
	Values [][]any `yaml:"values,omitempty"`

	// Count is the expected row count, write count or snapshot count.
	Count *int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertCells     = "cells"
	AssertRowCount  = "row_count"
	AssertWrites    = "writes"
	AssertSnapshots = "snapshots"
)

// Step kinds as recorded in transcripts.
const (
	StepGuard   = "guard"
	StepObserve = "observe"
	StepEdit    = "edit"
	StepRename  = "rename"
	StepFault   = "fault"
	StepAdvance = "advance"
	StepRestore = "restore"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

// Kind returns which kind of step s is, or "" when none or several are set.
func (s *Step) Kind() string {
	var kinds []string
	if s.Guard != nil {
		kinds = append(kinds, StepGuard)
	}
	if s.Observe != nil {
		kinds = append(kinds, StepObserve)
	}
	if s.Edit != nil {
		kinds = append(kinds, StepEdit)
	}
	if s.Rename != nil {
		kinds = append(kinds, StepRename)
	}
	if s.Fault != nil {
		kinds = append(kinds, StepFault)
	}
	if s.Advance != 0 {
		kinds = append(kinds, StepAdvance)
	}
	if s.Restore != "" {
		kinds = append(kinds, StepRestore)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Documents) == 0 {
		return fmt.Errorf("documents list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Policy != "" {
		if _, err := policy.Parse(s.Name+".cue", s.Policy); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}

	observed := map[string]bool{}
	for i, step := range s.Steps {
		switch step.Kind() {
		case "":
			return fmt.Errorf("steps[%d]: exactly one of guard, observe, edit, rename, fault, advance or restore is required", i)
		case StepGuard:
			if _, err := actions.FromSpec(*step.Guard); err != nil {
				return fmt.Errorf("steps[%d].guard: %w", i, err)
			}
			if !step.Options.Verbosity.Valid() {
				return fmt.Errorf("steps[%d].options.verbosity: unknown verbosity %q", i, step.Options.Verbosity)
			}
			if es := step.Options.ExpectedState; es != nil && es.From != "" && !observed[es.From] {
				return fmt.Errorf("steps[%d].options.expected_state.from: no earlier observe step named %q", i, es.From)
			}
		case StepEdit:
			if _, err := actions.FromSpec(*step.Edit); err != nil {
				return fmt.Errorf("steps[%d].edit: %w", i, err)
			}
		case StepObserve:
			if step.Name == "" {
				return fmt.Errorf("steps[%d]: observe steps need a name", i)
			}
			if step.Observe.Document == "" {
				return fmt.Errorf("steps[%d].observe: document is required", i)
			}
			observed[step.Name] = true
		case StepRename:
			if step.Rename.Document == "" || step.Rename.Sheet == "" || step.Rename.To == "" {
				return fmt.Errorf("steps[%d].rename: document, sheet and to are required", i)
			}
		case StepFault:
			if step.Fault.Op == "" {
				return fmt.Errorf("steps[%d].fault: op is required", i)
			}
		case StepAdvance:
			if step.Advance < 0 {
				return fmt.Errorf("steps[%d].advance: must be positive", i)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertCells:
		if a.Document == "" || a.Range == "" {
			return fmt.Errorf("assertions[%d]: document and range are required for cells", index)
		}
	case AssertRowCount, AssertSnapshots:
		if a.Document == "" || a.Count == nil {
			return fmt.Errorf("assertions[%d]: document and count are required for %s", index, a.Type)
		}
	case AssertWrites:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for writes", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
