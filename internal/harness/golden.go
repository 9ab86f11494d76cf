package harness

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Transcript is the golden-file form of a run.
type Transcript struct {
	Scenario string       `json:"scenario"`
	Steps    []StepRecord `json:"steps"`
}

// MarshalTranscript renders the transcript of result as indented JSON with
// a trailing newline.
func MarshalTranscript(name string, result *Result) ([]byte, error) {
	data, err := json.MarshalIndent(Transcript{Scenario: name, Steps: result.Steps}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden runs scenario, fails t on any expectation or assertion
// failure, and compares the transcript against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("run %s: %v", scenario.Name, err)
	}
	for _, e := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, e)
	}

	data, err := MarshalTranscript(scenario.Name, result)
	if err != nil {
		t.Fatalf("marshal transcript: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result
}
