package mcptools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khill1269/servalsheets-sub001/internal/docstore/memstore"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/idgen"
	"github.com/khill1269/servalsheets-sub001/internal/policy"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
	"github.com/khill1269/servalsheets-sub001/internal/testutil"
)

var testImpl = &mcp.Implementation{Name: "servalguard-test", Version: "0.1.0"}

type fixture struct {
	store   *memstore.Store
	session *mcp.ClientSession
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := memstore.New()
	require.NoError(t, store.Load(memstore.Seed{
		ID:    "budget",
		Title: "Household budget",
		Sheets: []memstore.SeedSheet{{
			Title:  "Costs",
			Values: [][]any{{"Item", "Cost"}, {"Rent", 1200}, {"Food", 300}},
		}},
	}))
	eng := engine.New(store, engine.EngineContext{
		Clock: testutil.NewFixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
	}, engine.WithIDGenerator(idgen.NewSequence("snap")))

	srv := mcp.NewServer(testImpl, nil)
	New(eng, opts...).Register(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return &fixture{store: store, session: session}
}

// call invokes a tool and returns its decoded JSON body and error flag.
func (f *fixture) call(t *testing.T, name string, args any) (map[string]any, bool) {
	t.Helper()
	res, err := f.session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected TextContent")

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &body), tc.Text)
	return body, res.IsError
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "no error in %v", body)
	code, _ := e["code"].(string)
	return code
}

func TestTools_Listed(t *testing.T) {
	f := newFixture(t)
	res, err := f.session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		ToolWriteRange, ToolClearRange, ToolInsertRows, ToolDeleteRows,
		ToolFingerprint, ToolListSnapshots, ToolRestoreSnapshot,
	}, names)
}

func TestWriteRange_GuardedByFingerprint(t *testing.T) {
	f := newFixture(t)

	fp, isErr := f.call(t, ToolFingerprint, map[string]any{"spreadsheetId": "budget", "sheet": "Costs"})
	require.False(t, isErr, "%v", fp)
	assert.Equal(t, "Costs", fp["title"])
	assert.EqualValues(t, 3, fp["rowCount"])

	args := map[string]any{
		"spreadsheetId": "budget",
		"range":         "Costs!B2",
		"values":        [][]any{{1250}},
		"safety":        map[string]any{"expectedState": fp, "verbosity": "detailed"},
	}
	report, isErr := f.call(t, ToolWriteRange, args)
	require.False(t, isErr, "%v", report)
	assert.EqualValues(t, 1, report["cellsAffected"])
	diff := report["diff"].(map[string]any)
	assert.Equal(t, "FULL", diff["tier"])

	// The same fingerprint is now stale.
	body, isErr := f.call(t, ToolWriteRange, args)
	assert.True(t, isErr)
	assert.Equal(t, string(engine.KindVersionMismatch), errorCode(t, body))
	assert.Equal(t, 1, f.store.Calls(memstore.OpApplyBatch))
}

func TestClearRange_SnapshotAndRestore(t *testing.T) {
	f := newFixture(t)

	report, isErr := f.call(t, ToolClearRange, map[string]any{
		"spreadsheetId": "budget",
		"range":         "Costs!A3:B3",
		"safety":        map[string]any{"autoSnapshot": true},
	})
	require.False(t, isErr, "%v", report)
	assert.Equal(t, true, report["reversible"])
	assert.Equal(t, "snap-1", report["revertSnapshotId"])

	list, isErr := f.call(t, ToolListSnapshots, map[string]any{"spreadsheetId": "budget"})
	require.False(t, isErr)
	assert.Len(t, list["snapshots"], 1)

	restored, isErr := f.call(t, ToolRestoreSnapshot, map[string]any{"snapshotId": "snap-1"})
	require.False(t, isErr, "%v", restored)
	ref := restored["restored"].(map[string]any)
	id := ref["spreadsheetId"].(string)

	g, err := f.store.Grid(sheet.DocumentRef{SpreadsheetID: id, Sheet: "Costs"})
	require.NoError(t, err)
	assert.Equal(t, "Food", g.At(2, 0).Display())
}

func TestRestoreSnapshot_Unknown(t *testing.T) {
	f := newFixture(t)
	body, isErr := f.call(t, ToolRestoreSnapshot, map[string]any{"snapshotId": "nope"})
	assert.True(t, isErr)
	assert.Equal(t, string(engine.KindSnapshotNotFound), errorCode(t, body))
}

func TestDeleteRows_PolicyDefaults(t *testing.T) {
	pol, err := policy.Parse("inline.cue", `policy: actions: delete_rows: effectScope: maxRowsAffected: 1`)
	require.NoError(t, err)
	f := newFixture(t, WithPolicy(pol))

	body, isErr := f.call(t, ToolDeleteRows, map[string]any{
		"spreadsheetId": "budget", "sheet": "Costs", "startIndex": 1, "endIndex": 3,
	})
	assert.True(t, isErr)
	assert.Equal(t, string(engine.KindEffectScopeExceeded), errorCode(t, body))
	assert.Equal(t, "maxRowsAffected", body["error"].(map[string]any)["limit"])

	// An explicit scope in the request wins over the policy.
	report, isErr := f.call(t, ToolDeleteRows, map[string]any{
		"spreadsheetId": "budget", "sheet": "Costs", "startIndex": 1, "endIndex": 3,
		"safety": map[string]any{"effectScope": map[string]any{"maxRowsAffected": 5}},
	})
	require.False(t, isErr, "%v", report)
	assert.EqualValues(t, 2, report["rowsAffected"])
}

func TestInsertRows_DryRun(t *testing.T) {
	f := newFixture(t)
	report, isErr := f.call(t, ToolInsertRows, map[string]any{
		"spreadsheetId": "budget", "sheet": "Costs", "startIndex": 1, "count": 2,
		"safety": map[string]any{"dryRun": true},
	})
	require.False(t, isErr, "%v", report)
	assert.Equal(t, true, report["dryRun"])
	assert.EqualValues(t, 4, report["cellsAffected"])
	assert.Equal(t, 0, f.store.Calls(memstore.OpApplyBatch))
}

func TestInvalidArguments(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"missing spreadsheet", ToolClearRange, map[string]any{"range": "A1"}, "spreadsheetId is required"},
		{"bad range", ToolWriteRange, map[string]any{"spreadsheetId": "budget", "range": "Costs!B2:A1", "values": [][]any{{1}}}, "out of order"},
		{"bad verbosity", ToolClearRange, map[string]any{"spreadsheetId": "budget", "safety": map[string]any{"verbosity": "loud"}}, "unknown verbosity"},
		{"bad checksum range", ToolFingerprint, map[string]any{"spreadsheetId": "budget", "checksumRange": "Costs!"}, "checksumRange"},
		{"no snapshot id", ToolRestoreSnapshot, map[string]any{}, "snapshotId is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, isErr := f.call(t, tt.tool, tt.args)
			assert.True(t, isErr)
			e := body["error"].(map[string]any)
			assert.Contains(t, e["message"], tt.want)
		})
	}
	assert.Equal(t, 0, f.store.Calls(memstore.OpApplyBatch))
}
