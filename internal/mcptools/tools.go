// Package mcptools exposes the mutation guard as MCP tools.
//
// Every mutation tool decodes its arguments into an actions.Spec plus a
// "safety" block (engine.SafetyOptions in its JSON form), fills unset
// options from the policy, and calls Guard. Results are JSON text content:
// the MutationReport on success, {"error": EngineError} with IsError set on
// failure, so callers can switch on error.code.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/khill1269/servalsheets-sub001/internal/actions"
	"github.com/khill1269/servalsheets-sub001/internal/engine"
	"github.com/khill1269/servalsheets-sub001/internal/fingerprint"
	"github.com/khill1269/servalsheets-sub001/internal/policy"
	"github.com/khill1269/servalsheets-sub001/internal/sheet"
	"github.com/khill1269/servalsheets-sub001/internal/snapshot"
)

// Tool names.
const (
	ToolWriteRange      = "sheets_write_range"
	ToolClearRange      = "sheets_clear_range"
	ToolInsertRows      = "sheets_insert_rows"
	ToolDeleteRows      = "sheets_delete_rows"
	ToolFingerprint     = "sheets_fingerprint"
	ToolListSnapshots   = "sheets_list_snapshots"
	ToolRestoreSnapshot = "sheets_restore_snapshot"
)

// Engine is the part of *engine.Engine the tools use.
type Engine interface {
	engine.MutationGuard
	Fingerprints() *fingerprint.Service
	ListSnapshots(ctx context.Context, spreadsheetID string) ([]snapshot.Snapshot, error)
	RestoreSnapshot(ctx context.Context, id string) (sheet.DocumentRef, error)
}

// Tools registers guarded spreadsheet tools on an MCP server.
type Tools struct {
	engine Engine
	policy *policy.Policy
	logger *slog.Logger
}

// Option configures Tools.
type Option func(*Tools)

// WithPolicy sets the policy whose defaults fill unset safety options.
func WithPolicy(p *policy.Policy) Option {
	return func(t *Tools) {
		t.policy = p
	}
}

// WithLogger sets the logger. Default: slog.Default() tagged component=mcptools.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tools) {
		t.logger = l
	}
}

// New creates the tool set over eng.
func New(eng Engine, opts ...Option) *Tools {
	t := &Tools{
		engine: eng,
		logger: slog.Default().With("component", "mcptools"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register adds every tool to srv.
func (t *Tools) Register(srv *mcp.Server) {
	t.registerMutation(srv, ToolWriteRange, actions.KindWriteRange,
		"Write a block of values anchored at the top-left cell of range. Guarded by preconditions, effect scope, snapshots and idempotency.",
		map[string]any{
			"range":  prop("string", "A1 range, e.g. Sheet1!B2:C3"),
			"values": map[string]any{"type": "array", "items": map[string]any{"type": "array"}, "description": `Rows of cell values. Text starting with "=" is a formula; write {"string": "=..."} for literal text`},
		}, "range", "values")
	t.registerMutation(srv, ToolClearRange, actions.KindClearRange,
		"Clear every cell in range. An empty range clears the whole sheet.",
		map[string]any{
			"range": prop("string", "A1 range to clear"),
		})
	t.registerMutation(srv, ToolInsertRows, actions.KindInsertRows,
		"Insert count empty rows before the zero-based row startIndex.",
		map[string]any{
			"startIndex": prop("integer", "Zero-based row to insert before"),
			"count":      prop("integer", "Number of rows to insert"),
		}, "count")
	t.registerMutation(srv, ToolDeleteRows, actions.KindDeleteRows,
		"Delete rows [startIndex, endIndex), zero-based.",
		map[string]any{
			"startIndex": prop("integer", "First row to delete"),
			"endIndex":   prop("integer", "Row after the last one to delete"),
		}, "endIndex")
	t.registerFingerprint(srv)
	t.registerListSnapshots(srv)
	t.registerRestoreSnapshot(srv)
}

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// safetySchema describes the safety block shared by mutation tools.
var safetySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"dryRun":        prop("boolean", "Report the predicted effect without writing"),
		"transactionId": prop("string", "Idempotency key; a retry with the same request replays the first result"),
		"autoSnapshot":  prop("boolean", "Snapshot before destructive actions"),
		"forceSnapshot": prop("boolean", "Snapshot before any action"),
		"verbosity":     map[string]any{"type": "string", "enum": []string{"minimal", "standard", "detailed"}},
		"expectedState": map[string]any{"type": "object", "description": "Fingerprint fields the sheet must still match"},
		"effectScope":   map[string]any{"type": "object", "description": "maxCellsAffected, maxRowsAffected, maxColumnsAffected, requireExplicitRange"},
	},
}

type mutationArgs struct {
	actions.Spec
	Safety engine.SafetyOptions `json:"safety"`
}

func (t *Tools) registerMutation(srv *mcp.Server, name, kind, desc string, extra map[string]any, required ...string) {
	props := map[string]any{
		"spreadsheetId": prop("string", "Target spreadsheet"),
		"sheet":         prop("string", "Sheet title; defaults to the range's sheet or the first sheet"),
		"safety":        safetySchema,
	}
	for k, v := range extra {
		props[k] = v
	}
	tool := &mcp.Tool{
		Name:        name,
		Description: desc,
		InputSchema: inputSchema(props, append([]string{"spreadsheetId"}, required...)),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args mutationArgs
		if err := decodeArgs(req, &args); err != nil {
			return errorResult(err), nil
		}
		args.Kind = kind
		if !args.Safety.Verbosity.Valid() {
			return errorResult(fmt.Errorf("invalid arguments: unknown verbosity %q", args.Safety.Verbosity)), nil
		}
		act, err := actions.FromSpec(args.Spec)
		if err != nil {
			return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		opts := t.policy.Apply(kind, args.Safety)

		report, err := t.engine.Guard(ctx, act, opts)
		if err != nil {
			t.logger.Debug("guard refused", "tool", name, "code", engine.KindOf(err), "error", err)
			return errorResult(err), nil
		}
		return jsonResult(report)
	})
}

type fingerprintArgs struct {
	SpreadsheetID string `json:"spreadsheetId"`
	Sheet         string `json:"sheet"`
	ChecksumRange string `json:"checksumRange"`
}

func (t *Tools) registerFingerprint(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        ToolFingerprint,
		Description: "Observe a sheet's fingerprint. Pass it back as safety.expectedState to guard a later mutation.",
		InputSchema: inputSchema(map[string]any{
			"spreadsheetId": prop("string", "Target spreadsheet"),
			"sheet":         prop("string", "Sheet title; defaults to the first sheet"),
			"checksumRange": prop("string", "A1 range the checksum covers; defaults to the whole sheet"),
		}, []string{"spreadsheetId"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args fingerprintArgs
		if err := decodeArgs(req, &args); err != nil {
			return errorResult(err), nil
		}
		if args.SpreadsheetID == "" {
			return errorResult(errors.New("invalid arguments: spreadsheetId is required")), nil
		}
		var rng *sheet.GridRange
		if args.ChecksumRange != "" {
			r, err := sheet.ParseA1(args.ChecksumRange)
			if err != nil {
				return errorResult(fmt.Errorf("invalid arguments: checksumRange: %w", err)), nil
			}
			rng = &r
		}
		ref := sheet.DocumentRef{SpreadsheetID: args.SpreadsheetID, Sheet: args.Sheet}
		fp, err := t.engine.Fingerprints().Observe(ctx, ref, rng)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(fp)
	})
}

type listSnapshotsArgs struct {
	SpreadsheetID string `json:"spreadsheetId"`
}

func (t *Tools) registerListSnapshots(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        ToolListSnapshots,
		Description: "List snapshots, oldest first, optionally for one spreadsheet.",
		InputSchema: inputSchema(map[string]any{
			"spreadsheetId": prop("string", "Only list snapshots of this spreadsheet"),
		}, nil),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args listSnapshotsArgs
		if err := decodeArgs(req, &args); err != nil {
			return errorResult(err), nil
		}
		snaps, err := t.engine.ListSnapshots(ctx, args.SpreadsheetID)
		if err != nil {
			return errorResult(err), nil
		}
		if snaps == nil {
			snaps = []snapshot.Snapshot{}
		}
		return jsonResult(map[string]any{"snapshots": snaps})
	})
}

type restoreArgs struct {
	SnapshotID string `json:"snapshotId"`
}

func (t *Tools) registerRestoreSnapshot(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        ToolRestoreSnapshot,
		Description: "Restore a snapshot as a new spreadsheet. The original is left untouched.",
		InputSchema: inputSchema(map[string]any{
			"snapshotId": prop("string", "Snapshot to restore (revertSnapshotId of a report)"),
		}, []string{"snapshotId"}),
	}

	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args restoreArgs
		if err := decodeArgs(req, &args); err != nil {
			return errorResult(err), nil
		}
		if args.SnapshotID == "" {
			return errorResult(errors.New("invalid arguments: snapshotId is required")), nil
		}
		ref, err := t.engine.RestoreSnapshot(ctx, args.SnapshotID)
		if err != nil {
			return errorResult(err), nil
		}
		t.logger.Info("snapshot restored", "snapshot_id", args.SnapshotID, "restored", ref.String())
		return jsonResult(map[string]any{"restored": ref})
	})
}

func decodeArgs(req *mcp.CallToolRequest, v any) error {
	if len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Errorf("marshal: %w", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

// errorResult renders err as {"error": ...}. Engine errors keep their
// code, retry advice and details; anything else becomes a message.
func errorResult(err error) *mcp.CallToolResult {
	var body struct {
		Error any `json:"error"`
	}
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		body.Error = ee
	} else {
		body.Error = map[string]string{"message": err.Error()}
	}
	data, merr := json.Marshal(body)
	if merr != nil {
		data = []byte(fmt.Sprintf(`{"error":{"message":%q}}`, err.Error()))
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
