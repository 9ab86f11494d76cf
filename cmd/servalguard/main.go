// Command servalguard guards spreadsheet mutations for AI agents.
//
// Usage:
//
//	servalguard serve -c servalguard.yaml
//	servalguard fingerprint <spreadsheet-id> --format json
//	servalguard scenario ./scenarios
//
// Build with -ldflags "-X github.com/khill1269/servalsheets-sub001/internal/cli.Version=v1.2.3"
// to stamp the version reported to MCP clients.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/khill1269/servalsheets-sub001/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
