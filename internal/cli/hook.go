package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/cwatch/internal/config"
	"github.com/emiliopalmerini/cwatch/internal/domain"
	"github.com/emiliopalmerini/cwatch/internal/hook"
)

// exitBlocking is the one reserved exit code. Claude Code surfaces it
// on the agent's error channel; every other non-zero exit is only a
// warning to the operator.
const exitBlocking = 2

// testAppOverride allows tests to inject a prebuilt pipeline.
var testAppOverride *hook.App

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle a Claude Code hook event",
	Long: `Reads one hook event JSON document from stdin, records it, and writes
the response envelope to stdout.

Configure every hook to call "cwatch hook":

  {
    "hooks": {
      "SessionStart":     [{"type": "command", "command": "cwatch hook"}],
      "UserPromptSubmit": [{"type": "command", "command": "cwatch hook"}],
      "PreToolUse":       [{"type": "command", "command": "cwatch hook"}],
      "PostToolUse":      [{"type": "command", "command": "cwatch hook"}],
      "Stop":             [{"type": "command", "command": "cwatch hook"}],
      "SessionEnd":       [{"type": "command", "command": "cwatch hook"}]
    }
  }

The command always exits 0 and reports continue=true, with one
exception: a denied PreToolUse action exits with the blocking code so
the agent sees the refusal.`,
	RunE: runHook,
}

func runHook(cmd *cobra.Command, args []string) error {
	result := executeHook(os.Stdin)

	if err := outputJSON(result.Response); err != nil {
		return err
	}
	if result.Blocking {
		os.Exit(exitBlocking)
	}
	return nil
}

// executeHook builds the pipeline and runs it over stdin. Every
// failure before the pipeline even starts is converted into the safe
// default envelope; nothing on this path may stop the agent.
func executeHook(stdin io.Reader) *hook.Result {
	app, cleanup, err := hookApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		return failOpen(err)
	}
	defer cleanup()

	// One extra byte past the limit lets the normalizer distinguish
	// an oversized payload from one that exactly fits.
	input, err := io.ReadAll(io.LimitReader(stdin, app.Config.MaxPayloadBytes+1))
	if err != nil {
		return failOpen(err)
	}

	return app.Handle(context.Background(), input)
}

// hookApp returns the pipeline and a cleanup function. Uses
// testAppOverride if set, otherwise wires config, logger, and storage.
func hookApp() (*hook.App, func(), error) {
	if testAppOverride != nil {
		return testAppOverride, func() {}, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := hook.NewLogger(cfg.Debug)
	app, err := hook.New(cfg, logger, nil)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	return app, func() {
		app.Close()
		_ = logger.Sync()
	}, nil
}

func failOpen(err error) *hook.Result {
	return &hook.Result{
		Response: &domain.Response{
			Continue:       true,
			SuppressOutput: true,
			Error:          err.Error(),
		},
	}
}

// outputJSON writes a response envelope to stdout.
func outputJSON(resp *domain.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshalling response: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
