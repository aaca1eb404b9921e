package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cwatch",
	Short: "Lifecycle-event capture for Claude Code",
	Long: `cwatch records Claude Code lifecycle events: session starts, prompts,
tool invocations, and stops. Events are written to a remote Turso
database when one is configured, with automatic failover to a local
SQLite store. PreToolUse events additionally receive a permission
decision before the tool runs.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(migrateCmd)
}
