package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <external-session-id>",
	Short: "Show one session with recomputed aggregates",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsLimit int

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum sessions to list")
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	app, cleanup, err := hookApp()
	if err != nil {
		return err
	}
	defer cleanup()

	sessions, err := app.Store.ListSessions(context.Background(), sessionsLimit)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions recorded")
		return nil
	}

	for _, s := range sessions {
		status := "open"
		if s.Ended() {
			status = "ended " + s.EndTime.Format(time.RFC3339)
		}
		fmt.Printf("%s  %s  %s  %s\n", s.ExternalID, s.StartTime.Format(time.RFC3339), status, s.ProjectPath)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	app, cleanup, err := hookApp()
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := app.Tracker.Summarize(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}

	s := summary.Session
	fmt.Printf("Session:      %s\n", s.ExternalID)
	fmt.Printf("  Started:    %s\n", s.StartTime.Format(time.RFC3339))
	if s.Ended() {
		fmt.Printf("  Ended:      %s\n", s.EndTime.Format(time.RFC3339))
		fmt.Printf("  Duration:   %s\n", summary.Duration.Round(time.Second))
	}
	if s.ProjectPath != "" {
		fmt.Printf("  Project:    %s\n", s.ProjectPath)
	}
	if s.GitBranch != "" {
		fmt.Printf("  Branch:     %s (%s)\n", s.GitBranch, shortCommit(s.GitCommit))
	}
	if s.Source != "" {
		fmt.Printf("  Source:     %s\n", s.Source)
	}
	fmt.Printf("  Events:     %d\n", summary.Stats.TotalEvents)
	fmt.Printf("  Tool uses:  %d\n", summary.Stats.ToolUses)
	fmt.Printf("  Prompts:    %d\n", summary.Stats.Prompts)

	return nil
}

func shortCommit(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
