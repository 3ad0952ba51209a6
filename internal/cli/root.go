// Package cli assembles the prdeck command tree.
package cli

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

// Command is a CLI command that can register itself with cobra.
type Command interface {
	Register(parent *cobra.Command)
}

var rootCmd = &cobra.Command{
	Use:   "prdeck",
	Short: "PR inbox board",
	Long: `prdeck keeps a kanban-style board of pull requests that need your
review, fed by GitHub search queries and Slack channel scans.

Run "prdeck serve" to start the sync engine, then use the other commands
to inspect and work the board.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. Called by main.main().
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

func init() {
	commands := []Command{
		&ServeCommand{},
		&PollCommand{},
		&StatusCommand{},
		&SourcesCommand{},
		&IgnoreCommand{},
		&MoveCommand{},
		&AddCommand{},
	}
	for _, cmd := range commands {
		cmd.Register(rootCmd)
	}
}
