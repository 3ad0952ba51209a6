package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/prdeck/prdeck/internal/inbox"
)

// IgnoreCommand hides a PR from the board and suppresses rediscovery.
type IgnoreCommand struct {
	client *apiClient
}

func (c *IgnoreCommand) Register(parent *cobra.Command) {
	command := &cobra.Command{
		Use:   "ignore <owner/repo#number>",
		Short: "Ignore a PR so polling won't bring it back",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cobraCmd *cobra.Command, args []string) error {
			var err error
			c.client, err = newAPIClient()
			return err
		},
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return c.Run(cobraCmd.Context(), args[0])
		},
	}
	parent.AddCommand(command)
}

func (c *IgnoreCommand) Run(ctx context.Context, prID string) error {
	if err := c.client.IgnorePR(ctx, prID); err != nil {
		return fmt.Errorf("failed to ignore %s: %w", prID, err)
	}
	fmt.Printf("ignored %s\n", prID)
	return nil
}

// MoveCommand moves a PR between board columns.
type MoveCommand struct {
	client *apiClient
}

func (c *MoveCommand) Register(parent *cobra.Command) {
	command := &cobra.Command{
		Use:   "move <owner/repo#number> <column>",
		Short: "Move a PR to another column",
		Long: `Move a PR to one of: inbox, needs-attention, reviewed, done.
PRs in done stay there; closed or merged PRs land there on their own.`,
		Args: cobra.ExactArgs(2),
		PreRunE: func(cobraCmd *cobra.Command, args []string) error {
			var err error
			c.client, err = newAPIClient()
			return err
		},
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return c.Run(cobraCmd.Context(), args[0], args[1])
		},
	}
	parent.AddCommand(command)
}

func (c *MoveCommand) Run(ctx context.Context, prID, column string) error {
	if err := c.client.MovePR(ctx, prID, inbox.Column(column)); err != nil {
		return fmt.Errorf("failed to move %s: %w", prID, err)
	}
	fmt.Printf("moved %s to %s\n", prID, column)
	return nil
}

// AddCommand tracks a PR by hand, outside any source.
type AddCommand struct {
	client *apiClient
}

func (c *AddCommand) Register(parent *cobra.Command) {
	command := &cobra.Command{
		Use:   "add <owner/repo#number>",
		Short: "Track a PR manually",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cobraCmd *cobra.Command, args []string) error {
			var err error
			c.client, err = newAPIClient()
			return err
		},
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return c.Run(cobraCmd.Context(), args[0])
		},
	}
	parent.AddCommand(command)
}

func (c *AddCommand) Run(ctx context.Context, ref string) error {
	owner, repo, number, err := parsePRRef(ref)
	if err != nil {
		return err
	}
	if err := c.client.AddPR(ctx, owner, repo, number); err != nil {
		return fmt.Errorf("failed to add %s: %w", ref, err)
	}
	fmt.Printf("tracking %s\n", ref)
	return nil
}

func parsePRRef(ref string) (owner, repo string, number int, err error) {
	slashRest, hashPart, found := strings.Cut(ref, "#")
	if !found {
		return "", "", 0, fmt.Errorf("expected owner/repo#number, got %q", ref)
	}
	owner, repo, found = strings.Cut(slashRest, "/")
	if !found || owner == "" || repo == "" {
		return "", "", 0, fmt.Errorf("expected owner/repo#number, got %q", ref)
	}
	number, err = strconv.Atoi(hashPart)
	if err != nil || number <= 0 {
		return "", "", 0, fmt.Errorf("expected owner/repo#number, got %q", ref)
	}
	return owner, repo, number, nil
}
