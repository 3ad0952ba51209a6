package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prdeck/prdeck/internal/inbox"
	"github.com/prdeck/prdeck/internal/service"
	"github.com/prdeck/prdeck/internal/ui"
)

// SourcesCommand manages the source registry.
type SourcesCommand struct {
	client *apiClient

	name    string
	query   string
	channel string
}

func (c *SourcesCommand) Register(parent *cobra.Command) {
	command := &cobra.Command{
		Use:   "sources",
		Short: "Manage PR sources",
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return cobraCmd.Help()
		},
	}

	connect := func(cobraCmd *cobra.Command, args []string) error {
		var err error
		c.client, err = newAPIClient()
		return err
	}

	list := &cobra.Command{
		Use:     "list",
		Short:   "List configured sources",
		PreRunE: connect,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return c.runList(cobraCmd.Context())
		},
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Add a source",
		Long: `Add a query source (--query) or a channel source (--channel).

Example:
  prdeck sources add --name team-reviews --query "review-requested:@me"
  prdeck sources add --name eng-prs --channel eng-pull-requests`,
		PreRunE: connect,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return c.runAdd(cobraCmd.Context())
		},
	}
	add.Flags().StringVar(&c.name, "name", "", "Display name for the source")
	add.Flags().StringVar(&c.query, "query", "", "GitHub search query")
	add.Flags().StringVar(&c.channel, "channel", "", "Slack channel to scan for PR links")

	remove := &cobra.Command{
		Use:     "rm <source-id>",
		Short:   "Remove a source and its tracked PRs",
		Args:    cobra.ExactArgs(1),
		PreRunE: connect,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return c.runRemove(cobraCmd.Context(), args[0])
		},
	}

	enable := &cobra.Command{
		Use:     "enable <source-id>",
		Short:   "Enable a source",
		Args:    cobra.ExactArgs(1),
		PreRunE: connect,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return c.runSetEnabled(cobraCmd.Context(), args[0], true)
		},
	}

	disable := &cobra.Command{
		Use:     "disable <source-id>",
		Short:   "Disable a source without forgetting its PRs",
		Args:    cobra.ExactArgs(1),
		PreRunE: connect,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return c.runSetEnabled(cobraCmd.Context(), args[0], false)
		},
	}

	command.AddCommand(list, add, remove, enable, disable)
	parent.AddCommand(command)
}

func (c *SourcesCommand) runList(ctx context.Context) error {
	state, err := c.client.GetState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	fmt.Println(ui.RenderSources(state.Sources))
	return nil
}

func (c *SourcesCommand) runAdd(ctx context.Context) error {
	src := inbox.Source{
		Name:        c.name,
		Query:       c.query,
		ChannelName: c.channel,
		Enabled:     true,
	}
	switch {
	case c.query != "" && c.channel != "":
		return fmt.Errorf("--query and --channel are mutually exclusive")
	case c.query != "":
		src.Kind = inbox.SourceKindQuery
	case c.channel != "":
		src.Kind = inbox.SourceKindChannel
	default:
		return fmt.Errorf("one of --query or --channel is required")
	}

	added, err := c.client.AddSource(ctx, src)
	if err != nil {
		return fmt.Errorf("failed to add source: %w", err)
	}
	fmt.Printf("added source %s (%s)\n", added.Name, added.ID)
	return nil
}

func (c *SourcesCommand) runRemove(ctx context.Context, id string) error {
	if err := c.client.RemoveSource(ctx, id); err != nil {
		return fmt.Errorf("failed to remove source: %w", err)
	}
	fmt.Printf("removed source %s\n", id)
	return nil
}

func (c *SourcesCommand) runSetEnabled(ctx context.Context, id string, enabled bool) error {
	patch := service.SourcePatch{Enabled: &enabled}
	if err := c.client.UpdateSource(ctx, id, patch); err != nil {
		return fmt.Errorf("failed to update source: %w", err)
	}
	if enabled {
		fmt.Printf("enabled source %s\n", id)
	} else {
		fmt.Printf("disabled source %s\n", id)
	}
	return nil
}
