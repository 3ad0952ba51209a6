package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// PollCommand asks the running engine for an immediate poll cycle.
type PollCommand struct {
	client *apiClient
}

func (c *PollCommand) Register(parent *cobra.Command) {
	command := &cobra.Command{
		Use:   "poll",
		Short: "Trigger a poll cycle now",
		Long: `Ask the running engine to poll all enabled sources immediately
instead of waiting for the next scheduled cycle. Also clears any
rate-limit backoff.`,
		PreRunE: func(cobraCmd *cobra.Command, args []string) error {
			var err error
			c.client, err = newAPIClient()
			return err
		},
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			return c.Run(cobraCmd.Context())
		},
	}
	parent.AddCommand(command)
}

func (c *PollCommand) Run(ctx context.Context) error {
	if err := c.client.TriggerPoll(ctx); err != nil {
		return fmt.Errorf("failed to trigger poll: %w", err)
	}
	fmt.Println("poll cycle completed")
	return nil
}
