package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prdeck/prdeck/internal/ui"
)

// StatusCommand renders the review board.
type StatusCommand struct {
	client *apiClient
}

func (c *StatusCommand) Register(parent *cobra.Command) {
	command := &cobra.Command{
		Use:   "status",
		Short: "Show the review board",
		Long: `Render the current board: inbox, needs-attention, reviewed, and
done columns, with the last poll time.`,
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

func (c *StatusCommand) Run(ctx context.Context) error {
	state, err := c.client.GetState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	fmt.Println(ui.RenderBoard(state))
	return nil
}
