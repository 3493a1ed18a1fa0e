package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete finished games older than the retention window and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := runCleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d finished games\n", deleted)
			return nil
		},
	}
}

func runCleanup(ctx context.Context) (int, error) {
	svc, err := newServices(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer svc.close()
	return svc.games.CleanupFinishedGames(ctx)
}
