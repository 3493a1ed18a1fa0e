package cmd

import (
	"context"

	"github.com/krishanu7/battleship-engine/internal/match"
	"github.com/krishanu7/battleship-engine/pkg/log"
	"github.com/spf13/cobra"
)

func newMatchmakerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "matchmaker",
		Short: "Pair queued players into rooms and games",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatchmaker(cmd.Context())
		},
	}
}

func runMatchmaker(parent context.Context) error {
	ctx, stop := signalContext(parent)
	defer stop()

	svc, err := newServices(ctx, nil)
	if err != nil {
		return err
	}
	defer svc.close()

	matcher := match.NewService(svc.store, svc.rooms, svc.publisher)
	matches := make(chan match.MatchResult)
	go func() {
		for result := range matches {
			log.Info("Matched players %s and %s in room %s (game %s)", result.Player1, result.Player2, result.RoomID, result.GameID)
		}
	}()

	log.Info("Matchmaker service starting...")
	err = matcher.RunMatchmaker(ctx, matches)
	close(matches)
	return err
}
