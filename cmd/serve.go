package cmd

import (
	"context"
	"database/sql"
	"errors"

	"github.com/krishanu7/battleship-engine/db"
	"github.com/krishanu7/battleship-engine/internal/auth"
	"github.com/krishanu7/battleship-engine/internal/game"
	"github.com/krishanu7/battleship-engine/internal/leaderboard"
	"github.com/krishanu7/battleship-engine/internal/match"
	"github.com/krishanu7/battleship-engine/internal/room"
	"github.com/krishanu7/battleship-engine/internal/server"
	"github.com/krishanu7/battleship-engine/internal/ws"
	"github.com/krishanu7/battleship-engine/pkg/log"
	wsPkg "github.com/krishanu7/battleship-engine/pkg/websocket"
	"github.com/spf13/cobra"
)

var errMissingSecret = errors.New("JWT_SECRET must be set to serve the API")

func newServeCommand() *cobra.Command {
	var withMatchmaker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), withMatchmaker)
		},
	}
	cmd.Flags().BoolVar(&withMatchmaker, "matchmaker", true, "also run the matchmaker in this process")
	return cmd
}

func runServe(parent context.Context, withMatchmaker bool) error {
	if cfg.Auth.JWTSecret == "" {
		return errMissingSecret
	}
	ctx, stop := signalContext(parent)
	defer stop()

	var (
		conn        *sql.DB
		results     game.ResultRecorder
		authHandler *auth.AuthHandler
		lbHandler   *leaderboard.Handler
	)
	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if cfg.Database.URL != "" {
		var err error
		if conn, err = db.Open(ctx, cfg.Database.URL); err != nil {
			return err
		}
		defer conn.Close()
		board := leaderboard.NewService(conn)
		results = board
		lbHandler = leaderboard.NewHandler(board)
		authHandler = auth.NewAuthHandler(auth.NewService(conn, tokens))
	} else {
		log.Warn("DB_URL is not set; accounts and leaderboard are disabled")
	}

	svc, err := newServices(ctx, results)
	if err != nil {
		return err
	}
	defer svc.close()

	hub := wsPkg.NewHub()
	worker := ws.NewNotificationWorker(svc.store, hub)
	go func() {
		if err := worker.Run(ctx); err != nil {
			log.Error("Notification worker stopped: %v", err)
		}
	}()

	go game.NewJanitor(svc.games, cfg.Game.CleanupInterval).Run(ctx)

	matcher := match.NewService(svc.store, svc.rooms, svc.publisher)
	if withMatchmaker {
		go func() {
			if err := matcher.RunMatchmaker(ctx, nil); err != nil {
				log.Error("Matchmaker stopped: %v", err)
			}
		}()
	}

	srv := server.NewAPIServer(server.NewAPIServerOptions{
		Port:        cfg.Server.Port,
		Tokens:      tokens,
		Store:       svc.store,
		Games:       game.NewHandler(svc.games, svc.audit),
		Rooms:       room.NewHandler(svc.rooms),
		Match:       match.NewHandler(matcher),
		WS:          ws.NewHandler(hub, svc.games, tokens),
		Auth:        authHandler,
		Leaderboard: lbHandler,
	})
	go srv.Start()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
