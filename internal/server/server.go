package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/krishanu7/battleship-engine/internal/auth"
	"github.com/krishanu7/battleship-engine/internal/game"
	"github.com/krishanu7/battleship-engine/internal/leaderboard"
	"github.com/krishanu7/battleship-engine/internal/match"
	"github.com/krishanu7/battleship-engine/internal/metrics"
	"github.com/krishanu7/battleship-engine/internal/room"
	"github.com/krishanu7/battleship-engine/internal/ws"
	"github.com/krishanu7/battleship-engine/pkg/httpx"
	"github.com/krishanu7/battleship-engine/pkg/log"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type APIServer struct {
	server *http.Server
}

// NewAPIServerOptions lists the handlers to mount. Auth and Leaderboard are
// optional and their routes are left out when nil.
type NewAPIServerOptions struct {
	Port        int
	Tokens      *auth.Tokens
	Store       Pinger
	Games       *game.Handler
	Rooms       *room.Handler
	Match       *match.Handler
	WS          *ws.Handler
	Auth        *auth.AuthHandler
	Leaderboard *leaderboard.Handler
}

// NewAPIServer creates a new http.Server for the game API.
func NewAPIServer(opts NewAPIServerOptions) *APIServer {
	return &APIServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           NewRouter(opts),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func NewRouter(opts NewAPIServerOptions) *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/healthz", health(opts.Store)).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if opts.WS != nil {
		r.HandleFunc("/ws", opts.WS.ServeWS)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	if opts.Auth != nil {
		api.HandleFunc("/auth/register", opts.Auth.Register).Methods(http.MethodPost)
		api.HandleFunc("/auth/login", opts.Auth.Login).Methods(http.MethodPost)
	}
	if opts.Leaderboard != nil {
		api.HandleFunc("/leaderboard", opts.Leaderboard.GetLeaderboard).Methods(http.MethodGet)
	}

	protected := api.NewRoute().Subrouter()
	protected.Use(auth.Middleware(opts.Tokens))

	if opts.Games != nil {
		protected.HandleFunc("/games", opts.Games.CreateGame).Methods(http.MethodPost)
		protected.HandleFunc("/games", opts.Games.ListMyGames).Methods(http.MethodGet)
		protected.HandleFunc("/games/active", opts.Games.ListActiveGames).Methods(http.MethodGet)
		protected.HandleFunc("/games/{id}", opts.Games.GetGame).Methods(http.MethodGet)
		protected.HandleFunc("/games/{id}/join", opts.Games.JoinGame).Methods(http.MethodPost)
		protected.HandleFunc("/games/{id}/ships", opts.Games.PlaceShips).Methods(http.MethodPost)
		protected.HandleFunc("/games/{id}/shots", opts.Games.MakeShot).Methods(http.MethodPost)
		protected.HandleFunc("/games/{id}/forfeit", opts.Games.Forfeit).Methods(http.MethodPost)
		protected.HandleFunc("/games/{id}/audit", opts.Games.GameAudit).Methods(http.MethodGet)
	}
	if opts.Rooms != nil {
		protected.HandleFunc("/rooms", opts.Rooms.CreateRoom).Methods(http.MethodPost)
		protected.HandleFunc("/rooms", opts.Rooms.ListRooms).Methods(http.MethodGet)
		protected.HandleFunc("/rooms/{id}", opts.Rooms.GetRoom).Methods(http.MethodGet)
		protected.HandleFunc("/rooms/{id}/join", opts.Rooms.JoinRoom).Methods(http.MethodPost)
		protected.HandleFunc("/rooms/{id}/start", opts.Rooms.StartGame).Methods(http.MethodPost)
		protected.HandleFunc("/rooms/{id}/finish", opts.Rooms.FinishGame).Methods(http.MethodPost)
	}
	if opts.Match != nil {
		protected.HandleFunc("/queue", opts.Match.JoinQueue).Methods(http.MethodPost)
		protected.HandleFunc("/queue", opts.Match.LeaveQueue).Methods(http.MethodDelete)
		protected.HandleFunc("/queue", opts.Match.Status).Methods(http.MethodGet)
	}
	return r
}

func health(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				httpx.WriteError(w, err)
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrade through the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// Start serves until Stop is called.
func (s *APIServer) Start() {
	log.Info("API server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			log.Info("API server closed")
			return
		}
		log.Error("API server error: %v", err)
	}
}

// Stop stops the APIServer
func (s *APIServer) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
