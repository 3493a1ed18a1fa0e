package game

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/krishanu7/battleship-engine/internal/audit"
	"github.com/krishanu7/battleship-engine/internal/auth"
	"github.com/krishanu7/battleship-engine/pkg/httpx"
)

type AuditLog interface {
	ListForGame(ctx context.Context, gameID string) ([]audit.Entry, error)
}

type Handler struct {
	manager Manager
	audit   AuditLog
}

func NewHandler(manager Manager, auditLog AuditLog) *Handler {
	return &Handler{
		manager: manager,
		audit:   auditLog,
	}
}

type CreateGameRequest struct {
	OpponentID string `json:"opponentId" validate:"omitempty,max=64"`
}

type PlaceShipsRequest struct {
	Ships []Ship `json:"ships" validate:"required,min=1,max=10"`
}

type ShotRequest struct {
	X          *int   `json:"x" validate:"required_without=Coordinate"`
	Y          *int   `json:"y" validate:"required_without=Coordinate"`
	Coordinate string `json:"coordinate"`
}

func currentPlayer(w http.ResponseWriter, r *http.Request) (string, bool) {
	playerID, ok := auth.PlayerIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, auth.ErrUnauthenticated)
	}
	return playerID, ok
}

func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	playerID, ok := currentPlayer(w, r)
	if !ok {
		return
	}
	var req CreateGameRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	gameID, err := h.manager.CreateGame(r.Context(), playerID, req.OpponentID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{"gameId": gameID})
}

func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	playerID, ok := currentPlayer(w, r)
	if !ok {
		return
	}
	g, err := h.manager.GetGameState(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if g == nil {
		httpx.WriteError(w, ErrGameNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, g.ViewFor(playerID))
}

func (h *Handler) JoinGame(w http.ResponseWriter, r *http.Request) {
	playerID, ok := currentPlayer(w, r)
	if !ok {
		return
	}
	joined, err := h.manager.JoinGame(r.Context(), playerID, mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"joined": joined})
}

func (h *Handler) PlaceShips(w http.ResponseWriter, r *http.Request) {
	playerID, ok := currentPlayer(w, r)
	if !ok {
		return
	}
	var req PlaceShipsRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	started, err := h.manager.PlaceShips(r.Context(), mux.Vars(r)["id"], playerID, req.Ships)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"success": true, "started": started})
}

func (h *Handler) MakeShot(w http.ResponseWriter, r *http.Request) {
	playerID, ok := currentPlayer(w, r)
	if !ok {
		return
	}
	var req ShotRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}

	var x, y int
	if req.X != nil && req.Y != nil {
		x, y = *req.X, *req.Y
	} else {
		var err error
		if x, y, err = ParseCoordinate(req.Coordinate); err != nil {
			httpx.WriteError(w, apperr.Wrap(apperr.ErrValidation, err, "invalid coordinate"))
			return
		}
	}

	result, err := h.manager.MakeShot(r.Context(), mux.Vars(r)["id"], playerID, x, y)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

// Forfeit ends the caller's active game with the opponent as winner.
func (h *Handler) Forfeit(w http.ResponseWriter, r *http.Request) {
	playerID, ok := currentPlayer(w, r)
	if !ok {
		return
	}
	gameID := mux.Vars(r)["id"]
	g, err := h.manager.GetGameState(r.Context(), gameID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if g == nil {
		httpx.WriteError(w, ErrGameNotFound)
		return
	}
	if !g.HasPlayer(playerID) {
		httpx.WriteError(w, ErrNotAPlayer)
		return
	}
	if err := h.manager.EndGame(r.Context(), gameID, g.Opponent(playerID)); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"winner": g.Opponent(playerID)})
}

func (h *Handler) ListMyGames(w http.ResponseWriter, r *http.Request) {
	playerID, ok := currentPlayer(w, r)
	if !ok {
		return
	}
	games, err := h.manager.GetGamesByPlayer(r.Context(), playerID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	views := make([]Game, 0, len(games))
	for _, g := range games {
		views = append(views, g.ViewFor(playerID))
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) ListActiveGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.manager.GetActiveGames(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	views := make([]Game, 0, len(games))
	for _, g := range games {
		views = append(views, g.ViewFor(""))
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

// GameAudit returns the audit trail of a game to its players.
func (h *Handler) GameAudit(w http.ResponseWriter, r *http.Request) {
	playerID, ok := currentPlayer(w, r)
	if !ok {
		return
	}
	gameID := mux.Vars(r)["id"]
	g, err := h.manager.GetGameState(r.Context(), gameID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if g == nil {
		httpx.WriteError(w, ErrGameNotFound)
		return
	}
	if !g.HasPlayer(playerID) {
		httpx.WriteError(w, ErrNotAPlayer)
		return
	}
	entries, err := h.audit.ListForGame(r.Context(), gameID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}
