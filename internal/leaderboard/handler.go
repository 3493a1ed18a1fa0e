package leaderboard

import (
	"net/http"
	"strconv"

	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/krishanu7/battleship-engine/pkg/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(w, apperr.Wrap(apperr.ErrValidation, err, "limit must be a number"))
			return
		}
		limit = n
	}
	entries, err := h.service.GetLeaderboard(r.Context(), limit)
	if err != nil {
		httpx.WriteError(w, apperr.Wrap(apperr.ErrUnavailable, err, "leaderboard unavailable"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}
