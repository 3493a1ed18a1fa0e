package match

import (
	"net/http"

	"github.com/krishanu7/battleship-engine/internal/auth"
	"github.com/krishanu7/battleship-engine/pkg/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{
		service: s,
	}
}

type statusResponse struct {
	Status      Status       `json:"status"`
	Match       *MatchResult `json:"match,omitempty"`
	QueueLength int64        `json:"queueLength"`
}

func (h *Handler) JoinQueue(w http.ResponseWriter, r *http.Request) {
	playerID, ok := auth.PlayerIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, auth.ErrUnauthenticated)
		return
	}
	if err := h.service.AddToQueue(r.Context(), playerID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, statusResponse{Status: StatusInQueue, QueueLength: h.queueLength(r)})
}

func (h *Handler) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	playerID, ok := auth.PlayerIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, auth.ErrUnauthenticated)
		return
	}
	if err := h.service.RemoveFromQueue(r.Context(), playerID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	playerID, ok := auth.PlayerIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, auth.ErrUnauthenticated)
		return
	}
	status, result, err := h.service.GetMatchStatus(r.Context(), playerID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, statusResponse{Status: status, Match: result, QueueLength: h.queueLength(r)})
}

// queueLength is informational; a failure reports an empty queue.
func (h *Handler) queueLength(r *http.Request) int64 {
	n, err := h.service.QueueLength(r.Context())
	if err != nil {
		return 0
	}
	return n
}
