package room

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/krishanu7/battleship-engine/internal/auth"
	"github.com/krishanu7/battleship-engine/pkg/httpx"
)

var ErrNotMember = apperr.New(apperr.ErrValidation, "only room members can do that")

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type CreateRoomRequest struct {
	Name string `json:"name" validate:"omitempty,max=64"`
}

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.PlayerIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, auth.ErrUnauthenticated)
		return
	}
	var req CreateRoomRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, err)
		return
	}
	room, err := h.service.CreateRoom(r.Context(), userID, req.Name)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, room)
}

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.service.GetActiveRooms(r.Context())
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rooms)
}

func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.GetRoom(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, room)
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.PlayerIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, auth.ErrUnauthenticated)
		return
	}
	room, err := h.service.JoinRoom(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, room)
}

func (h *Handler) StartGame(w http.ResponseWriter, r *http.Request) {
	h.memberAction(w, r, h.service.StartGame)
}

func (h *Handler) FinishGame(w http.ResponseWriter, r *http.Request) {
	h.memberAction(w, r, h.service.FinishGame)
}

func (h *Handler) memberAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, roomID string) (*Room, error)) {
	userID, ok := auth.PlayerIDFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, auth.ErrUnauthenticated)
		return
	}
	roomID := mux.Vars(r)["id"]
	room, err := h.service.GetRoom(r.Context(), roomID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if userID != room.CreatorID && userID != room.OpponentID {
		httpx.WriteError(w, ErrNotMember)
		return
	}
	room, err = action(r.Context(), roomID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, room)
}
