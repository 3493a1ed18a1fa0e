package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/krishanu7/battleship-engine/internal/apperr"
	"github.com/krishanu7/battleship-engine/internal/auth"
	"github.com/krishanu7/battleship-engine/internal/game"
	"github.com/krishanu7/battleship-engine/pkg/log"
	wsPkg "github.com/krishanu7/battleship-engine/pkg/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096

	// inbound messages per second per connection, with a small burst
	messageRate  = 5
	messageBurst = 10
)

type Handler struct {
	Hub    *wsPkg.Hub
	games  game.Manager
	tokens *auth.Tokens
}

func NewHandler(hub *wsPkg.Hub, games game.Manager, tokens *auth.Tokens) *Handler {
	return &Handler{
		Hub:    hub,
		games:  games,
		tokens: tokens,
	}
}

type inbound struct {
	Type       string `json:"type"`
	GameID     string `json:"gameId"`
	Coordinate string `json:"coordinate"`
}

type outbound struct {
	Type       string           `json:"type"`
	GameID     string           `json:"gameId,omitempty"`
	Coordinate string           `json:"coordinate,omitempty"`
	Result     *game.ShotResult `json:"result,omitempty"`
	Message    string           `json:"message,omitempty"`
	Kind       string           `json:"kind,omitempty"`
	Retryable  bool             `json:"retryable,omitempty"`
}

// ServeWS upgrades an authenticated player's connection. The token comes from
// the "token" query parameter since browsers cannot set headers on upgrade.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	playerID, err := h.tokens.Parse(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := wsPkg.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Upgrade failed for %s: %v", playerID, err)
		return
	}

	client := wsPkg.NewClient(playerID, conn)
	h.Hub.AddClient(client)

	go h.write(client)
	go h.read(client)
}

func (h *Handler) read(c *wsPkg.Client) {
	defer func() {
		h.Hub.RemoveClient(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(messageRate, messageBurst)
	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Read error for client %s: %v", c.ID, err)
			}
			return
		}
		if !limiter.Allow() {
			h.reply(c, outbound{Type: "error", Message: "too many messages", Kind: "rate_limited", Retryable: true})
			continue
		}

		var message inbound
		if err := json.Unmarshal(msg, &message); err != nil {
			h.reply(c, outbound{Type: "error", Message: "malformed message", Kind: "validation"})
			continue
		}
		h.reply(c, h.dispatch(context.Background(), c.ID, message))
	}
}

func (h *Handler) dispatch(ctx context.Context, playerID string, message inbound) outbound {
	switch message.Type {
	case "ping":
		return outbound{Type: "pong"}
	case "attack":
		x, y, err := game.ParseCoordinate(message.Coordinate)
		if err != nil {
			return errorReply(message.GameID, apperr.Wrap(apperr.ErrValidation, err, "invalid coordinate"))
		}
		result, err := h.games.MakeShot(ctx, message.GameID, playerID, x, y)
		if err != nil {
			return errorReply(message.GameID, err)
		}
		return outbound{Type: "attack_result", GameID: message.GameID, Coordinate: game.FormatCoordinate(x, y), Result: &result}
	default:
		return errorReply(message.GameID, apperr.Newf(apperr.ErrValidation, "unknown message type %q", message.Type))
	}
}

func errorReply(gameID string, err error) outbound {
	return outbound{
		Type:      "error",
		GameID:    gameID,
		Message:   err.Error(),
		Kind:      apperr.KindName(err),
		Retryable: apperr.Retryable(err),
	}
}

func (h *Handler) reply(c *wsPkg.Client, message outbound) {
	payload, err := json.Marshal(message)
	if err != nil {
		log.Error("Failed to marshal %s reply: %v", message.Type, err)
		return
	}
	if !c.TrySend(payload) {
		log.Warn("Dropped %s reply to %s", message.Type, c.ID)
	}
}

func (h *Handler) write(c *wsPkg.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warn("Write error for client %s: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
