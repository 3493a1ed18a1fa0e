package ws

import (
	"context"
	"encoding/json"

	"github.com/krishanu7/battleship-engine/internal/game"
	"github.com/krishanu7/battleship-engine/pkg/log"
	"github.com/krishanu7/battleship-engine/pkg/store"
	wsPkg "github.com/krishanu7/battleship-engine/pkg/websocket"
)

const NotificationChannel = "notifications"

// Publisher sends game events over the store's pub/sub channel so that
// whichever process holds the player's connection can deliver them.
type Publisher struct {
	store store.Store
}

var _ game.Notifier = (*Publisher)(nil)

func NewPublisher(st store.Store) *Publisher {
	return &Publisher{store: st}
}

func (p *Publisher) Notify(ctx context.Context, event game.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error("Failed to marshal %s notification for %s: %v", event.Type, event.Player, err)
		return
	}
	if err := p.store.Publish(ctx, NotificationChannel, payload); err != nil {
		log.Warn("Failed to publish %s notification for %s: %v", event.Type, event.Player, err)
	}
}

// NotificationWorker forwards published events to the players connected to
// this process.
type NotificationWorker struct {
	store store.Store
	hub   *wsPkg.Hub
}

func NewNotificationWorker(st store.Store, hub *wsPkg.Hub) *NotificationWorker {
	return &NotificationWorker{
		store: st,
		hub:   hub,
	}
}

// Run blocks until ctx is cancelled or the subscription ends.
func (w *NotificationWorker) Run(ctx context.Context) error {
	sub, err := w.store.Subscribe(ctx, NotificationChannel)
	if err != nil {
		return err
	}
	defer sub.Close()
	log.Info("Notification worker listening on %s", NotificationChannel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.Messages():
			if !ok {
				log.Warn("Notification subscription closed")
				return nil
			}
			w.deliver(payload)
		}
	}
}

func (w *NotificationWorker) deliver(payload []byte) {
	var notification struct {
		Type   string `json:"type"`
		Player string `json:"player"`
	}
	if err := json.Unmarshal(payload, &notification); err != nil {
		log.Warn("Failed to unmarshal notification: %v", err)
		return
	}
	if notification.Player == "" {
		return
	}
	if !w.hub.SendToClient(notification.Player, payload) {
		log.Trace("Player %s not reachable here for %s", notification.Player, notification.Type)
	}
}
