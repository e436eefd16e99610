package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/ridesplit/internal/queue"
)

// Publisher delivers trip events. Implementations must not block for long;
// cmd/server passes an asynchronous dispatcher.
type Publisher interface {
	Publish(ctx context.Context, ev queue.TripEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, queue.TripEvent) error { return nil }

func publish(log *slog.Logger, p Publisher, ev queue.TripEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		log.Warn("trip event not published", "type", ev.Type, "room_id", ev.RoomID, "error", err)
	}
}
