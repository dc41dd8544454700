package gateway

import (
	"context"
	"log/slog"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"

	mdredis "marketdash/internal/store/redis"
)

// PubSubRouter relays the dashboard's Redis channels into the hub so any
// number of gateway processes can serve one analysing service.
type PubSubRouter struct {
	hub    *Hub
	client *goredis.Client

	retryMin time.Duration
	retryMax time.Duration
}

// NewPubSubRouter creates a router from client to hub.
func NewPubSubRouter(hub *Hub, client *goredis.Client) *PubSubRouter {
	return &PubSubRouter{hub: hub, client: client, retryMin: time.Second, retryMax: 30 * time.Second}
}

// Run subscribes and routes messages, resubscribing with backoff when the
// subscription fails. Blocks until ctx is cancelled.
func (r *PubSubRouter) Run(ctx context.Context) {
	backoff := r.retryMin
	for {
		err := mdredis.Subscribe(ctx, r.client, r.route)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("[gateway] redis subscription ended", "err", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, r.retryMax)
	}
}

func (r *PubSubRouter) route(channel string, payload []byte) {
	r.hub.Broadcast(strings.TrimPrefix(channel, mdredis.ChannelPrefix), payload)
}
