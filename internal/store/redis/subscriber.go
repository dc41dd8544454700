package redis

import (
	"context"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"
)

// Subscribe pattern-subscribes to every dashboard channel and calls fn for
// each message until ctx is done.
func Subscribe(ctx context.Context, client *goredis.Client, fn func(channel string, payload []byte)) error {
	pubsub := client.PSubscribe(ctx, ChannelPrefix+"analysis:*", ChannelPrefix+"alerts:*",
		ChannelPrefix+"ticker:*", FearGreedChannel)
	defer pubsub.Close()

	// Wait for the subscription confirmation so no early message is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	slog.Info("[redis] subscribed to dashboard channels")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Channel, []byte(msg.Payload))
		}
	}
}
