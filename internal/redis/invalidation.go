package redisclient

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// availabilityChannel carries one message per doctor whose availability
// changed (hold placed or released, booking made, hold expired).
// Interested callers treat a message purely as "refetch availability for
// this doctor"; there is no payload beyond the doctor id.
const availabilityChannel = "availability:changed"

// Notifier announces availability changes. Delivery is best effort; a
// missed notification only delays a cache refresh.
type Notifier interface {
	AvailabilityChanged(ctx context.Context, doctorID uuid.UUID)
}

type redisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier publishes availability changes on a Redis channel.
func NewRedisNotifier(client *redis.Client) Notifier {
	return &redisNotifier{client: client}
}

func (n *redisNotifier) AvailabilityChanged(ctx context.Context, doctorID uuid.UUID) {
	// Fire and forget: publish errors are swallowed, subscribers refetch
	// on the next message or on their own schedule.
	_ = n.client.Publish(ctx, availabilityChannel, doctorID.String()).Err()
}

// SubscribeAvailability delivers the doctor ids whose availability
// changed until ctx is cancelled. Malformed messages are dropped.
func SubscribeAvailability(ctx context.Context, client *redis.Client) (<-chan uuid.UUID, error) {
	sub := client.Subscribe(ctx, availabilityChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", availabilityChannel, err)
	}

	out := make(chan uuid.UUID)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				id, err := uuid.Parse(msg.Payload)
				if err != nil {
					continue
				}
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// NoopNotifier drops every notification. Used in tests.
type NoopNotifier struct{}

func (NoopNotifier) AvailabilityChanged(context.Context, uuid.UUID) {}
