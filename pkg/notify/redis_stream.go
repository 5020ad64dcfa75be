package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"portfolio/pkg/domain"
)

// DefaultStream is the Redis stream contact events are appended to.
const DefaultStream = "portfolio:events"

// RedisStreamNotifier appends events to a capped Redis stream for consumers
// that read with XREAD or a consumer group.
type RedisStreamNotifier struct {
	client redis.Cmdable
	stream string
	maxLen int64
	now    func() time.Time
}

func NewRedisStreamNotifier(client redis.Cmdable, stream string, maxLen int64) (*RedisStreamNotifier, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisStreamNotifier{client: client, stream: stream, maxLen: maxLen, now: time.Now}, nil
}

// ContactSubmitted adds a contact.submitted entry carrying the JSON event.
func (n *RedisStreamNotifier) ContactSubmitted(ctx context.Context, c domain.Contact) error {
	body, ev, err := NewContactEvent(c, n.now())
	if err != nil {
		return err
	}
	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: n.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id": ev.ID,
			"type":     ev.Type,
			"payload":  string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", n.stream, err)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (n *RedisStreamNotifier) Close() error { return nil }
