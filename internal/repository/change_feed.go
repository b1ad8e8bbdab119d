package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const changeChannel = "assessment:changes"

// ChangeEvent describes a record mutation pushed to subscribed clients so
// they can refresh their views.
type ChangeEvent struct {
	Kind     string    `json:"kind"`
	RecordID string    `json:"record_id"`
	GroupID  string    `json:"group_id,omitempty"`
	At       time.Time `json:"at"`
}

// ChangeFeed publishes record mutations over Redis pub/sub.
type ChangeFeed struct {
	client *redis.Client
	logger *zap.Logger
}

// NewChangeFeed constructs the feed. A nil client disables publishing.
func NewChangeFeed(client *redis.Client, logger *zap.Logger) *ChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeFeed{client: client, logger: logger}
}

// Publish emits a change event. Failures are logged, never surfaced: the
// mutation has already committed and notification is best-effort.
func (f *ChangeFeed) Publish(ctx context.Context, event ChangeEvent) {
	if f.client == nil {
		return
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		f.logger.Sugar().Warnw("marshal change event", "error", err)
		return
	}
	if err := f.client.Publish(ctx, changeChannel, payload).Err(); err != nil {
		f.logger.Sugar().Warnw("publish change event", "kind", event.Kind, "record_id", event.RecordID, "error", err)
	}
}

// Subscribe returns a channel of decoded change events. The subscription is
// closed when ctx is cancelled.
func (f *ChangeFeed) Subscribe(ctx context.Context) (<-chan ChangeEvent, error) {
	if f.client == nil {
		return nil, fmt.Errorf("change feed disabled")
	}
	sub := f.client.Subscribe(ctx, changeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe change feed: %w", err)
	}
	events := make(chan ChangeEvent)
	go func() {
		defer close(events)
		defer sub.Close() //nolint:errcheck
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					f.logger.Sugar().Warnw("decode change event", "error", err)
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}
