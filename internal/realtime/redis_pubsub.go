package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/protocol"
	"github.com/classpulse/backend/internal/session"
)

const (
	channelPrefix  = "course:"
	publishTimeout = 5 * time.Second
)

// redisFrame is the message published to Redis for cross-instance
// broadcast. The delivery scope travels with the event so instructors-only
// presence events stay instructors-only on every instance.
type redisFrame struct {
	Origin string         `json:"origin"`
	Scope  session.Scope  `json:"scope"`
	Event  protocol.Event `json:"event"`
	At     int64          `json:"at"`
}

// RedisPubSub implements session.PubSub over Redis pub/sub, one channel
// per course. Frames carry the publishing instance's id so an instance
// never re-delivers its own broadcasts to its local clients.
type RedisPubSub struct {
	client     *redis.Client
	logger     *zap.Logger
	instanceID string
}

// NewRedisPubSub creates a Redis pub/sub bridge for course events.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	return &RedisPubSub{client: client, logger: logger, instanceID: uuid.New().String()}
}

// PublishCourseEvent publishes an event to the course's Redis channel.
func (r *RedisPubSub) PublishCourseEvent(courseID uuid.UUID, scope session.Scope, ev protocol.Event) error {
	body, err := json.Marshal(redisFrame{Origin: r.instanceID, Scope: scope, Event: ev, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, channelPrefix+courseID.String(), body).Err()
}

// SubscribeCourse subscribes to a course's Redis channel and calls handler
// for each remote event. Returns a cancel function to stop the
// subscription when the course session is evicted.
func (r *RedisPubSub) SubscribeCourse(courseID uuid.UUID, handler func(scope session.Scope, ev protocol.Event)) (cancel func(), err error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := r.client.Subscribe(ctx, channelPrefix+courseID.String())
	if _, err = pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var frame redisFrame
				if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
					r.logger.Debug("malformed course frame dropped", zap.Error(err))
					continue
				}
				if frame.Origin == r.instanceID {
					continue
				}
				handler(frame.Scope, frame.Event)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
