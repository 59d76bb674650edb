package realtime

import (
	"context"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

// NotificationsPrefix prefixes the per-user Redis channel.
const NotificationsPrefix = "notifications:"

func SubjectChannel(userID string) string { return NotificationsPrefix + userID }

// RedisChannel publishes real-time payloads over Redis pub/sub.
type RedisChannel struct {
	client  *redis.Client
	metrics *Metrics
}

func NewRedisChannel(client *redis.Client, metrics *Metrics) *RedisChannel {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &RedisChannel{client: client, metrics: metrics}
}

func (c *RedisChannel) Publish(ctx context.Context, topic string, payload any) error {
	return c.publish(ctx, "topic", topic, payload)
}

func (c *RedisChannel) PublishToSubject(ctx context.Context, userID string, payload any) error {
	return c.publish(ctx, "subject", SubjectChannel(userID), payload)
}

func (c *RedisChannel) publish(ctx context.Context, kind, channel string, payload any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		c.metrics.failed.WithLabelValues(kind).Inc()
		return err
	}
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		c.metrics.failed.WithLabelValues(kind).Inc()
		return err
	}
	c.metrics.published.WithLabelValues(kind).Inc()
	return nil
}

// Subscribe relays board updates and per-user notifications from Redis to the
// hub until ctx is done, resubscribing whenever the pub/sub channel closes.
func Subscribe(ctx context.Context, logger *log.Logger, rc *redis.Client, hub *Hub) {
	for {
		sub := rc.PSubscribe(ctx, domain.BoardUpdatesTopic, NotificationsPrefix+"*")
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				route(msg, hub)
			}
		}
		sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func route(msg *redis.Message, hub *Hub) {
	data := []byte(msg.Payload)
	switch {
	case msg.Channel == domain.BoardUpdatesTopic:
		hub.Broadcast(Message{Event: EventBoardUpdate, Data: data})
	case strings.HasPrefix(msg.Channel, NotificationsPrefix):
		hub.SendTo(strings.TrimPrefix(msg.Channel, NotificationsPrefix), Message{Event: EventNotification, Data: data})
	}
}
