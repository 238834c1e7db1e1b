package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-homework-api/internal/observability"
)

// changeEvent announces that a collection was written on some node.
type changeEvent struct {
	Source     string    `json:"source"`
	Collection string    `json:"collection"`
	SentAt     time.Time `json:"sent_at"`
}

// changeRelay forwards change events between API nodes so live queries on
// one node observe writes made on another.
type changeRelay struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	nodeID       string
	logger       zerolog.Logger
	onChange     func(collection string)
}

func newChangeRelay(redisClient *redis.Client, natsConn *nats.Conn, channelBase, nodeID string, logger zerolog.Logger, onChange func(string)) *changeRelay {
	relay := &changeRelay{
		redis:    redisClient,
		nats:     natsConn,
		nodeID:   nodeID,
		logger:   logger,
		onChange: onChange,
	}
	if channelBase != "" {
		relay.redisChannel = channelBase + ":changes"
		relay.natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".changes"
	}
	return relay
}

func (r *changeRelay) enabled() bool {
	return (r.redis != nil || r.nats != nil) && r.redisChannel != ""
}

func (r *changeRelay) publish(ctx context.Context, collection string) error {
	if !r.enabled() {
		return nil
	}

	payload, err := json.Marshal(changeEvent{
		Source:     r.nodeID,
		Collection: collection,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	if r.redis != nil {
		if err := r.redis.Publish(ctx, r.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if r.nats != nil {
		if err := r.nats.Publish(r.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

// start subscribes to the configured transports. The Redis subscription is
// confirmed before start returns so no event published afterwards is missed.
func (r *changeRelay) start(ctx context.Context) error {
	if !r.enabled() {
		return nil
	}

	if r.redis != nil {
		pubsub := r.redis.Subscribe(ctx, r.redisChannel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return err
		}
		go r.consumeRedis(ctx, pubsub)
	}

	if r.nats != nil {
		// Every node needs every event, so this is a plain subscription rather than a queue group.
		sub, err := r.nats.Subscribe(r.natsSubject, func(msg *nats.Msg) {
			r.handle(msg.Data, "nats")
		})
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			if err := sub.Drain(); err != nil {
				r.logger.Warn().Err(err).Msg("failed to drain change nats subscription")
			}
		}()
	}

	return nil
}

func (r *changeRelay) consumeRedis(ctx context.Context, pubsub *redis.PubSub) {
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
				return
			}
			r.logger.Error().Err(err).Msg("change redis subscription closed")
			return
		}
		r.handle([]byte(msg.Payload), "redis")
	}
}

func (r *changeRelay) handle(payload []byte, origin string) {
	var event changeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		r.logger.Warn().Err(err).Str("origin", origin).Msg("invalid change event payload")
		return
	}

	if event.Source == r.nodeID || event.Collection == "" {
		return
	}

	observability.ChangeEvents().WithLabelValues(rootCollection(event.Collection), origin).Inc()
	r.onChange(event.Collection)
}

func rootCollection(collection string) string {
	if idx := strings.Index(collection, "/"); idx >= 0 {
		return collection[:idx]
	}
	return collection
}
