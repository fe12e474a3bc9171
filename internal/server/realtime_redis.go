package server

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/yapp/internal/wire"
)

// RealtimeChannel is the redis channel shared by API replicas.
const RealtimeChannel = "yapp:feed:events"

const relayPublishTimeout = 2 * time.Second

var errMissingRedisClient = errors.New("redis client required")

type relayEnvelope struct {
	Origin    string `json:"origin"`
	EventType string `json:"type"`
	PostID    string `json:"postId,omitempty"`
	Frame     []byte `json:"frame"`
	Timestamp int64  `json:"ts"`
}

// RedisRelay publishes frames to the local dispatcher and to redis, and
// replays frames from other replicas into the local dispatcher.
type RedisRelay struct {
	client     *redis.Client
	dispatcher *RealtimeDispatcher
	origin     string
	channel    string
	logger     *zap.Logger
}

// NewRedisRelay wires a dispatcher to redis pub/sub.
func NewRedisRelay(client *redis.Client, dispatcher *RealtimeDispatcher, logger *zap.Logger) (*RedisRelay, error) {
	if client == nil {
		return nil, errMissingRedisClient
	}
	if dispatcher == nil {
		return nil, errMissingRealtime
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client:     client,
		dispatcher: dispatcher,
		origin:     uuid.NewString(),
		channel:    RealtimeChannel,
		logger:     logger,
	}, nil
}

// Publish delivers locally first; a redis failure is logged and does not
// affect local subscribers.
func (r *RedisRelay) Publish(message RealtimeMessage) {
	r.dispatcher.Publish(message)

	payload, err := wire.JSON.Marshal(relayEnvelope{
		Origin:    r.origin,
		EventType: message.EventType,
		PostID:    message.PostID,
		Frame:     message.Frame,
		Timestamp: message.Timestamp.UnixMilli(),
	})
	if err != nil {
		r.logger.Error("realtime relay encode failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.Warn("realtime relay publish failed", zap.String("event", message.EventType), zap.Error(err))
	}
}

// Run consumes the shared channel until ctx ends. The subscription is
// confirmed before Run returns control to the receive loop.
func (r *RedisRelay) Run(ctx context.Context) error {
	subscription := r.client.Subscribe(ctx, r.channel)
	defer func() { _ = subscription.Close() }()
	if _, err := subscription.Receive(ctx); err != nil {
		return err
	}
	messages := subscription.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-messages:
			if !ok {
				return nil
			}
			r.relay(message.Payload)
		}
	}
}

func (r *RedisRelay) relay(payload string) {
	var envelope relayEnvelope
	if err := wire.JSON.Unmarshal([]byte(payload), &envelope); err != nil {
		r.logger.Warn("realtime relay dropped malformed message", zap.Error(err))
		return
	}
	if envelope.Origin == r.origin {
		return
	}
	r.dispatcher.Publish(RealtimeMessage{
		EventType: envelope.EventType,
		PostID:    envelope.PostID,
		Frame:     envelope.Frame,
		Timestamp: time.UnixMilli(envelope.Timestamp).UTC(),
	})
}
