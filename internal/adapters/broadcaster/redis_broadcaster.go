package broadcaster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bidhall-marketplace-service/internal/ports/outbound"
)

// RedisBroadcaster implements the broadcaster interface using Redis pub/sub.
// Topics map one-to-one onto Redis channels, so every service instance
// sees events published by any other.
type RedisBroadcaster struct {
	client          *redis.Client
	subscribers     map[string]chan outbound.Event // clientID -> local channel
	pubsubs         map[string]*redis.PubSub       // clientID -> pubsub instance
	clientsToTopics map[string]map[outbound.Topic]bool
	mu              sync.RWMutex
	ctx             context.Context
	cancel          context.CancelFunc
	logger          zerolog.Logger
}

type RedisBroadcasterParams struct {
	RedisClient *redis.Client
	Logger      zerolog.Logger
}

func NewBroadcaster(params RedisBroadcasterParams) *RedisBroadcaster {
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBroadcaster{
		client:          params.RedisClient,
		subscribers:     make(map[string]chan outbound.Event),
		pubsubs:         make(map[string]*redis.PubSub),
		clientsToTopics: make(map[string]map[outbound.Topic]bool),
		ctx:             ctx,
		cancel:          cancel,
		logger:          params.Logger.With().Str("component", "redis_broadcaster").Logger(),
	}
}

// Subscribe subscribes a client to events on a topic
func (r *RedisBroadcaster) Subscribe(ctx context.Context, topic outbound.Topic, clientID string, eventChan chan outbound.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.clientsToTopics[clientID] != nil && r.clientsToTopics[clientID][topic] {
		r.logger.Info().
			Str("client_id", clientID).
			Str("topic", string(topic)).
			Msg("Client already subscribed to topic")
		return nil
	}

	// Store the event channel if this is the first subscription
	if r.subscribers[clientID] == nil {
		r.subscribers[clientID] = eventChan
	}

	if r.clientsToTopics[clientID] == nil {
		r.clientsToTopics[clientID] = make(map[outbound.Topic]bool)
	}
	r.clientsToTopics[clientID][topic] = true

	// One pubsub connection per client, shared across its topics
	var pubsub *redis.PubSub
	if existingPubsub, exists := r.pubsubs[clientID]; exists {
		pubsub = existingPubsub
	} else {
		pubsub = r.client.Subscribe(ctx)
		r.pubsubs[clientID] = pubsub

		go r.listenForRedisMessages(pubsub, clientID, eventChan)
	}

	if err := pubsub.Subscribe(ctx, string(topic)); err != nil {
		r.logger.Error().Err(err).Str("client_id", clientID).Str("topic", string(topic)).Msg("Failed to subscribe to Redis channel")
		return err
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("topic", string(topic)).
		Msg("Client subscribed to topic via Redis")
	return nil
}

// Unsubscribe unsubscribes a client from a topic
func (r *RedisBroadcaster) Unsubscribe(ctx context.Context, topic outbound.Topic, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if clientTopics, exists := r.clientsToTopics[clientID]; exists {
		delete(clientTopics, topic)

		// Last topic gone: tear the client's channel and connection down
		if len(clientTopics) == 0 {
			delete(r.clientsToTopics, clientID)

			if eventChan, exists := r.subscribers[clientID]; exists {
				close(eventChan)
				delete(r.subscribers, clientID)
			}

			if pubsub, exists := r.pubsubs[clientID]; exists {
				if err := pubsub.Close(); err != nil {
					r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing Redis pubsub for client")
				}
				delete(r.pubsubs, clientID)
			}
		} else {
			if pubsub, exists := r.pubsubs[clientID]; exists {
				if err := pubsub.Unsubscribe(ctx, string(topic)); err != nil {
					r.logger.Error().Err(err).Str("client_id", clientID).Str("topic", string(topic)).Msg("Error unsubscribing from Redis channel")
				}
			}
		}
	}

	r.logger.Info().
		Str("client_id", clientID).
		Str("topic", string(topic)).
		Msg("Client unsubscribed from topic")
	return nil
}

// Publish publishes an event to all subscribers of a topic via Redis
func (r *RedisBroadcaster) Publish(ctx context.Context, topic outbound.Topic, event outbound.Event) error {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}
	event.Topic = topic

	eventJSON, err := json.Marshal(event)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to marshal event")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	result := r.client.Publish(ctx, string(topic), eventJSON)
	if err := result.Err(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to publish to Redis")
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}

	r.logger.Info().
		Str("event_type", string(event.Type)).
		Str("topic", string(topic)).
		Int64("subscriber_count", result.Val()).
		Msg("Published event to topic")

	return nil
}

func (r *RedisBroadcaster) GetSubscribers(ctx context.Context, topic outbound.Topic) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subscribers []string
	for clientID, topics := range r.clientsToTopics {
		if topics[topic] {
			subscribers = append(subscribers, clientID)
		}
	}

	return subscribers, nil
}

func (r *RedisBroadcaster) GetEventChannel(clientID string) <-chan outbound.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if eventChan, exists := r.subscribers[clientID]; exists {
		return eventChan
	}

	return nil
}

// listenForRedisMessages forwards Redis messages to the client's local
// channel. Slow consumers drop events rather than block the listener.
func (r *RedisBroadcaster) listenForRedisMessages(pubsub *redis.PubSub, clientID string, localChan chan outbound.Event) {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error().Interface("panic", err).Str("client_id", clientID).Msg("Redis message listener panic for client")
		}
	}()

	ch := pubsub.Channel()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				r.logger.Info().Str("client_id", clientID).Msg("Redis channel closed for client")
				return
			}

			var event outbound.Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Error().Err(err).Str("client_id", clientID).Msg("Failed to unmarshal Redis message for client")
				continue
			}

			select {
			case localChan <- event:
			default:
				r.logger.Warn().Str("client_id", clientID).Msg("Local channel full for client, dropping event")
			}

		case <-r.ctx.Done():
			r.logger.Info().Str("client_id", clientID).Msg("Redis broadcaster context cancelled for client")
			return
		}
	}
}

func (r *RedisBroadcaster) Close() error {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	for clientID, eventChan := range r.subscribers {
		close(eventChan)
		delete(r.subscribers, clientID)
	}

	for clientID, pubsub := range r.pubsubs {
		if err := pubsub.Close(); err != nil {
			r.logger.Error().Err(err).Str("client_id", clientID).Msg("Error closing Redis pubsub for client")
		}
		delete(r.pubsubs, clientID)
	}

	return r.client.Close()
}

func (r *RedisBroadcaster) IsSubscribed(ctx context.Context, topic outbound.Topic, clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clientTopics, exists := r.clientsToTopics[clientID]
	if !exists {
		return false
	}

	return clientTopics[topic]
}
