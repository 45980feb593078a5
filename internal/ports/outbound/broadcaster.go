package outbound

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Topic names a broadcast channel. Auction topics fan events out to
// everyone watching one auction; user topics carry personal notifications;
// the admin topic reaches every connected administrator.
type Topic string

// AuctionTopic returns the topic for one auction's public events.
func AuctionTopic(auctionID uuid.UUID) Topic {
	return Topic(fmt.Sprintf("auction:%s", auctionID))
}

// UserTopic returns the topic for one user's private events.
func UserTopic(userID uuid.UUID) Topic {
	return Topic(fmt.Sprintf("user:%s", userID))
}

// AdminTopic returns the topic shared by all administrators.
func AdminTopic() Topic {
	return Topic("admin")
}

// EventType represents the type of event being broadcasted
type EventType string

const (
	EventTypeAuctionPublished EventType = "auction.published"
	EventTypeAuctionStarted   EventType = "auction.started"
	EventTypeAuctionEnded     EventType = "auction.ended"
	EventTypeAuctionCancelled EventType = "auction.cancelled"
	EventTypeAuctionExtended  EventType = "auction.extended"
	EventTypeBidPlaced        EventType = "bid.placed"
	EventTypeParticipantJoin  EventType = "participant.joined"
	EventTypeParticipantLeave EventType = "participant.left"
	EventTypeNotification     EventType = "notification"
	EventTypeError            EventType = "error"
)

// Event represents a broadcast event
type Event struct {
	Type      EventType              `json:"type"`
	Topic     Topic                  `json:"topic"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Broadcaster defines the interface for broadcasting events
type Broadcaster interface {
	// Subscribe subscribes a client to events on a topic. When a client
	// subscribes to multiple topics, all events are delivered to the same channel
	Subscribe(ctx context.Context, topic Topic, clientID string, eventChan chan Event) error

	// Unsubscribe unsubscribes a client from a topic
	Unsubscribe(ctx context.Context, topic Topic, clientID string) error

	// Publish publishes an event to all subscribers of a topic
	Publish(ctx context.Context, topic Topic, event Event) error

	// GetSubscribers returns the list of client IDs subscribed to a topic
	GetSubscribers(ctx context.Context, topic Topic) ([]string, error)

	// IsSubscribed checks if a client is subscribed to a topic
	IsSubscribed(ctx context.Context, topic Topic, clientID string) bool
}
