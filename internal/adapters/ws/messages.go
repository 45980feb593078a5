package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"bidhall-marketplace-service/internal/domain/shared"

	"github.com/google/uuid"
)

type MessageType string

const (
	// Client to Server message types
	MessageTypeSubscribe    MessageType = "subscribe"
	MessageTypeUnsubscribe  MessageType = "unsubscribe"
	MessageTypePlaceBid     MessageType = "place_bid"
	MessageTypeJoinAuction  MessageType = "join_auction"
	MessageTypeLeaveAuction MessageType = "leave_auction"
	MessageTypeBuyNow       MessageType = "buy_now"
	MessageTypeGetAuction      MessageType = "get_auction"
	MessageTypeListAuctions    MessageType = "list_auctions"
	MessageTypeGetWallet       MessageType = "get_wallet"
	MessageTypeDeposit         MessageType = "deposit"
	MessageTypeWithdraw        MessageType = "withdraw"
	MessageTypeGetTransactions MessageType = "get_transactions"
	MessageTypePing            MessageType = "ping"

	// Server to Client message types
	MessageTypeBidPlaced         MessageType = "bid_placed"
	MessageTypeAuctionStarted    MessageType = "auction_started"
	MessageTypeAuctionEnded      MessageType = "auction_ended"
	MessageTypeAuctionExtended   MessageType = "auction_extended"
	MessageTypeAuctionUpdate     MessageType = "auction_update"
	MessageTypeParticipantJoined MessageType = "participant_joined"
	MessageTypeParticipantLeft   MessageType = "participant_left"
	MessageTypeNotification      MessageType = "notification"
	MessageTypeWalletUpdate      MessageType = "wallet_update"
	MessageTypeError             MessageType = "error"
	MessageTypePong              MessageType = "pong"
)

type ClientMessage struct {
	Type      MessageType            `json:"type"`
	AuctionID *uuid.UUID             `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// ServerMessage represents a message sent from server to client
type ServerMessage struct {
	Type      MessageType            `json:"type"`
	AuctionID *uuid.UUID             `json:"auction_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Error     *string                `json:"error,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

func NewServerMessage(msgType MessageType) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		Data:      make(map[string]interface{}),
		Timestamp: time.Now().Unix(),
	}
}

func NewErrorMessage(err string, auctionID *uuid.UUID) *ServerMessage {
	return &ServerMessage{
		Type:      MessageTypeError,
		AuctionID: auctionID,
		Error:     &err,
		Timestamp: time.Now().Unix(),
	}
}

func (m *ClientMessage) validateAuctionID() error {
	if m.AuctionID == nil || *m.AuctionID == uuid.Nil {
		return shared.ErrAuctionIDRequired
	}
	return nil
}

// ParseClientMessage parses a JSON message from client
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse client message: %w", err)
	}

	// Validate required fields
	if msg.Type == "" {
		return nil, shared.ErrMessageTypeRequired
	}

	return &msg, nil
}

// Validate validates a client message
func (m *ClientMessage) Validate() error {
	switch m.Type {
	case MessageTypeSubscribe, MessageTypeUnsubscribe:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
	case MessageTypePlaceBid:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
		amount, ok := m.Data["amount"].(float64)
		if !ok || amount <= 0 {
			return shared.ErrInvalidAmount
		}
	case MessageTypeJoinAuction, MessageTypeLeaveAuction, MessageTypeBuyNow:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
	case MessageTypeGetAuction:
		if err := m.validateAuctionID(); err != nil {
			return err
		}
	case MessageTypeDeposit, MessageTypeWithdraw:
		amount, ok := m.Data["amount"].(float64)
		if !ok || amount <= 0 {
			return shared.ErrInvalidAmount
		}
	case MessageTypeListAuctions, MessageTypeGetWallet, MessageTypeGetTransactions:

	case MessageTypePing:

	default:
		return shared.ErrUnknownMessageType
	}

	return nil
}
