package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"bidhall-marketplace-service/internal/domain/auction"
	"bidhall-marketplace-service/internal/domain/shared"
	"bidhall-marketplace-service/internal/ports/inbound"
	"bidhall-marketplace-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// WsHandler manages WebSocket connections and message routing
type WsHandler struct {
	clients        map[string]*WsClient // clientID -> Client
	clientsMu      sync.RWMutex
	eventChannels  map[string]chan outbound.Event // clientID -> local event channel
	channelsMu     sync.RWMutex
	upgrader       websocket.Upgrader
	auctionService inbound.AuctionService
	bidService     inbound.BidService
	walletService  inbound.WalletService
	broadcaster    outbound.Broadcaster
	logger         zerolog.Logger
}

type WsHandlerParams struct {
	Upgrader       websocket.Upgrader
	AuctionService inbound.AuctionService
	BidService     inbound.BidService
	WalletService  inbound.WalletService
	Broadcaster    outbound.Broadcaster
	Logger         zerolog.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(params WsHandlerParams) *WsHandler {
	return &WsHandler{
		clients:        make(map[string]*WsClient),
		eventChannels:  make(map[string]chan outbound.Event),
		upgrader:       params.Upgrader,
		auctionService: params.AuctionService,
		bidService:     params.BidService,
		walletService:  params.WalletService,
		broadcaster:    params.Broadcaster,
		logger:         params.Logger.With().Str("component", "ws_handler").Logger(),
	}
}

// HandleWebSocket handles WebSocket connection upgrades
func (handler *WsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userIDStr := r.URL.Query().Get("user_id")
	if userIDStr == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		http.Error(w, "invalid user_id format", http.StatusBadRequest)
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := handler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		handler.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	// Create new client
	client := NewClient(WsClientParams{
		UserID:  userID,
		Conn:    conn,
		Handler: handler,
		Logger:  handler.logger,
	})

	// Register client
	handler.registerClient(client)

	// Create local event channel for this client
	eventChan := handler.createEventChannel(client.id)

	// Every connection listens on its user topic so personal
	// notifications arrive without an explicit subscribe
	if err := handler.broadcaster.Subscribe(context.Background(), outbound.UserTopic(userID), client.id, eventChan); err != nil {
		handler.logger.Error().Err(err).Str("client_id", client.id).Msg("Failed to subscribe client to user topic")
	}

	// Start client message handling
	client.Start()

	// Start listening for broadcast events for this client
	go handler.listenForClientEvents(client)

	// Wait for client to disconnect
	go func() {
		<-client.ctx.Done()
		handler.unregisterClient(client)
	}()

	handler.logger.Info().Str("client_id", client.id).Str("user_id", client.userID.String()).Msg("WebSocket client connected")
}

// createEventChannel creates a local event channel for a client
func (handler *WsHandler) createEventChannel(clientID string) chan outbound.Event {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()

	if eventChan, exists := handler.eventChannels[clientID]; exists {
		return eventChan
	}

	eventChan := make(chan outbound.Event, 100)
	handler.eventChannels[clientID] = eventChan

	handler.logger.Debug().Str("client_id", clientID).Msg("Created local event channel for client")
	return eventChan
}

func (handler *WsHandler) getEventChannel(clientID string) chan outbound.Event {
	handler.channelsMu.RLock()
	defer handler.channelsMu.RUnlock()

	return handler.eventChannels[clientID]
}

func (handler *WsHandler) removeEventChannel(clientID string) {
	handler.channelsMu.Lock()
	defer handler.channelsMu.Unlock()

	if _, exists := handler.eventChannels[clientID]; exists {
		// The broadcaster owns closing the channel when the last
		// subscription goes away
		delete(handler.eventChannels, clientID)
		handler.logger.Debug().Str("client_id", clientID).Msg("Removed local event channel for client")
	}
}

func (handler *WsHandler) registerClient(client *WsClient) {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()
	handler.clients[client.id] = client
	handler.logger.Debug().Str("client_id", client.id).Int("total_clients", len(handler.clients)).Msg("Client registered")
}

func (handler *WsHandler) unregisterClient(client *WsClient) {
	handler.clientsMu.Lock()
	defer handler.clientsMu.Unlock()

	// Remove client from registry
	delete(handler.clients, client.id)

	// Drop the user-topic subscription; the broadcaster tears down the
	// pubsub connection once the last topic is gone
	if err := handler.broadcaster.Unsubscribe(context.Background(), outbound.UserTopic(client.userID), client.id); err != nil {
		handler.logger.Error().Err(err).Str("client_id", client.id).Msg("Failed to unsubscribe client from user topic")
	}

	// Stop the client
	client.Stop()

	// Remove local event channel
	handler.removeEventChannel(client.id)

	handler.logger.Info().Str("client_id", client.id).Str("user_id", client.userID.String()).Int("total_clients", len(handler.clients)).Msg("WebSocket client disconnected")
}

// listenForClientEvents forwards broadcast events to the WebSocket
func (handler *WsHandler) listenForClientEvents(client *WsClient) {
	eventChan := handler.getEventChannel(client.id)
	if eventChan == nil {
		handler.logger.Error().Str("client_id", client.id).Msg("No event channel found for client - this should not happen")
		return
	}

	handler.logger.Info().Str("client_id", client.id).Msg("Event listener started for client")

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				handler.logger.Debug().Str("client_id", client.id).Msg("Event channel closed for client")
				return
			}
			wsMessage := handler.convertEventToMessage(event)

			if err := client.Send(wsMessage); err != nil {
				handler.logger.Error().
					Err(err).Str("client_id", client.id).Msg("Failed to send event to WebSocket client")
			}

		case <-client.ctx.Done():
			handler.logger.Debug().Str("client_id", client.id).Msg("Client disconnected, stopping event listener")
			return
		}
	}
}

func (handler *WsHandler) HandleClientMessage(client *WsClient, msg *ClientMessage) error {
	switch msg.Type {
	case MessageTypeSubscribe:
		return handler.handleSubscribe(client, msg)

	case MessageTypeUnsubscribe:
		return handler.handleUnsubscribe(client, msg)

	case MessageTypePlaceBid:
		return handler.handlePlaceBid(client, msg)

	case MessageTypeJoinAuction:
		return handler.handleJoinAuction(client, msg)

	case MessageTypeLeaveAuction:
		return handler.handleLeaveAuction(client, msg)

	case MessageTypeBuyNow:
		return handler.handleBuyNow(client, msg)

	case MessageTypeGetAuction:
		return handler.handleGetAuction(client, msg)

	case MessageTypeListAuctions:
		return handler.handleListAuctions(client, msg)

	case MessageTypeGetWallet:
		return handler.handleGetWallet(client)

	case MessageTypeDeposit:
		return handler.handleDeposit(client, msg)

	case MessageTypeWithdraw:
		return handler.handleWithdraw(client, msg)

	case MessageTypeGetTransactions:
		return handler.handleGetTransactions(client, msg)

	default:
		handler.logger.Warn().Str("client_id", client.id).Str("message_type", string(msg.Type)).Msg("Unknown message type from client")
		return shared.ErrUnknownMessageType
	}
}

func (handler *WsHandler) convertEventToMessage(event outbound.Event) *ServerMessage {
	msgType := MessageTypeAuctionUpdate
	switch event.Type {
	case outbound.EventTypeBidPlaced:
		msgType = MessageTypeBidPlaced
	case outbound.EventTypeAuctionStarted:
		msgType = MessageTypeAuctionStarted
	case outbound.EventTypeAuctionEnded:
		msgType = MessageTypeAuctionEnded
	case outbound.EventTypeAuctionExtended:
		msgType = MessageTypeAuctionExtended
	case outbound.EventTypeParticipantJoin:
		msgType = MessageTypeParticipantJoined
	case outbound.EventTypeParticipantLeave:
		msgType = MessageTypeParticipantLeft
	case outbound.EventTypeNotification:
		msgType = MessageTypeNotification
	}

	return &ServerMessage{
		Type:      msgType,
		Data:      event.Data,
		Timestamp: event.Timestamp,
	}
}

// GetConnectedClients returns the number of connected clients
func (handler *WsHandler) GetConnectedClients() int {
	handler.clientsMu.RLock()
	defer handler.clientsMu.RUnlock()
	return len(handler.clients)
}

func (handler *WsHandler) handleSubscribe(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	eventChan := handler.getEventChannel(client.id)
	if eventChan == nil {
		handler.logger.Error().Str("client_id", client.id).Msg("No event channel found for client")
		return shared.ErrClientEventChannelNotFound
	}

	topic := outbound.AuctionTopic(*msg.AuctionID)
	if err := handler.broadcaster.Subscribe(ctx, topic, client.id, eventChan); err != nil {
		handler.logger.Error().Err(err).Str("client_id", client.id).Str("auction_id", msg.AuctionID.String()).Msg("Failed to subscribe to auction")
		return err
	}

	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = "subscribed"

	handler.logger.Info().Str("client_id", client.id).Str("auction_id", msg.AuctionID.String()).Msg("Client subscribed to auction")
	return client.Send(response)
}

// handleUnsubscribe handles unsubscription from auction events
func (handler *WsHandler) handleUnsubscribe(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	topic := outbound.AuctionTopic(*msg.AuctionID)
	if err := handler.broadcaster.Unsubscribe(ctx, topic, client.id); err != nil {
		return err
	}

	// Send confirmation
	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.AuctionID = msg.AuctionID
	response.Data["status"] = "unsubscribed"

	handler.logger.Info().Str("client_id", client.id).Str("auction_id", msg.AuctionID.String()).Msg("Client unsubscribed from auction")
	return client.Send(response)
}

// handlePlaceBid handles bid placement
func (handler *WsHandler) handlePlaceBid(client *WsClient, msg *ClientMessage) error {
	amount, ok := msg.Data["amount"].(float64)
	if !ok {
		return shared.ErrInvalidAmount
	}

	ctx := context.Background()

	bidRequest := inbound.PlaceBidRequest{
		AuctionID: *msg.AuctionID,
		UserID:    client.userID,
		ClientID:  client.id,
		Amount:    decimal.NewFromFloat(amount),
	}

	// Place bid through application service
	bid, err := handler.bidService.PlaceBid(ctx, bidRequest)
	if err != nil {
		// Send error message back to client
		errorMsg := NewErrorMessage(err.Error(), msg.AuctionID)
		return client.Send(errorMsg)
	}

	handler.logger.Info().Str("bid_id", bid.ID.String()).Str("auction_id", msg.AuctionID.String()).Str("user_id", client.userID.String()).Float64("amount", amount).Msg("Bid placed successfully")

	return nil
}

// handleJoinAuction registers the client as a participant
func (handler *WsHandler) handleJoinAuction(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	participant, err := handler.auctionService.JoinAuction(ctx, *msg.AuctionID, client.userID)
	if err != nil {
		errorMsg := NewErrorMessage(err.Error(), msg.AuctionID)
		return client.Send(errorMsg)
	}

	response := NewServerMessage(MessageTypeParticipantJoined)
	response.AuctionID = msg.AuctionID
	response.Data["participant_id"] = participant.ID
	response.Data["joined_at"] = participant.JoinedAt.Format(time.RFC3339)

	handler.logger.Info().Str("auction_id", msg.AuctionID.String()).Str("user_id", client.userID.String()).Msg("Client joined auction")
	return client.Send(response)
}

// handleLeaveAuction removes the client from an auction's participants
func (handler *WsHandler) handleLeaveAuction(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	if err := handler.auctionService.LeaveAuction(ctx, *msg.AuctionID, client.userID); err != nil {
		errorMsg := NewErrorMessage(err.Error(), msg.AuctionID)
		return client.Send(errorMsg)
	}

	response := NewServerMessage(MessageTypeParticipantLeft)
	response.AuctionID = msg.AuctionID

	handler.logger.Info().Str("auction_id", msg.AuctionID.String()).Str("user_id", client.userID.String()).Msg("Client left auction")
	return client.Send(response)
}

// handleBuyNow ends the auction immediately at the buy-now price
func (handler *WsHandler) handleBuyNow(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	a, err := handler.auctionService.CompleteBuyNow(ctx, *msg.AuctionID, client.userID)
	if err != nil {
		errorMsg := NewErrorMessage(err.Error(), msg.AuctionID)
		return client.Send(errorMsg)
	}

	response := handler.createAuctionResponse(a, MessageTypeAuctionEnded, msg.AuctionID)

	handler.logger.Info().Str("auction_id", msg.AuctionID.String()).Str("user_id", client.userID.String()).Msg("Buy-now completed")
	return client.Send(response)
}

// handleGetAuction handles getting auction details
func (handler *WsHandler) handleGetAuction(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	a, err := handler.auctionService.GetAuction(ctx, *msg.AuctionID)
	if err != nil {
		errorMsg := NewErrorMessage(err.Error(), msg.AuctionID)
		return client.Send(errorMsg)
	}

	response := handler.createAuctionResponse(a, MessageTypeAuctionUpdate, msg.AuctionID)

	return client.Send(response)
}

// handleListAuctions handles listing auctions
func (handler *WsHandler) handleListAuctions(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	limit := 10
	if limitVal, ok := msg.Data["limit"].(float64); ok {
		limit = int(limitVal)
	}

	offset := 0
	if offsetVal, ok := msg.Data["offset"].(float64); ok {
		offset = int(offsetVal)
	}

	var status *auction.Status
	if statusVal, ok := msg.Data["status"].(string); ok {
		s := auction.Status(statusVal)
		status = &s
	}

	auctionRequest := inbound.ListAuctionsRequest{
		Page:     offset/limit + 1, // Convert offset to page
		PageSize: limit,
		Status:   status,
	}

	// Get auctions through application service
	auctions, err := handler.auctionService.ListAuctions(ctx, auctionRequest)
	if err != nil {
		errorMsg := NewErrorMessage(err.Error(), nil)
		return client.Send(errorMsg)
	}

	// Send auctions data
	response := NewServerMessage(MessageTypeAuctionUpdate)
	response.Data["auctions"] = auctions
	response.Data["count"] = len(auctions)

	return client.Send(response)
}

// handleGetWallet returns the connected user's wallet balance
func (handler *WsHandler) handleGetWallet(client *WsClient) error {
	ctx := context.Background()

	w, err := handler.walletService.GetWallet(ctx, client.userID)
	if err != nil {
		errorMsg := NewErrorMessage(err.Error(), nil)
		return client.Send(errorMsg)
	}

	response := NewServerMessage(MessageTypeWalletUpdate)
	response.Data["balance"] = w.Balance.String()

	return client.Send(response)
}

// handleDeposit adds funds to the connected user's wallet
func (handler *WsHandler) handleDeposit(client *WsClient, msg *ClientMessage) error {
	amount, ok := msg.Data["amount"].(float64)
	if !ok {
		return shared.ErrInvalidAmount
	}

	ctx := context.Background()

	if err := handler.walletService.Deposit(ctx, client.userID, decimal.NewFromFloat(amount)); err != nil {
		errorMsg := NewErrorMessage(err.Error(), nil)
		return client.Send(errorMsg)
	}

	handler.logger.Info().Str("user_id", client.userID.String()).Float64("amount", amount).Msg("Deposit completed")
	return handler.handleGetWallet(client)
}

// handleWithdraw removes funds from the connected user's wallet
func (handler *WsHandler) handleWithdraw(client *WsClient, msg *ClientMessage) error {
	amount, ok := msg.Data["amount"].(float64)
	if !ok {
		return shared.ErrInvalidAmount
	}

	ctx := context.Background()

	if err := handler.walletService.Withdraw(ctx, client.userID, decimal.NewFromFloat(amount)); err != nil {
		errorMsg := NewErrorMessage(err.Error(), nil)
		return client.Send(errorMsg)
	}

	handler.logger.Info().Str("user_id", client.userID.String()).Float64("amount", amount).Msg("Withdrawal completed")
	return handler.handleGetWallet(client)
}

// handleGetTransactions returns the connected user's ledger entries
func (handler *WsHandler) handleGetTransactions(client *WsClient, msg *ClientMessage) error {
	ctx := context.Background()

	page := 1
	if pageVal, ok := msg.Data["page"].(float64); ok {
		page = int(pageVal)
	}

	pageSize := 20
	if sizeVal, ok := msg.Data["page_size"].(float64); ok {
		pageSize = int(sizeVal)
	}

	transactions, err := handler.walletService.GetTransactions(ctx, client.userID, page, pageSize)
	if err != nil {
		errorMsg := NewErrorMessage(err.Error(), nil)
		return client.Send(errorMsg)
	}

	response := NewServerMessage(MessageTypeWalletUpdate)
	response.Data["transactions"] = transactions
	response.Data["count"] = len(transactions)

	return client.Send(response)
}

func (handler *WsHandler) createAuctionResponse(a *auction.Auction, msgType MessageType, auctionID *uuid.UUID) *ServerMessage {
	response := NewServerMessage(msgType)
	if auctionID != nil {
		response.AuctionID = auctionID
	}

	response.Data["auction_id"] = a.ID
	response.Data["item_id"] = a.ItemID
	response.Data["creator_id"] = a.CreatorID
	response.Data["title"] = a.Title
	response.Data["start_time"] = a.StartTime.Format(time.RFC3339)
	response.Data["end_time"] = a.EndTime.Format(time.RFC3339)
	response.Data["starting_price"] = a.StartingPrice.String()
	response.Data["status"] = a.Status
	if a.CurrentHighestBid != nil {
		response.Data["current_highest_bid"] = a.CurrentHighestBid.String()
	}
	if a.WinnerID != nil {
		response.Data["winner_id"] = a.WinnerID
	}
	if a.FinalPrice != nil {
		response.Data["final_price"] = a.FinalPrice.String()
	}

	return response
}
