package db

import (
	"bidhall-marketplace-service/internal/ports/outbound"
)

// RepositoryFactory creates and manages all database repositories
type RepositoryFactory struct {
	conn *Connection
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(conn *Connection) *RepositoryFactory {
	return &RepositoryFactory{conn: conn}
}

// GetAuctionRepository returns the auction repository
func (f *RepositoryFactory) GetAuctionRepository() outbound.AuctionRepository {
	return NewAuctionRepository(f.conn)
}

// GetBidRepository returns the bid repository
func (f *RepositoryFactory) GetBidRepository() outbound.BidRepository {
	return NewBidRepository(f.conn)
}

// GetParticipantRepository returns the participant repository
func (f *RepositoryFactory) GetParticipantRepository() outbound.ParticipantRepository {
	return NewParticipantRepository(f.conn)
}

// GetJobRepository returns the job repository
func (f *RepositoryFactory) GetJobRepository() outbound.JobRepository {
	return NewJobRepository(f.conn)
}

// GetWalletRepository returns the wallet repository
func (f *RepositoryFactory) GetWalletRepository() outbound.WalletRepository {
	return NewWalletRepository(f.conn)
}

// GetNotificationRepository returns the notification repository
func (f *RepositoryFactory) GetNotificationRepository() outbound.NotificationRepository {
	return NewNotificationRepository(f.conn)
}

// GetItemRepository returns the item repository
func (f *RepositoryFactory) GetItemRepository() outbound.ItemRepository {
	return NewItemRepository(f.conn)
}

// GetUserRepository returns the user repository
func (f *RepositoryFactory) GetUserRepository() outbound.UserRepository {
	return NewUserRepository(f.conn)
}
