// Package storage defines persistence for users and conversation history.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kindred-finance/kindred/internal/models"
)

// ErrNotFound is returned when a user or conversation does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines user and conversation persistence operations.
type Storage interface {
	// User operations
	CreateUser(ctx context.Context, name, email, phone string) (int64, error)
	UpsertUserFromIdentity(ctx context.Context, subject, name, email string) (int64, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByAuthSubject(ctx context.Context, subject string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, id int64, profile models.UserProfile) error

	// Conversation operations
	StoreConversation(ctx context.Context, conversationID, userID string, messages []models.Message) error
	GetConversation(ctx context.Context, conversationID, userID string) ([]models.Message, error)
	DeleteConversation(ctx context.Context, conversationID, userID string) error
	CleanupOldConversations(ctx context.Context, olderThan time.Duration) (int64, error)
	CountConversations(ctx context.Context) (int64, error)

	Close() error
}
