// Package store provides the SQLite persistence for threads, messages and settings.
package store

import (
	"github.com/zhouzirui/design-desk/backend/internal/model/chat"
	"github.com/zhouzirui/design-desk/backend/internal/model/settings"
)

// Repository is everything the service persists.
type Repository interface {
	chat.Store
	settings.Store

	// Close closes the database connection.
	Close() error
}
