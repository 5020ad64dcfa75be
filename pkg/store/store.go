package store

import (
	"context"
	"errors"

	"portfolio/pkg/domain"
)

// ErrNotFound is returned by update and delete operations when no row matches.
var ErrNotFound = errors.New("record not found")

// Store defines persistence operations for users, portfolio items, and contacts.
type Store interface {
	// users
	SaveUser(ctx context.Context, u domain.User) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id int64) (domain.User, bool, error)

	// portfolio
	ListPortfolioItems(ctx context.Context) ([]domain.PortfolioItem, error)
	GetPortfolioItem(ctx context.Context, id int64) (domain.PortfolioItem, bool, error)
	CreatePortfolioItem(ctx context.Context, item domain.PortfolioItem) (domain.PortfolioItem, error)
	UpdatePortfolioItem(ctx context.Context, id int64, item domain.PortfolioItem) (domain.PortfolioItem, error)
	DeletePortfolioItem(ctx context.Context, id int64) error

	// contacts
	CreateContact(ctx context.Context, c domain.Contact) (domain.Contact, error)
	ListContacts(ctx context.Context) ([]domain.Contact, error)
}
