package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence. Table names match the schema the
// public site has always used.
type UserModel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"column:password;not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type PortfolioItemModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Title       string `gorm:"not null"`
	Description *string
	Category    string                      `gorm:"not null"`
	ImageURL    string                      `gorm:"column:image_url;not null"`
	Tags        datatypes.JSONSlice[string] `gorm:"not null"`
	CreatedAt   time.Time                   `gorm:"not null;index"`
	UpdatedAt   time.Time                   `gorm:"not null"`
}

func (PortfolioItemModel) TableName() string { return "portfolio_items" }

type ContactModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Name        string    `gorm:"not null"`
	Email       string    `gorm:"not null"`
	Message     string    `gorm:"type:text;not null"`
	ProjectType string    `gorm:"column:project_type;not null"`
	CreatedAt   time.Time `gorm:"not null;index"`
}

func (ContactModel) TableName() string { return "contacts" }

// SessionModel is a server-side session row. Data holds the signed,
// encoded session values; the cookie only carries Token.
type SessionModel struct {
	Token     string    `gorm:"primaryKey;size:64"`
	UserID    int64     `gorm:"index"`
	Data      string    `gorm:"type:text;not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SessionModel) TableName() string { return "session" }
