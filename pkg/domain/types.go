package domain

import "time"

// DefaultProjectType is stored when a contact submission omits projectType.
const DefaultProjectType = "general"

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Identity is the public view of a user returned by the auth endpoints.
type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Identity returns the fields of u that are safe to expose.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email}
}

type PortfolioItem struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"imageUrl"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Contact struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Message     string    `json:"message"`
	ProjectType string    `json:"projectType"`
	CreatedAt   time.Time `json:"createdAt"`
}
