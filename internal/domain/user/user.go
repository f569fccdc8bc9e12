package user

import "time"

type User struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	PasswordHash  *string    `json:"-"` // never expose the hash in JSON
	EmailVerified bool       `json:"emailVerified"`
	IsActive      bool       `json:"isActive"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Identity is the request-scoped view of a logged-in user that middleware
// attaches to the context. It omits the password hash field entirely rather
// than relying on JSON tags.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsActive bool   `json:"isActive"`
}

func (u User) Identity() Identity {
	return Identity{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		IsActive: u.IsActive,
	}
}

// Public is the API response shape for a user record.
type Public struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (u User) Public() Public {
	return Public{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		IsActive:      u.IsActive,
		CreatedAt:     u.CreatedAt,
	}
}
