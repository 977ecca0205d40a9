package models

import "time"

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"password_hash"`
	FullName     string     `json:"full_name"`
	PhotoURL     string     `json:"photo_url,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

// Profile is the part of a user that may leave the server.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	PhotoURL string `json:"photo_url,omitempty"`
}

func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, FullName: u.FullName, PhotoURL: u.PhotoURL}
}

// UserSettings is stored per user in the user_settings collection.
type UserSettings struct {
	UserID        string          `json:"user_id"`
	Notifications map[string]bool `json:"notifications"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	PhotoURL string `json:"photo_url" validate:"omitempty,url"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type AuthTokens struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	User         *Profile `json:"user,omitempty"`
}
