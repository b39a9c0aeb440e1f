package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrConflict = errors.New("account already exists")
var ErrUnauthenticated = errors.New("authentication required or invalid credentials")

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse carries a freshly issued token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// RefreshToken is a stored, rotatable refresh token.
type RefreshToken struct {
	Token         uuid.UUID
	UserID        uuid.UUID
	ExpiresAt     time.Time
	InvalidatedAt *time.Time
}
