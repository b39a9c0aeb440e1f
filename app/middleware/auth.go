package appMiddleware

import (
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const UserIDKey contextKey = "userID"

// Claims are the custom claims carried in the access token.
type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"usr,omitempty"`
	Email    string `json:"eml"`
	jwt.RegisteredClaims
}

// JwtSecretKey and JwtRefreshSecretKey sign access and refresh tokens.
// They are set from the environment during startup; the server refuses to
// start without them (see main.go).
var (
	JwtSecretKey        []byte
	JwtRefreshSecretKey []byte
)
