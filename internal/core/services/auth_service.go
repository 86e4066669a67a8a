package services

import (
	"context"
	"errors"
	"time"

	"studiocast/internal/core/domain"
	"studiocast/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

type AuthService interface {
	GenerateToken(userID domain.UserID, username string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
	CheckHostPermission(ctx context.Context, userID domain.UserID, roomID domain.RoomID) error
	GetUserFromContext(ctx context.Context) (domain.UserID, error)
}

type Claims struct {
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
	jwt.RegisteredClaims
}

type contextKey string

const userIDContextKey contextKey = "user_id"

// ContextWithUserID stores an authenticated user id on the context.
func ContextWithUserID(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

type authService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
	registry       ports.RoomRegistry
}

func NewAuthService(jwtSecret string, accessTokenTTL time.Duration, registry ports.RoomRegistry) AuthService {
	return &authService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
		registry:       registry,
	}
}

func (s *authService) GenerateToken(userID domain.UserID, username string) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// CheckHostPermission verifies the user is the recorded host of the room.
// Stream control endpoints require host rights.
func (s *authService) CheckHostPermission(ctx context.Context, userID domain.UserID, roomID domain.RoomID) error {
	room, err := s.registry.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if room.HostID != userID {
		return ErrUnauthorized
	}
	return nil
}

func (s *authService) GetUserFromContext(ctx context.Context) (domain.UserID, error) {
	userID, ok := ctx.Value(userIDContextKey).(domain.UserID)
	if !ok {
		return "", ErrUnauthorized
	}
	return userID, nil
}
