// Package auth issues and verifies the signed invite tokens the record store
// hands out for shares. Tokens are opaque to clients; only the server ever
// inspects them.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/transfertrack/backend/internal/infrastructure/config"
)

// Common errors
var (
	ErrInvalidToken  = errors.New("invalid invite token")
	ErrExpiredToken  = errors.New("invite token has expired")
	ErrInvalidClaims = errors.New("invalid invite token claims")
)

// InviteClaims are the custom JWT claims carried by an invite token. The
// embedded root location is a hint frozen at issue time; the share row is
// authoritative.
type InviteClaims struct {
	jwt.RegisteredClaims
	ShareID   string `json:"share_id"`
	ShareName string `json:"share_name"`
	RootName  string `json:"root_name"`
	ZoneOwner string `json:"zone_owner"`
	ZoneName  string `json:"zone_name"`
}

// InviteTokenService signs and verifies invite tokens with an HMAC secret.
type InviteTokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewInviteTokenService creates an invite token service from server config.
func NewInviteTokenService(cfg config.ServerConfig) *InviteTokenService {
	ttl := cfg.InviteTokenTTL
	if ttl <= 0 {
		ttl = 168 * time.Hour
	}
	return &InviteTokenService{
		secret: []byte(cfg.InviteSecret),
		ttl:    ttl,
		issuer: "transfertrack-recordstore",
	}
}

// GenerateInput contains input for invite token generation
type GenerateInput struct {
	ShareID   string
	ShareName string
	RootName  string
	ZoneOwner string
	ZoneName  string
}

// Generate mints a signed invite token for a share.
func (s *InviteTokenService) Generate(input GenerateInput) (string, error) {
	now := time.Now()
	claims := &InviteClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   input.ShareID,
			Audience:  jwt.ClaimStrings{s.issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		ShareID:   input.ShareID,
		ShareName: input.ShareName,
		RootName:  input.RootName,
		ZoneOwner: input.ZoneOwner,
		ZoneName:  input.ZoneName,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate verifies an invite token and returns its claims.
func (s *InviteTokenService) Validate(tokenString string) (*InviteClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &InviteClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*InviteClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.ShareID == "" {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}
