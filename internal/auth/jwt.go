package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/strefethen/dunehd-hub-go/internal/config"
)

const (
	tokenIssuer   = "dunehd-hub"
	tokenAudience = "dunehd-hub-client"
)

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenPair is returned when a client completes pairing.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresInSec int
}

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenType    = errors.New("token has invalid type")
)

type clientClaims struct {
	ClientName string    `json:"clientName"`
	Type       TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 client tokens.
type Signer struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewSigner(cfg config.Config) *Signer {
	return &Signer{
		key:        []byte(cfg.JWTSecret),
		accessTTL:  time.Duration(cfg.JWTAccessTokenExpirySec) * time.Second,
		refreshTTL: time.Duration(cfg.JWTRefreshTokenExpirySec) * time.Second,
		now:        time.Now,
	}
}

// Issue signs a fresh access and refresh token for client.
func (s *Signer) Issue(client Client) (TokenPair, error) {
	access, err := s.sign(client, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(client, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresInSec: s.accessSeconds()}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Signer) Refresh(refreshToken string) (accessToken string, expiresInSec int, err error) {
	client, err := s.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		return "", 0, err
	}
	accessToken, err = s.sign(client, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return "", 0, err
	}
	return accessToken, s.accessSeconds(), nil
}

// Verify checks signature, issuer, audience and expiry, and that the token
// is of the wanted type. The returned client carries the token's type.
func (s *Signer) Verify(token string, want TokenType) (Client, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	var claims clientClaims
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Client{}, ErrTokenExpired
		}
		return Client{}, ErrTokenInvalid
	}

	client := Client{ID: claims.Subject, Name: claims.ClientName, Type: claims.Type}
	switch {
	case client.ID == "" || client.Name == "":
		return Client{}, ErrTokenInvalid
	case client.Type != TokenTypeAccess && client.Type != TokenTypeRefresh:
		return Client{}, ErrTokenInvalid
	case client.Type != want:
		return Client{}, ErrTokenType
	}
	return client, nil
}

func (s *Signer) sign(client Client, tokenType TokenType, ttl time.Duration) (string, error) {
	issuedAt := s.now()
	claims := clientClaims{
		ClientName: client.Name,
		Type:       tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   client.ID,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

func (s *Signer) accessSeconds() int {
	return int(s.accessTTL / time.Second)
}
