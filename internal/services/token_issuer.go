package services

import (
	"errors"
	"fmt"
	"time"

	"potatoauth/internal/models"

	"github.com/dgrijalva/jwt-go"
)

// Values of the "type" claim.
const (
	TokenTypeAccess  = "jwt"
	TokenTypeRefresh = "refresh"
)

// ErrWrongTokenType is returned by Parse when a valid token has an unexpected "type" claim.
var ErrWrongTokenType = errors.New("wrong token type")

// Claims are carried by both access and refresh tokens.
// Access tokens set Role; refresh tokens set Session and PwID.
type Claims struct {
	Role    string `json:"role,omitempty"`
	Session string `json:"session,omitempty"`
	PwID    string `json:"pwId,omitempty"`
	Type    string `json:"type"`
	jwt.StandardClaims
}

// TokenIssuer signs and parses the HS256 tokens handed out at login.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer creates a new TokenIssuer.
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// AccessToken issues a short-lived token carrying the user's ID and role.
func (i *TokenIssuer) AccessToken(user *models.User) (string, error) {
	return i.sign(Claims{
		Role:           user.Role,
		Type:           TokenTypeAccess,
		StandardClaims: i.standardClaims(user.ID, i.accessTTL),
	})
}

// RefreshToken issues a long-lived token bound to a session and the current password identifier.
func (i *TokenIssuer) RefreshToken(user *models.User, session string) (string, error) {
	return i.sign(Claims{
		Session:        session,
		PwID:           user.PasswordIdentifier,
		Type:           TokenTypeRefresh,
		StandardClaims: i.standardClaims(user.ID, i.refreshTTL),
	})
}

// Parse validates signature, expiry and the "type" claim of tokenString.
func (i *TokenIssuer) Parse(tokenString, tokenType string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Validate the alg is what we expect:
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Type != tokenType {
		return nil, fmt.Errorf("expected %q token, got %q: %w", tokenType, claims.Type, ErrWrongTokenType)
	}
	return claims, nil
}

func (i *TokenIssuer) standardClaims(subject string, ttl time.Duration) jwt.StandardClaims {
	now := i.now()
	return jwt.StandardClaims{
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
}

func (i *TokenIssuer) sign(claims Claims) (string, error) {
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}
