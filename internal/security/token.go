package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"susu-ledger-backend/internal/domain"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type for this endpoint")
)

type TokenType string

const (
	// TokenTypeAccess is minted by the identity provider for a wallet principal.
	TokenTypeAccess TokenType = "access"
	// TokenTypeSettlement is held by the payment gateway for settlement callbacks.
	TokenTypeSettlement TokenType = "settlement"
)

// Claims carries the caller's principal in the subject.
type Claims struct {
	Type       TokenType         `json:"type"`
	WalletKind domain.WalletKind `json:"wallet_kind,omitempty"`
	jwt.RegisteredClaims
}

// AccountID is the principal the token was issued for.
func (c *Claims) AccountID() domain.AccountID {
	return domain.AccountID(c.Subject)
}

type TokenManager interface {
	GenerateAccessToken(account domain.AccountID, walletKind domain.WalletKind, ttl time.Duration) (string, error)
	GenerateSettlementToken(gateway string, ttl time.Duration) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type tokenManager struct {
	secret []byte
	issuer string
}

func NewTokenManager(secret, issuer string) TokenManager {
	return &tokenManager{
		secret: []byte(secret),
		issuer: issuer,
	}
}

func (m *tokenManager) GenerateAccessToken(account domain.AccountID, walletKind domain.WalletKind, ttl time.Duration) (string, error) {
	return m.sign(Claims{
		Type:             TokenTypeAccess,
		WalletKind:       walletKind,
		RegisteredClaims: m.registered(string(account), "api-access", ttl),
	})
}

func (m *tokenManager) GenerateSettlementToken(gateway string, ttl time.Duration) (string, error) {
	return m.sign(Claims{
		Type:             TokenTypeSettlement,
		RegisteredClaims: m.registered(gateway, "settlement", ttl),
	})
}

func (m *tokenManager) registered(subject, audience string, ttl time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    m.issuer,
		Audience:  jwt.ClaimStrings{audience},
		ID:        uuid.NewString(),
	}
}

func (m *tokenManager) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *tokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
