// Package auth verifies bearer tokens issued by the identity service and turns
// them into the actor the core operations run as.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType represents the type of JWT token
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingTenantID  = errors.New("missing tenant_id in claims")
	ErrMissingUserID    = errors.New("missing user_id in claims")
)

// Claims are the claims of an access token
type Claims struct {
	jwt.RegisteredClaims
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	RoleIDs   []string  `json:"role_ids,omitempty"`
	TokenType TokenType `json:"token_type"`
}

// Actor converts the claims into the caller of core operations
func (c *Claims) Actor() (shared.Actor, error) {
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil {
		return shared.Actor{}, fmt.Errorf("%w: tenant_id", ErrInvalidClaims)
	}
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return shared.Actor{}, fmt.Errorf("%w: user_id", ErrInvalidClaims)
	}
	roles := make([]uuid.UUID, 0, len(c.RoleIDs))
	for _, r := range c.RoleIDs {
		id, err := uuid.Parse(r)
		if err != nil {
			return shared.Actor{}, fmt.Errorf("%w: role_ids", ErrInvalidClaims)
		}
		roles = append(roles, id)
	}
	return shared.Actor{ID: userID, TenantID: tenantID, RoleIDs: roles}, nil
}

// Verifier validates HS256 access tokens
type Verifier struct {
	secret []byte
	parser *jwt.Parser
	issuer string
	// audience defaults to the issuer, as the identity service issues them
	audience string
}

// NewVerifier creates a verifier from the jwt config section
func NewVerifier(cfg config.JWTConfig) *Verifier {
	audience := cfg.Audience
	if audience == "" {
		audience = cfg.Issuer
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Verifier{
		secret:   []byte(cfg.Secret),
		parser:   jwt.NewParser(opts...),
		issuer:   cfg.Issuer,
		audience: audience,
	}
}

// Verify validates an access token and returns its claims
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}
	if !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrInvalidTokenType
	}
	if claims.TenantID == "" {
		return nil, ErrMissingTenantID
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}
	return claims, nil
}

// Authenticate verifies the token and returns the actor it names
func (v *Verifier) Authenticate(tokenString string) (shared.Actor, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return shared.Actor{}, err
	}
	return claims.Actor()
}

// IssueInput names the actor an issued token speaks for
type IssueInput struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Username string
	RoleIDs  []uuid.UUID
}

// Issue signs an access token valid for ttl. The service itself never logs
// anyone in; this exists for local tooling and tests.
func (v *Verifier) Issue(input IssueInput, ttl time.Duration) (string, error) {
	now := time.Now()
	roles := make([]string, len(input.RoleIDs))
	for i, r := range input.RoleIDs {
		roles[i] = r.String()
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    v.issuer,
			Subject:   input.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID:  input.TenantID.String(),
		UserID:    input.UserID.String(),
		Username:  input.Username,
		RoleIDs:   roles,
		TokenType: TokenTypeAccess,
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
