package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/erp/stockflow/internal/infrastructure/auth"
	"github.com/erp/stockflow/internal/infrastructure/logger"
	"github.com/erp/stockflow/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ActorKey is the gin context key of the authenticated shared.Actor
	ActorKey = "actor"

	authHeader   = "Authorization"
	bearerPrefix = "Bearer "
)

// Authenticator turns a bearer token into the acting user
type Authenticator interface {
	Authenticate(token string) (shared.Actor, error)
}

var _ Authenticator = (*auth.Verifier)(nil)

var errNoCredentials = errors.New("no bearer token")

// Authenticate requires a valid bearer token. The actor is stored under
// ActorKey and its tenant and user are added to the request logger.
func Authenticate(authn Authenticator, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(authHeader)
		if header == "" {
			abortUnauthorized(c, log, errNoCredentials, "Missing authorization header")
			return
		}
		token, ok := strings.CutPrefix(header, bearerPrefix)
		if !ok || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, log, errNoCredentials, "Invalid authorization header format")
			return
		}

		actor, err := authn.Authenticate(strings.TrimSpace(token))
		if err == nil {
			err = actor.Validate()
		}
		if err != nil {
			abortUnauthorized(c, log, err, "Token validation failed")
			return
		}

		c.Set(ActorKey, actor)
		ctx := c.Request.Context()
		ctx, _ = logger.WithActor(ctx, logger.FromContext(ctx), actor.TenantID.String(), actor.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, log *zap.Logger, err error, reason string) {
	logger.WithLogger(c.Request.Context(), log).Warn("Authentication failed",
		zap.Error(err),
		zap.String("reason", reason),
		zap.String("path", c.Request.URL.Path),
	)

	code, message := dto.ErrCodeUnauthorized, "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code, message = dto.ErrCodeTokenExpired, "Token has expired"
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidTokenType),
		errors.Is(err, auth.ErrTokenNotYetValid), errors.Is(err, auth.ErrInvalidClaims),
		errors.Is(err, auth.ErrMissingTenantID), errors.Is(err, auth.ErrMissingUserID):
		code, message = dto.ErrCodeTokenInvalid, "Invalid token"
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, message, requestID(c)))
}

// ActorFrom returns the actor stored by Authenticate
func ActorFrom(c *gin.Context) (shared.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return shared.Actor{}, false
	}
	actor, ok := v.(shared.Actor)
	return actor, ok
}
