package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/learnwire/internal/auth"
	"github.com/vovakirdan/learnwire/internal/core"
)

const (
	// ContextKeyIdentity is the context key for storing the verified core.Identity.
	ContextKeyIdentity = "identity"
	// ContextKeyUserID is the context key for storing user ID.
	ContextKeyUserID = "user_id"
)

// bearerToken extracts the token from "Bearer <token>". Anything else yields "".
func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AuthMiddleware creates a middleware that validates JWT tokens.
func AuthMiddleware(verifier IdentityVerifier, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			return
		}

		token := bearerToken(authHeader)
		if token == "" {
			logger.Debug().Msg("invalid authorization header format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			var authErr *auth.AuthenticationError
			if errors.As(err, &authErr) && authErr.Reason == auth.ReasonUnavailable {
				logger.Error().Err(err).Msg("verify token")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{Error: "authentication unavailable"})
				return
			}
			logger.Debug().Err(err).Msg("invalid token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			return
		}

		c.Set(ContextKeyIdentity, identity)
		c.Set(ContextKeyUserID, identity.ID)

		c.Next()
	}
}

// identityFrom returns the identity stored by AuthMiddleware.
func identityFrom(c *gin.Context) (core.Identity, bool) {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return core.Identity{}, false
	}
	identity, ok := v.(core.Identity)
	return identity, ok
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// upgraded websocket requests are logged by the ws handler
		if c.Writer.Status() == http.StatusSwitchingProtocols {
			return
		}
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
