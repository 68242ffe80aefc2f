package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/learnwire/internal/core"
	"github.com/vovakirdan/learnwire/internal/store"
)

// Verifier turns a bearer token into a core.Identity. It never touches
// realtime state.
type Verifier struct {
	jwtConfig *JWTConfig
	users     store.UserStore
}

// NewVerifier creates a verifier backed by the given user store.
func NewVerifier(jwtConfig *JWTConfig, users store.UserStore) *Verifier {
	return &Verifier{jwtConfig: jwtConfig, users: users}
}

// Verify validates the token and resolves the user it names. Every failure is
// an *AuthenticationError.
func (v *Verifier) Verify(ctx context.Context, token string) (core.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return core.Identity{}, authError(ReasonMissing, nil)
	}

	claims, err := ValidateToken(v.jwtConfig, token)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return core.Identity{}, authError(ReasonExpired, err)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return core.Identity{}, authError(ReasonMalformed, err)
		default:
			return core.Identity{}, authError(ReasonInvalid, err)
		}
	}

	user, err := v.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return core.Identity{}, authError(ReasonUnknownUser, err)
		}
		return core.Identity{}, authError(ReasonUnavailable, err)
	}

	return core.Identity{ID: user.ID, DisplayName: user.Name}, nil
}
