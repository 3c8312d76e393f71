package middleware

import (
	"errors"
	"strconv"
	"strings"

	"chatapp/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// Fiber locals keys set by the auth middleware.
const (
	LocalUserID   = "userID"
	LocalIdentity = "identity"
)

// TokenConfig describes what a valid access token must carry.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

var (
	errMissingToken  = errors.New("authorization required")
	errInvalidToken  = errors.New("invalid or expired token")
	errInvalidClaims = errors.New("invalid token claims")
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *fiber.Ctx) string {
	parts := strings.Fields(c.Get(fiber.HeaderAuthorization))
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// ParseIdentity validates tokenString and returns the caller it names. The
// subject claim is the numeric user ID; name, avatar and role are optional.
func ParseIdentity(tokenString string, cfg TokenConfig) (models.Identity, error) {
	if tokenString == "" {
		return models.Identity{}, errMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return models.Identity{}, errInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return models.Identity{}, errInvalidClaims
	}
	userID, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || userID == 0 {
		return models.Identity{}, errInvalidClaims
	}

	identity := models.Identity{UserID: uint(userID)}
	identity.DisplayName, _ = claims["name"].(string)
	identity.AvatarURL, _ = claims["avatar"].(string)
	if role, ok := claims["role"].(string); ok {
		identity.IsAdmin = role == "admin" || role == "moderator"
	}
	return identity, nil
}

// IdentityFrom returns the identity stored by the auth middleware, or an
// anonymous identity when the request is unauthenticated.
func IdentityFrom(c *fiber.Ctx) models.Identity {
	if identity, ok := c.Locals(LocalIdentity).(models.Identity); ok {
		return identity
	}
	return models.Identity{}
}
