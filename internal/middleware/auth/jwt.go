package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	LocalUserID = "user_id"
	LocalRoles  = "user_roles"
)

// Claims are the token claims the dashboard reads. Subject carries the user id.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

type Config struct {
	SigningKey string
	Issuer     string
	Logger     *zap.Logger
}

// Middleware validates an HS256 bearer token and stores the subject and roles
// in fiber locals. Websocket clients that cannot set headers may pass the
// token as the access_token query parameter.
func Middleware(cfg Config) fiber.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	key := []byte(cfg.SigningKey)

	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}

		claims := &Claims{}
		_, err = jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return key, nil
		},
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithExpirationRequired(),
		)
		if err != nil {
			cfg.Logger.Debug("Rejected token", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": tokenError(err)})
		}
		if claims.Subject == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Token has no subject"})
		}

		c.Locals(LocalUserID, claims.Subject)
		c.Locals(LocalRoles, claims.Roles)
		return c.Next()
	}
}

// RequireRole rejects callers that hold none of roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		held, ok := c.Locals(LocalRoles).([]string)
		if !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "User roles not found"})
		}
		for _, want := range roles {
			for _, have := range held {
				if have == want {
					return c.Next()
				}
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Insufficient permissions"})
	}
}

// UserID returns the authenticated subject, or "" on unauthenticated routes.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

func bearerToken(c *fiber.Ctx) (string, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		if q := c.Query("access_token"); q != "" {
			return q, nil
		}
		return "", errors.New("Authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", errors.New("Authorization header format must be Bearer {token}")
	}
	return parts[1], nil
}

func tokenError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "Invalid token signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "Token expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "Token not active yet"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "Invalid token issuer"
	default:
		return "Invalid token"
	}
}
