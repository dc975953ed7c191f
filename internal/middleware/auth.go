package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/labstack/echo/v4"
)

const identityKey = "identity"

// Claims carries the caller's role and panchayat next to the standard claims.
// The subject is the user id.
type Claims struct {
	Role        domain.Role `json:"role"`
	PanchayatID string      `json:"panchayat_id,omitempty"`
	jwt.StandardClaims
}

func IssueToken(secret string, identity domain.Identity, ttl time.Duration) (string, error) {
	if identity.UserID == "" {
		return "", errors.New("user id is required")
	}

	now := time.Now()
	claims := Claims{
		Role:        identity.Role,
		PanchayatID: identity.PanchayatID,
		StandardClaims: jwt.StandardClaims{
			Subject:   identity.UserID,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseToken(secret, raw string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}

	return domain.Identity{
		UserID:      claims.Subject,
		Role:        claims.Role,
		PanchayatID: claims.PanchayatID,
	}, nil
}

// Auth resolves a Bearer token into an Identity. Requests without a token pass
// through anonymously and are rejected by the services that need a caller; a
// token that does not verify is rejected here.
func Auth(secret string, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(c)
			}

			raw, found := strings.CutPrefix(header, "Bearer ")
			if !found {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "authorization header must be a bearer token",
				})
			}

			identity, err := ParseToken(secret, strings.TrimSpace(raw))
			if err != nil {
				log.Warn(c.Request().Context(), "Rejected token",
					"error", err,
				)
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": domain.ErrUnauthorized.Error(),
				})
			}

			ctx := logger.WithUserID(c.Request().Context(), identity.UserID)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set(identityKey, identity)

			return next(c)
		}
	}
}

// IdentityFrom returns the caller resolved by Auth, or the zero Identity.
func IdentityFrom(c echo.Context) domain.Identity {
	identity, _ := c.Get(identityKey).(domain.Identity)
	return identity
}
