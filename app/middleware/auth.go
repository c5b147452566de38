package middleware

import (
	"net/http"
	"time"

	"github.com/soundvault/ms-go-auth/app/security"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Cookie names the token pair travels under.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// ClaimsKey is the echo context key the guards attach decoded claims to.
const ClaimsKey = "claims"

// TokenGuard rejects requests that do not carry a structurally valid,
// non-expired token of the expected class before any handler runs.
type TokenGuard struct {
	accessCodec  *security.Codec
	refreshCodec *security.Codec
}

func NewTokenGuard(accessCodec, refreshCodec *security.Codec) *TokenGuard {
	return &TokenGuard{accessCodec: accessCodec, refreshCodec: refreshCodec}
}

// RequireAccess guards routes behind the accessToken cookie.
func (g *TokenGuard) RequireAccess(next echo.HandlerFunc) echo.HandlerFunc {
	return g.require(next, g.accessCodec, AccessCookie, security.PurposeAccess)
}

// RequireRefresh guards the refresh endpoint behind the refreshToken cookie.
func (g *TokenGuard) RequireRefresh(next echo.HandlerFunc) echo.HandlerFunc {
	return g.require(next, g.refreshCodec, RefreshCookie, security.PurposeRefresh)
}

func (g *TokenGuard) require(next echo.HandlerFunc, codec *security.Codec, cookieName, purpose string) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(cookieName)
		if err != nil || cookie.Value == "" {
			logrus.WithField("cookie", cookieName).Debug("Missing token cookie")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "missing token",
			})
		}

		claims, err := codec.Decode(cookie.Value)
		if err != nil {
			logrus.WithField("cookie", cookieName).Debug("Malformed token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid token",
			})
		}

		if claims.Purpose != purpose {
			logrus.WithFields(logrus.Fields{
				"cookie":  cookieName,
				"purpose": claims.Purpose,
			}).Debug("Token purpose mismatch")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid token",
			})
		}

		if claims.Expired(time.Now()) {
			logrus.WithField("cookie", cookieName).Debug("Expired token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "token has expired",
			})
		}

		c.Set(ClaimsKey, claims)
		return next(c)
	}
}

// ClaimsFrom returns the claims a guard attached to the context, or nil if
// no guard ran.
func ClaimsFrom(c echo.Context) *security.Claims {
	claims, _ := c.Get(ClaimsKey).(*security.Claims)
	return claims
}

// RequireRoles composes with RequireAccess: after decoding, the claim's
// role must be a member of the statically declared set for the route.
func RequireRoles(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ClaimsFrom(c)
			if claims == nil || !allowed[claims.Role] {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "forbidden",
				})
			}
			return next(c)
		}
	}
}
