package sitemeta

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const claimsKey = "sitemeta.claims"

// Claims are carried by dev mode and rebuild tokens.
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject valid for ttl.
func IssueToken(secret, subject, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "sitemeta",
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(secret, token string) (*Claims, error) {
	tok, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func bearerToken(c echo.Context) string {
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireBearer authenticates HTTP functions with a JWT signed by JWTSecret.
// With allowStatic the configured RebuildToken is accepted too. Repeated
// failures from one IP are answered with 429.
func (a *App) requireBearer(allowStatic bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if !a.authLimiter.Check(ip) {
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many failed attempts, try again later")
			}
			cfg := a.Config()
			token := bearerToken(c)
			if token == "" {
				a.authLimiter.Record(ip)
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			if allowStatic && cfg.RebuildToken != "" &&
				subtle.ConstantTimeCompare([]byte(token), []byte(cfg.RebuildToken)) == 1 {
				return next(c)
			}
			if cfg.JWTSecret == "" {
				a.authLimiter.Record(ip)
				return echo.NewHTTPError(http.StatusUnauthorized, "token authentication is not configured")
			}
			claims, err := ParseToken(cfg.JWTSecret, token)
			if err != nil {
				a.authLimiter.Record(ip)
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// tokenSubject returns the authenticated subject, if any.
func tokenSubject(c echo.Context) string {
	if claims, ok := c.Get(claimsKey).(*Claims); ok {
		return claims.Subject
	}
	return ""
}
