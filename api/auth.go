package api

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	envAuthTestMode   = "AUTH_TEST_MODE"
	envTestJWTSecret  = "TEST_JWT_SECRET"
	envAllowAnonymous = "ALLOW_ANONYMOUS"

	// AnonymousUser is the fallback identity used when anonymous
	// access is enabled and no token is presented.
	AnonymousUser = "anonymous_user"

	// AdminRole is the role claim value required by admin routes.
	AdminRole = "admin"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

// Claims is what the rest of the API cares about from a verified token.
type Claims struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the caller may hit admin routes.
func (c Claims) IsAdmin() bool { return c.Role == AdminRole }

// Auth validates incoming JWT tokens.
type Auth struct {
	JWKS           *keyfunc.JWKS
	Audience       string
	Issuer         string
	TestMode       bool
	TestSecret     []byte
	AllowAnonymous bool

	parser *jwt.Parser
}

// NewAuth creates a new Auth instance. With AUTH_TEST_MODE=1 tokens are
// verified against TEST_JWT_SECRET using HS256 instead of the JWKS;
// ALLOW_ANONYMOUS=1 lets requests without a token through as the
// anonymous user (user-scoped routes only, admin checks still apply).
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer}
	a.AllowAnonymous = os.Getenv(envAllowAnonymous) == "1"

	if os.Getenv(envAuthTestMode) == "1" {
		secret := os.Getenv(envTestJWTSecret)
		if secret == "" {
			panic("TEST_JWT_SECRET must be set when AUTH_TEST_MODE=1")
		}
		a.TestMode = true
		a.TestSecret = []byte(secret)
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
		return a
	}
	a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	return a
}

// ClaimsFromAuthHeader extracts verified claims from the Authorization
// header.
func (a *Auth) ClaimsFromAuthHeader(h string) (Claims, error) {
	h = strings.TrimSpace(h)
	if h == "" {
		if a.AllowAnonymous {
			return Claims{UserID: AnonymousUser}, nil
		}
		return Claims{}, errMissingAuthorization
	}

	token, err := bearerToken(h)
	if err != nil {
		return Claims{}, err
	}

	var parsed *jwt.Token
	if a.TestMode {
		parsed, err = a.parser.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.TestSecret, nil
		})
	} else {
		if a.JWKS == nil {
			return Claims{}, errors.New("jwks not configured")
		}
		parsed, err = a.parser.Parse(token, a.JWKS.Keyfunc)
	}
	if err != nil {
		return Claims{}, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("invalid claims")
	}

	now := time.Now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return Claims{}, errors.New("token expired")
	}
	if !a.TestMode {
		if !claims.VerifyAudience(a.Audience, false) {
			return Claims{}, errors.New("invalid audience")
		}
		if !claims.VerifyIssuer(a.Issuer, false) {
			return Claims{}, errors.New("invalid issuer")
		}
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Claims{}, errors.New("missing sub claim")
	}

	out := Claims{UserID: sub}
	if role, ok := claims["role"].(string); ok {
		out.Role = role
	} else if role, ok := claims["custom:role"].(string); ok {
		out.Role = role
	}
	return out, nil
}

func bearerToken(h string) (string, error) {
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errBadAuthorization
	}
	token := strings.TrimSpace(parts[1])
	if token == "" || strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}
