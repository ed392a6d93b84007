// Package auth verifies managed-auth JWTs and validates issuer/audience.
// Supabase-issued access tokens are HS256 signed with the project JWT
// secret; a JWKS endpoint is supported as the RS256 alternative.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultLeeway   = 30 * time.Second
	defaultAudience = "authenticated"
)

// Verifier validates JWT access tokens against a shared secret or a
// JWKS endpoint.
type Verifier struct {
	issuer  string
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewVerifierFromEnv initializes a verifier from SUPABASE_JWT_SECRET
// (HS256) or JWT_JWKS_URL (RS256), plus JWT_ISSUER and JWT_AUDIENCE.
func NewVerifierFromEnv() (*Verifier, error) {
	issuer := strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	audience := strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	secret := strings.TrimSpace(os.Getenv("SUPABASE_JWT_SECRET"))
	jwksURL := strings.TrimSpace(os.Getenv("JWT_JWKS_URL"))
	if issuer == "" {
		return nil, errors.New("JWT_ISSUER must be set")
	}
	if secret == "" && jwksURL == "" {
		return nil, errors.New("SUPABASE_JWT_SECRET or JWT_JWKS_URL must be set")
	}
	if secret != "" {
		return NewSecretVerifier(issuer, audience, secret)
	}
	return NewJWKSVerifier(issuer, audience, jwksURL)
}

// NewSecretVerifier builds an HS256 verifier over a shared secret.
func NewSecretVerifier(issuer, audience, secret string) (*Verifier, error) {
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if secret == "" {
		return nil, errors.New("secret must be set")
	}

	key := []byte(secret)
	return &Verifier{
		issuer:  issuer,
		keyfunc: func(*jwt.Token) (any, error) { return key, nil },
		parser:  newParser(issuer, audience, jwt.SigningMethodHS256.Name),
	}, nil
}

// NewJWKSVerifier builds an RS256 verifier against a JWKS endpoint.
func NewJWKSVerifier(issuer, audience, jwksURL string) (*Verifier, error) {
	if issuer == "" {
		return nil, errors.New("issuer must be set")
	}
	if jwksURL == "" {
		return nil, errors.New("jwks url must be set")
	}

	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}

	return &Verifier{
		issuer:  issuer,
		keyfunc: keyProvider.Keyfunc,
		parser: newParser(issuer, audience,
			jwt.SigningMethodRS256.Name, jwt.SigningMethodRS384.Name, jwt.SigningMethodRS512.Name),
	}, nil
}

func newParser(issuer, audience string, methods ...string) *jwt.Parser {
	if audience == "" {
		audience = defaultAudience
	}
	return jwt.NewParser(
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithValidMethods(methods),
	)
}

// Verify parses and validates a JWT, returning extracted claims.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	claims := &Claims{
		Subject:   readString(mapClaims, "sub"),
		Email:     readString(mapClaims, "email"),
		Issuer:    readString(mapClaims, "iss"),
		Audience:  readAudience(mapClaims["aud"]),
		ExpiresAt: readExpiry(mapClaims["exp"]),
		Raw:       mapClaims,
	}
	if claims.Subject == "" {
		return nil, errors.New("token missing sub")
	}
	return claims, nil
}

func readString(claims jwt.MapClaims, key string) string {
	val := claims[key]
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}

func readAudience(raw any) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	default:
		return nil
	}
}

func readExpiry(raw any) time.Time {
	switch v := raw.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return time.Unix(i, 0)
		}
	case int64:
		return time.Unix(v, 0)
	}
	return time.Time{}
}

// AuthDisabled reports whether auth should be skipped for local development.
func AuthDisabled() bool {
	if strings.EqualFold(os.Getenv("AUTH_DISABLED"), "true") {
		if strings.EqualFold(os.Getenv("ENV"), "local") || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") == "" {
			log.Print("auth disabled via AUTH_DISABLED for local development")
			return true
		}
	}
	return false
}
