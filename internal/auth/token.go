// Package auth verifies bearer tokens issued by the identity provider and
// exposes the caller's identity to handlers. Issuing credentials is out of
// scope; Issue exists for local tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/toko-smartprice/internal/common"
)

const roleClaim = "role"

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   string
}

// Config configures a Verifier.
type Config struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

// Verifier validates HS256 access tokens.
type Verifier struct {
	secret    []byte
	issuer    string
	audience  string
	skew      time.Duration
	algorithm jwa.SignatureAlgorithm
	now       func() time.Time
}

// NewVerifier constructs a Verifier. The secret is mandatory.
func NewVerifier(cfg Config) (*Verifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: jwt secret is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		secret:    []byte(cfg.Secret),
		issuer:    cfg.Issuer,
		audience:  cfg.Audience,
		skew:      cfg.ClockSkew,
		algorithm: jwa.HS256,
		now:       now,
	}, nil
}

func unauthorized(err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
}

// Parse verifies token and returns the identity it carries.
func (v *Verifier) Parse(token string) (Identity, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Identity{}, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := tokenAlgorithm(trimmed)
	if err != nil {
		return Identity{}, unauthorized(err)
	}
	if algorithm != v.algorithm {
		return Identity{}, unauthorized(fmt.Errorf("auth: unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(v.algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return Identity{}, unauthorized(err)
	}
	if err := v.validate(parsed); err != nil {
		return Identity{}, unauthorized(err)
	}
	if parsed.Subject() == "" {
		return Identity{}, unauthorized(errors.New("auth: token has no subject"))
	}
	return Identity{UserID: parsed.Subject(), Role: roleOf(parsed)}, nil
}

func (v *Verifier) validate(tok jwt.Token) error {
	options := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(v.now)),
	}
	if v.skew > 0 {
		options = append(options, jwt.WithAcceptableSkew(v.skew))
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}
	return jwt.Validate(tok, options...)
}

// roleOf reads the role claim, accepting the boolean isAdmin flag some
// identity providers emit instead.
func roleOf(tok jwt.Token) string {
	if raw, ok := tok.Get(roleClaim); ok {
		if role, ok := raw.(string); ok {
			return strings.ToLower(strings.TrimSpace(role))
		}
	}
	if raw, ok := tok.Get("isAdmin"); ok {
		if admin, ok := raw.(bool); ok && admin {
			return common.RoleAdmin
		}
	}
	return ""
}

func tokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return "", fmt.Errorf("auth: token carries %d signatures", len(signatures))
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil || headers.Algorithm() == "" {
		return "", errors.New("auth: token missing algorithm")
	}
	return headers.Algorithm(), nil
}

// Issue signs a token for userID. ttl defaults to one hour.
func (v *Verifier) Issue(userID, role string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := v.now()
	builder := jwt.NewBuilder().
		Subject(userID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if v.issuer != "" {
		builder = builder.Issuer(v.issuer)
	}
	if v.audience != "" {
		builder = builder.Audience([]string{v.audience})
	}
	if role != "" {
		builder = builder.Claim(roleClaim, role)
	}
	tok, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("auth: build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(v.algorithm, v.secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return string(signed), nil
}
