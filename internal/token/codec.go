package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by Parse for every rejection cause: malformed
// structure, signature mismatch, or expiry. Callers get no finer detail.
var ErrInvalidToken = errors.New("invalid token")

// reserved claim names always set by Issue; caller-supplied custom claims
// cannot override them.
var reservedClaims = map[string]bool{
	"sub":      true,
	"username": true,
	"iat":      true,
	"exp":      true,
}

// Claims holds the validated payload of a token.
type Claims struct {
	Subject   string
	Username  string
	IssuedAt  int64 // epoch seconds
	ExpiresAt int64 // epoch seconds
	Custom    map[string]any
}

// Codec signs and parses compact HMAC-SHA256 tokens
// (three base64url segments: header.payload.signature).
type Codec struct {
	secret []byte
	ttl    time.Duration
	parser *jwt.Parser

	now func() time.Time // injectable for tests
}

// NewCodec creates a codec with the given signing secret and token lifetime.
// A zero ttl defaults to 24 hours.
func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		now:    time.Now,
	}
}

// Issue creates a signed token for the given subject with the codec's
// default lifetime.
func (c *Codec) Issue(subject, username string, custom map[string]any) (string, error) {
	return c.IssueWithTTL(subject, username, custom, c.ttl)
}

// IssueWithTTL creates a signed token with an explicit lifetime.
func (c *Codec) IssueWithTTL(subject, username string, custom map[string]any, ttl time.Duration) (string, error) {
	now := c.now()

	claims := jwt.MapClaims{
		"sub":      subject,
		"username": username,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
	}
	for k, v := range custom {
		if reservedClaims[k] {
			continue
		}
		claims[k] = v
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// TTL returns the codec's default token lifetime.
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Parse validates a token and returns its claims. Any failure (wrong segment
// count, signature mismatch, expired token) yields ErrInvalidToken.
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	parsed, err := c.parser.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidToken
	}
	if !exp.After(c.now()) {
		return nil, ErrInvalidToken
	}

	claims := &Claims{
		ExpiresAt: exp.Unix(),
		Custom:    make(map[string]any),
	}
	if sub, _ := mc.GetSubject(); sub != "" {
		claims.Subject = sub
	}
	if username, ok := mc["username"].(string); ok {
		claims.Username = username
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Unix()
	}
	for k, v := range mc {
		if reservedClaims[k] {
			continue
		}
		claims.Custom[k] = v
	}

	return claims, nil
}

// Validate reports whether a token parses successfully.
func (c *Codec) Validate(tokenString string) bool {
	_, err := c.Parse(tokenString)
	return err == nil
}
