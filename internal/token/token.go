// Package token issues and verifies the signed, stateless identity tokens
// used by every protected call. Signing is asymmetric (RS256): only the
// issuing side holds the private key, so any number of verifiers including
// the trainer-hours service can validate tokens with the public key alone.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/peakfit/gymcore/internal/ids"
)

var (
	// ErrInvalidToken indicates a malformed token or a bad signature.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrTokenExpired indicates a well-signed token past its expiry.
	// Distinguished from ErrInvalidToken because expiry is routine while a
	// bad signature is suspicious.
	ErrTokenExpired = errors.New("token: token expired")
	// ErrKeyUnavailable indicates signing material is not configured.
	ErrKeyUnavailable = errors.New("token: signing key unavailable")
)

const defaultTTL = 15 * time.Minute

// Claims are the verified contents of an identity token.
type Claims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and verifies identity tokens. A Service built by NewVerifier
// holds only the public key and can verify but not issue.
type Service struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	ttl        time.Duration
	now        func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithTTL configures token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service able to both issue and verify tokens.
func NewService(privatePEM, publicPEM string, opts ...Option) (*Service, error) {
	if strings.TrimSpace(privatePEM) == "" || strings.TrimSpace(publicPEM) == "" {
		return nil, ErrKeyUnavailable
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(privatePEM))
	if err != nil {
		return nil, fmt.Errorf("%w: parse private key: %v", ErrKeyUnavailable, err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicPEM))
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", ErrKeyUnavailable, err)
	}
	svc := newService(opts...)
	svc.privateKey = priv
	svc.publicKey = pub
	return svc, nil
}

// NewVerifier constructs a verify-only Service from the public key.
func NewVerifier(publicPEM string, opts ...Option) (*Service, error) {
	if strings.TrimSpace(publicPEM) == "" {
		return nil, ErrKeyUnavailable
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicPEM))
	if err != nil {
		return nil, fmt.Errorf("%w: parse public key: %v", ErrKeyUnavailable, err)
	}
	svc := newService(opts...)
	svc.publicKey = pub
	return svc, nil
}

func newService(opts ...Option) *Service {
	svc := &Service{
		issuer: "gymcore",
		ttl:    defaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Issue signs a token for the subject with exactly one role claim.
func (s *Service) Issue(subject, role string) (string, time.Time, error) {
	if s.privateKey == nil {
		return "", time.Time{}, ErrKeyUnavailable
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject is required")
	}
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return "", time.Time{}, errors.New("token: role is required")
	}

	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := jwtClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        ids.New(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, exp, nil
}

// Verify checks the signature against the public key and the expiry against
// the clock, and returns the claims.
func (s *Service) Verify(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || s.publicKey == nil {
		return Claims{}, ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now().UTC() }),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(raw, &jwtClaims{}, func(t *jwt.Token) (any, error) {
		return s.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.Role) == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{
		Subject:   claims.Subject,
		Role:      strings.ToLower(claims.Role),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ExpiryOf reads the expiry claim without verifying the signature. Used only
// to size revocation entries at logout; never trust it for authorization.
func (s *Service) ExpiryOf(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidToken
	}
	var claims jwtClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrInvalidToken
	}
	return claims.ExpiresAt.Time, nil
}
