package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/cube-auth/token/keys"
)

// DefaultTTL is the credential lifetime used when Issue is given none.
const DefaultTTL = 24 * time.Hour

// Credential is an issued bearer credential. Raw is the compact signed form
// that travels in the Authorization header; the other fields mirror its claims.
type Credential struct {
	Raw       string    `json:"credential"`
	Subject   string    `json:"subject"`
	ID        string    `json:"-"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Codec issues and verifies credentials with one process-wide signer. It is
// immutable after construction and safe for concurrent use.
type Codec struct {
	signer  keys.Signer
	issuer  string
	ttl     time.Duration
	leeway  time.Duration
	nowFunc func() time.Time
	parser  *jwtlib.Parser
}

type CodecOption func(*Codec)

// WithNowFunc replaces the clock used for both issuance and expiry checks.
func WithNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

func WithDefaultTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		c.ttl = ttl
	}
}

// WithLeeway tolerates clock skew when checking expiry. Zero by default.
func WithLeeway(leeway time.Duration) CodecOption {
	return func(c *Codec) {
		c.leeway = leeway
	}
}

func NewCodec(signer keys.Signer, options ...CodecOption) (*Codec, error) {
	if signer == nil {
		return nil, errors.New("[NewCodec] signer is required")
	}

	c := &Codec{
		signer:  signer,
		ttl:     DefaultTTL,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}

	c.parser = jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{signer.GetSigningMethod().Alg()}),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(c.nowFunc),
		jwtlib.WithLeeway(c.leeway),
	)
	return c, nil
}

// Issue mints a credential for subject valid for ttl (the codec default when
// ttl <= 0). It fails only when the signer cannot sign.
func (c *Codec) Issue(subject string, ttl time.Duration) (Credential, error) {
	if subject == "" {
		return Credential{}, ErrEmptySubject
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	now := c.nowFunc().Truncate(time.Second)
	claims := jwtlib.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject,
		IssuedAt:  jwtlib.NewNumericDate(now),
		ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		ID:        uuid.New().String(),
	}

	raw, err := c.signer.Sign(claims)
	if err != nil {
		return Credential{}, fmt.Errorf("[Codec.Issue] %w", err)
	}

	return Credential{
		Raw:       raw,
		Subject:   subject,
		ID:        claims.ID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Verify checks raw's structure, signature and expiry and returns its subject.
// Errors wrap ErrMalformed, ErrBadSignature or ErrExpired.
func (c *Codec) Verify(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty credential", ErrMalformed)
	}

	claims := &jwtlib.RegisteredClaims{}
	if _, err := c.parser.ParseWithClaims(raw, claims, c.signer.GetVerificationKey); err != nil {
		return "", classify(err)
	}

	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return claims.Subject, nil
}
