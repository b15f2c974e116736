package keys

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/cube-auth/internal/config"
)

// MinHMACSecretLength is the shortest HS256 secret accepted, in bytes.
const MinHMACSecretLength = 32

// ErrVerifyOnly is returned by Sign when the signer was built from a public key.
var ErrVerifyOnly = errors.New("signer holds no private key")

// Signer is an interface for signing and verifying JWT tokens
type Signer interface {
	// Sign creates a signed JWT token from claims
	Sign(claims jwt.Claims) (string, error)

	// GetVerificationKey is a jwt.Keyfunc returning the key that verifies token
	GetVerificationKey(token *jwt.Token) (any, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod
}

// HMACSigner implements Signer using symmetric HMAC-SHA256
type HMACSigner struct {
	secret []byte
}

// NewHMACSigner creates a new HMAC signer with the given secret
func NewHMACSigner(secret string) (*HMACSigner, error) {
	if len(secret) < MinHMACSecretLength {
		return nil, fmt.Errorf("HMAC secret must be at least %d bytes", MinHMACSecretLength)
	}
	return &HMACSigner{
		secret: []byte(secret),
	}, nil
}

func (h *HMACSigner) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with HMAC: %w", err)
	}
	return signedToken, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// KeyPairSigner implements Signer using RSA with RS256
type KeyPairSigner struct {
	keyPair *KeyPair
}

// NewKeyPairSigner creates a new key pair signer with the given key pair
func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{
		keyPair: keyPair,
	}
}

func (a *KeyPairSigner) Sign(claims jwt.Claims) (string, error) {
	if a.keyPair.PrivateKey == nil {
		return "", ErrVerifyOnly
	}

	token := jwt.NewWithClaims(a.keyPair.GetSigningMethod(), claims)
	token.Header["kid"] = a.keyPair.KeyID

	signedToken, err := token.SignedString(a.keyPair.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token with asymmetric key: %w", err)
	}
	return signedToken, nil
}

func (a *KeyPairSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	if kid, ok := token.Header["kid"].(string); ok && kid != a.keyPair.KeyID {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}
	return a.keyPair.PublicKey, nil
}

func (a *KeyPairSigner) GetSigningMethod() jwt.SigningMethod {
	return a.keyPair.GetSigningMethod()
}

// NewSignerFromConfig builds the process-wide signer once at startup.
func NewSignerFromConfig(cfg config.SecurityConfig) (Signer, error) {
	switch cfg.GetSigningAlgorithm() {
	case HS256:
		return NewHMACSigner(cfg.GetSigningSecret())

	case RS256:
		privatePEM, err := readOptionalFile(cfg.GetSigningPrivateKeyFile())
		if err != nil {
			return nil, err
		}
		publicPEM, err := readOptionalFile(cfg.GetSigningPublicKeyFile())
		if err != nil {
			return nil, err
		}
		keyPair, err := LoadKeyPairFromPEM(privatePEM, publicPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to load RS256 key pair: %w", err)
		}
		return NewKeyPairSigner(keyPair), nil

	default:
		return nil, fmt.Errorf("unsupported signing algorithm: %s", cfg.GetSigningAlgorithm())
	}
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read key file %s: %w", path, err)
	}
	return string(b), nil
}
