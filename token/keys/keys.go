package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JWT algorithms (string values used in headers)
const (
	HS256 = "HS256"
	RS256 = "RS256"
)

// KeyPair represents an RSA key pair used for RS256 credentials. PrivateKey
// is nil on services that only verify.
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
	Algorithm  string
}

// GenerateRSAKeyPair generates a new RSA key pair for RS256 signing
func GenerateRSAKeyPair(bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	return newKeyPair(privateKey, &privateKey.PublicKey)
}

// GenerateHMACSecret returns a random hex encoded 256-bit secret.
func GenerateHMACSecret() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("failed to generate HMAC secret: %w", err)
	}
	return hex.EncodeToString(secret), nil
}

// GetSigningMethod returns the JWT signing method for this key pair
func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodRS256
}

// ExportPublicKeyPEM exports the public key as PEM
func (kp *KeyPair) ExportPublicKeyPEM() (string, error) {
	pubKeyBytes, err := x509.MarshalPKIXPublicKey(kp.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pubKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubKeyBytes,
	})

	return string(pubKeyPEM), nil
}

// ExportPrivateKeyPEM exports the RSA private key as PEM
func (kp *KeyPair) ExportPrivateKeyPEM() (string, error) {
	rsaKey, ok := kp.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return "", fmt.Errorf("private key is not RSA")
	}

	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(rsaKey),
	})

	return string(privateKeyPEM), nil
}

// LoadRSAPrivateKeyFromPEM loads an RSA private key in PKCS#1 or PKCS#8 form.
func LoadRSAPrivateKeyFromPEM(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if privKey, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return privKey, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA private key: %w", err)
	}
	privKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return privKey, nil
}

// LoadRSAPublicKeyFromPEM loads a PKIX encoded RSA public key.
func LoadRSAPublicKeyFromPEM(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	pubKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return pubKey, nil
}

// LoadKeyPairFromPEM loads a key pair from PEM-encoded strings. Either may be
// empty: with only a private key the public half is derived, with only a
// public key the pair can verify but not sign.
func LoadKeyPairFromPEM(privateKeyPEM, publicKeyPEM string) (*KeyPair, error) {
	if privateKeyPEM == "" && publicKeyPEM == "" {
		return nil, errors.New("no key material provided")
	}

	if privateKeyPEM != "" {
		privKey, err := LoadRSAPrivateKeyFromPEM(privateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to load RSA private key: %w", err)
		}
		return newKeyPair(privKey, &privKey.PublicKey)
	}

	pubKey, err := LoadRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load RSA public key: %w", err)
	}
	return newKeyPair(nil, pubKey)
}

// newKeyPair derives the key ID from the public key so that signing and
// verifying services agree on it without extra configuration.
func newKeyPair(privKey *rsa.PrivateKey, pubKey *rsa.PublicKey) (*KeyPair, error) {
	der, err := x509.MarshalPKIXPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)

	kp := &KeyPair{
		KeyID:     hex.EncodeToString(sum[:8]),
		PublicKey: pubKey,
		Algorithm: RS256,
	}
	if privKey != nil {
		kp.PrivateKey = privKey
	}
	return kp, nil
}
