package confidential

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// KeyManager holds the engine's two key pairs: an RSA key that bidders
// encrypt inputs to, and an ECDSA P-256 key that signs reveals.
type KeyManager struct {
	privateKey *rsa.PrivateKey // Keep private - sensitive!
	PublicKey  *rsa.PublicKey

	signingKey *ecdsa.PrivateKey
	RevealKey  *ecdsa.PublicKey
}

// NewKeyManager creates a new KeyManager with fresh key pairs
func NewKeyManager() (*KeyManager, error) {
	privateKey, err := GenerateRSAKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	signingKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	return &KeyManager{
		privateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		signingKey: signingKey,
		RevealKey:  &signingKey.PublicKey,
	}, nil
}

// PublicKeyPEM returns the input encryption key in PEM format
func (km *KeyManager) PublicKeyPEM() (string, error) {
	return publicKeyToPEM(km.PublicKey)
}

// RevealKeyPEM returns the reveal verification key in PEM format
func (km *KeyManager) RevealKeyPEM() (string, error) {
	return publicKeyToPEM(km.RevealKey)
}

func publicKeyToPEM(publicKey any) (string, error) {
	derBytes, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	pemBlock := &pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: derBytes,
	}

	return string(pem.EncodeToMemory(pemBlock)), nil
}

// ParsePublicKeyPEM parses a PKIX public key in PEM format.
func ParsePublicKeyPEM(s string) (any, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("no PUBLIC KEY block found")
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return key, nil
}
