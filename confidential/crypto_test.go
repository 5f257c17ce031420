package confidential

import (
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestGenerateRSAKeyPair(t *testing.T) {
	privateKey, err := GenerateRSAKeyPair()
	assert.NoError(t, err)
	assert.NotNil(t, privateKey)
	assert.Equal(t, 2048, privateKey.N.BitLen())
}

func TestHybridRoundTrip(t *testing.T) {
	privateKey, err := GenerateRSAKeyPair()
	assert.NoError(t, err)

	for _, hashAlg := range []HashAlgorithm{HashAlgorithmSHA256, HashAlgorithmSHA1} {
		t.Run(string(hashAlg), func(t *testing.T) {
			for _, plaintext := range [][]byte{[]byte(`{"amount":120}`), {}, make([]byte, 4096)} {
				sealed, err := EncryptHybrid(plaintext, &privateKey.PublicKey, hashAlg)
				assert.NoError(t, err)

				opened, err := DecryptHybrid(sealed.EncryptedAESKey, sealed.EncryptedPayload, sealed.Nonce, privateKey, hashAlg)
				assert.NoError(t, err)
				check.Equal(t, string(plaintext), string(opened))
			}
		})
	}
}

func TestDecryptHybrid_InvalidInputs(t *testing.T) {
	privateKey, _ := GenerateRSAKeyPair()
	sealed, err := EncryptHybrid([]byte("x"), &privateKey.PublicKey, HashAlgorithmSHA256)
	assert.NoError(t, err)

	tests := []struct {
		name             string
		encryptedAESKey  string
		encryptedPayload string
		nonce            string
		hashAlg          HashAlgorithm
	}{
		{name: "invalid base64 key", encryptedAESKey: "!!", encryptedPayload: sealed.EncryptedPayload, nonce: sealed.Nonce, hashAlg: HashAlgorithmSHA256},
		{name: "invalid base64 payload", encryptedAESKey: sealed.EncryptedAESKey, encryptedPayload: "!!", nonce: sealed.Nonce, hashAlg: HashAlgorithmSHA256},
		{name: "short nonce", encryptedAESKey: sealed.EncryptedAESKey, encryptedPayload: sealed.EncryptedPayload, nonce: "dGVzdA==", hashAlg: HashAlgorithmSHA256},
		{name: "hash mismatch", encryptedAESKey: sealed.EncryptedAESKey, encryptedPayload: sealed.EncryptedPayload, nonce: sealed.Nonce, hashAlg: HashAlgorithmSHA1},
		{name: "unsupported hash", encryptedAESKey: sealed.EncryptedAESKey, encryptedPayload: sealed.EncryptedPayload, nonce: sealed.Nonce, hashAlg: "MD5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptHybrid(tt.encryptedAESKey, tt.encryptedPayload, tt.nonce, privateKey, tt.hashAlg)
			check.Error(t, err)
		})
	}
}

func TestKeyManager_PEM(t *testing.T) {
	km, err := NewKeyManager()
	assert.NoError(t, err)

	for name, get := range map[string]func() (string, error){
		"input":  km.PublicKeyPEM,
		"reveal": km.RevealKeyPEM,
	} {
		t.Run(name, func(t *testing.T) {
			pemStr, err := get()
			assert.NoError(t, err)
			check.True(t, strings.HasPrefix(pemStr, "-----BEGIN PUBLIC KEY-----"))

			block, _ := pem.Decode([]byte(pemStr))
			assert.NotNil(t, block)
			_, err = x509.ParsePKIXPublicKey(block.Bytes)
			check.NoError(t, err)

			_, err = ParsePublicKeyPEM(pemStr)
			check.NoError(t, err)
		})
	}

	_, err = ParsePublicKeyPEM("garbage")
	check.Error(t, err)
}
