package confidential

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
)

// EncryptedInput is the client-side encrypted value a bidder submits. It is
// the byte payload handed to Ingest, JSON encoded.
type EncryptedInput struct {
	AESKeyEncrypted  string        `json:"aes_key_encrypted"`
	EncryptedPayload string        `json:"encrypted_payload"`
	Nonce            string        `json:"nonce"`
	HashAlgorithm    HashAlgorithm `json:"hash_algorithm,omitempty"` // "SHA-256" (default) or "SHA-1"
}

// inputPayload is the plaintext sealed inside an EncryptedInput.
type inputPayload struct {
	Amount *uint64 `json:"amount"`
}

// EncryptAmount seals amount to the engine's input key and returns the bytes
// a bidder passes as a bid payload.
func EncryptAmount(publicKey *rsa.PublicKey, amount uint64) ([]byte, error) {
	return EncryptAmountWithHash(publicKey, amount, HashAlgorithmSHA256)
}

// EncryptAmountWithHash is EncryptAmount with an explicit RSA-OAEP hash.
func EncryptAmountWithHash(publicKey *rsa.PublicKey, amount uint64, hashAlg HashAlgorithm) ([]byte, error) {
	plaintext, err := json.Marshal(inputPayload{Amount: &amount})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	sealed, err := EncryptHybrid(plaintext, publicKey, hashAlg)
	if err != nil {
		return nil, err
	}

	return json.Marshal(EncryptedInput{
		AESKeyEncrypted:  sealed.EncryptedAESKey,
		EncryptedPayload: sealed.EncryptedPayload,
		Nonce:            sealed.Nonce,
		HashAlgorithm:    hashAlg,
	})
}

// decryptInput opens an Ingest payload with the engine's private key.
func decryptInput(ciphertext []byte, privateKey *rsa.PrivateKey) (uint64, error) {
	var in EncryptedInput
	if err := json.Unmarshal(ciphertext, &in); err != nil {
		return 0, fmt.Errorf("invalid input format: %w", err)
	}

	hashAlg := in.HashAlgorithm
	if hashAlg == "" {
		hashAlg = HashAlgorithmSHA256
	}

	plaintext, err := DecryptHybrid(in.AESKeyEncrypted, in.EncryptedPayload, in.Nonce, privateKey, hashAlg)
	if err != nil {
		return 0, err
	}

	var payload inputPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return 0, fmt.Errorf("invalid payload format: %w", err)
	}
	if payload.Amount == nil {
		return 0, fmt.Errorf("invalid payload format: missing amount")
	}

	return *payload.Amount, nil
}
