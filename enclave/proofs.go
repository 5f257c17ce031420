package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/cloudx-io/confidentialbid/enclaveapi"
)

// EnclaveAttester is the subset of the NSM handle used to produce
// attestations.
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// nitroKeyAttester attests key responses through the Nitro secure module.
type nitroKeyAttester struct {
	attester EnclaveAttester
	logger   log.Logger
}

var _ enclaveapi.KeyAttester = (*nitroKeyAttester)(nil)

func (a *nitroKeyAttester) AttestKeys(userData enclaveapi.KeyAttestationUserData) (enclaveapi.AttestationCOSE, error) {
	return GenerateKeyAttestation(a.attester, userData, a.logger)
}

// generateSecureRandomBytes reads from crypto/rand, which inside an enclave
// is fed by the NSM-seeded kernel entropy pool.
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// GenerateKeyAttestation binds the enclave's public keys to its image
// measurements by embedding them as attestation user data.
func GenerateKeyAttestation(attester EnclaveAttester, userData enclaveapi.KeyAttestationUserData, logger log.Logger) (enclaveapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("marshal key user data: %w", err)
	}

	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("attestation nonce: %w", err)
	}

	attestation, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(nonce),
	})
	if err != nil {
		level.Error(logger).Log("msg", "NSM key attestation failed", "err", err)
		return nil, fmt.Errorf("NSM key attestation failed: %w", err)
	}

	level.Info(logger).Log("msg", "key attestation generated", "bytes", len(attestation))

	return enclaveapi.AttestationCOSE(attestation), nil
}
