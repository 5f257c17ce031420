package main

import (
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/go-kit/log"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/confidentialbid/enclaveapi"
)

func TestGenerateSecureRandomBytes(t *testing.T) {
	bytes1, err1 := generateSecureRandomBytes(32)
	bytes2, err2 := generateSecureRandomBytes(32)

	check.NoError(t, err1)
	check.NoError(t, err2)
	check.Equal(t, 32, len(bytes1))
	check.NotEqual(t, bytes1, bytes2)

	bytes8, err := generateSecureRandomBytes(8)
	check.NoError(t, err)
	check.Equal(t, 8, len(bytes8))
}

func TestGenerateNonce(t *testing.T) {
	nonce1, err := generateNonce()
	check.NoError(t, err)
	nonce2, err := generateNonce()
	check.NoError(t, err)

	check.Equal(t, 64, len(nonce1))
	check.NotEqual(t, nonce1, nonce2)
	check.True(t, regexp.MustCompile(`^[a-f0-9]{64}$`).MatchString(nonce1))
}

func TestGenerateKeyAttestation(t *testing.T) {
	_, err := GenerateKeyAttestation(nil, enclaveapi.KeyAttestationUserData{}, log.NewNopLogger())
	check.Error(t, err)

	failing := &MockEnclaveHandle{AttestFunc: func(enclave.AttestationOptions) ([]byte, error) {
		return nil, errors.New("nsm unavailable")
	}}
	_, err = GenerateKeyAttestation(failing, enclaveapi.KeyAttestationUserData{}, log.NewNopLogger())
	check.Error(t, err)
}

func TestGenerateKeyAttestationWithMock(t *testing.T) {
	userData := enclaveapi.KeyAttestationUserData{
		KeyAlgorithm:    "RSA-2048",
		PublicKey:       "-----BEGIN PUBLIC KEY-----\nrsa\n-----END PUBLIC KEY-----\n",
		RevealAlgorithm: "ES256",
		RevealKey:       "-----BEGIN PUBLIC KEY-----\nec\n-----END PUBLIC KEY-----\n",
	}

	attestation, err := GenerateKeyAttestation(CreateMockEnclave(t), userData, log.NewNopLogger())
	assert.NoError(t, err)

	doc, raw, err := attestation.ParseAttestationDoc()
	assert.NoError(t, err)
	check.Equal(t, "test-enclave-12345", doc.ModuleID)
	check.Equal(t, 64, len(doc.Nonce))
	check.NotEqual(t, "", doc.PCRs.ImageFileHash)

	var parsed enclaveapi.KeyAttestationUserData
	assert.NoError(t, json.Unmarshal(raw, &parsed))
	check.Equal(t, userData, parsed)
}

func TestNitroKeyAttester(t *testing.T) {
	var seen []byte
	attester := &nitroKeyAttester{
		attester: &MockEnclaveHandle{AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			seen = options.UserData
			return CreateMockEnclave(t).Attest(options)
		}},
		logger: log.NewNopLogger(),
	}

	_, err := attester.AttestKeys(enclaveapi.KeyAttestationUserData{KeyAlgorithm: "RSA-2048"})
	assert.NoError(t, err)
	check.True(t, len(seen) > 0)
}
