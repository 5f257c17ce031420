package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudx-io/confidentialbid/enclaveapi"
)

// ValidateKeyAttestation checks that a key response is attested by a known
// enclave image and that both of its keys are the attested ones.
//
// The returned error is non-nil only when validation could not be performed;
// a completed but failed validation is reported by result.IsValid.
func ValidateKeyAttestation(keys enclaveapi.KeyResponse, knownPCRs []PCRSet) (*KeyValidationResult, error) {
	if keys.AttestationCOSEBase64 == "" {
		return nil, fmt.Errorf("key response carries no attestation")
	}

	coseBytes, err := keys.AttestationCOSEBase64.Decode()
	if err != nil {
		return nil, err
	}

	base, userDataBytes, err := validateCommonAttestation(coseBytes, knownPCRs)
	if err != nil {
		return nil, err
	}

	var userData enclaveapi.KeyAttestationUserData
	if len(userDataBytes) > 0 {
		if err := json.Unmarshal(userDataBytes, &userData); err != nil {
			return nil, fmt.Errorf("parse user data: %w", err)
		}
	}

	result := &KeyValidationResult{BaseValidationResult: *base}
	result.PublicKeyMatch = matchKey(&result.BaseValidationResult, "Public key", keys.PublicKey, userData.PublicKey)
	result.RevealKeyMatch = matchKey(&result.BaseValidationResult, "Reveal key", keys.RevealKey, userData.RevealKey)

	return result, nil
}

// matchKey compares PEM keys, ignoring surrounding whitespace.
func matchKey(result *BaseValidationResult, name, provided, attested string) bool {
	switch {
	case strings.TrimSpace(attested) == "":
		result.ValidationDetails = append(result.ValidationDetails, name+" missing from attestation")
		return false
	case strings.TrimSpace(provided) != strings.TrimSpace(attested):
		result.ValidationDetails = append(result.ValidationDetails, name+" mismatch: provided key does not match attested key")
		return false
	default:
		result.ValidationDetails = append(result.ValidationDetails, name+" matches attestation")
		return true
	}
}
