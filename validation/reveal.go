package validation

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/core"
)

// ValidateReveal checks a signed reveal against the enclave's reveal key,
// and that it was issued to requester for handle. Either expectation may be
// left empty to skip it.
func ValidateReveal(coseBytes []byte, revealKeyPEM string, requester core.Address, handle string) (*RevealValidationResult, error) {
	key, err := confidential.ParsePublicKeyPEM(revealKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse reveal key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("reveal key is %T, want ECDSA", key)
	}

	result := &RevealValidationResult{}
	note := func(format string, args ...any) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf(format, args...))
	}

	reveal, err := confidential.VerifyReveal(coseBytes, ecKey)
	if err != nil {
		note("%v", err)
		return result, nil
	}
	result.SignatureValid = true
	result.Reveal = reveal
	note("Reveal signature verified")

	result.RequesterMatch = requester == "" || reveal.Requester == requester
	if !result.RequesterMatch {
		note("Reveal issued to %s, not %s", reveal.Requester, requester)
	}

	result.HandleMatch = handle == "" || reveal.Handle == handle
	if !result.HandleMatch {
		note("Reveal is for handle %s, not %s", reveal.Handle, handle)
	}

	return result, nil
}
