package validation

import (
	"fmt"

	"github.com/cloudx-io/confidentialbid/enclaveapi"
)

// validateCommonAttestation checks PCRs, certificate chain, and signature of
// a Nitro attestation, and returns the parsed document and raw user data.
func validateCommonAttestation(coseBytes enclaveapi.AttestationCOSE, knownPCRs []PCRSet) (*BaseValidationResult, []byte, error) {
	doc, userData, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &BaseValidationResult{}
	note := func(format string, args ...any) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf(format, args...))
	}

	if ok, i := ValidatePCRs(doc.PCRs, knownPCRs); ok {
		result.PCRsValid = true
		note("PCR measurements valid (set #%d, commit %s)", i, knownPCRs[i].CommitHash)
	} else {
		note("PCR0: %s (no match)", doc.PCRs.ImageFileHash)
		note("PCR1: %s (no match)", doc.PCRs.KernelHash)
		note("PCR2: %s (no match)", doc.PCRs.ApplicationHash)
	}

	switch {
	case doc.Certificate == "":
		note("Missing certificate")
	case len(doc.CABundle) == 0:
		note("Missing CA bundle")
	default:
		if err := ValidateCertificateChain(doc.Certificate, doc.CABundle, doc.Timestamp); err != nil {
			note("Certificate chain validation failed: %v", err)
		} else {
			result.CertificateValid = true
			note("Certificate chain verified")
		}
	}

	if err := VerifyCOSESignature(coseBytes, doc.Certificate); err != nil {
		note("COSE signature verification failed: %v", err)
	} else {
		result.SignatureValid = true
		note("COSE signature verified")
	}

	return result, userData, nil
}
