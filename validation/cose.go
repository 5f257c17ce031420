package validation

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/cloudx-io/confidentialbid/enclaveapi"
	"github.com/cloudx-io/confidentialbid/enclaveapi/parsing"
)

// VerifyCOSESignature checks the ES384 signature of an untagged Nitro
// COSE_Sign1 attestation against the key in its signing certificate.
func VerifyCOSESignature(coseBytes enclaveapi.AttestationCOSE, certB64 string) error {
	certDER, err := base64.StdEncoding.DecodeString(certB64)
	if err != nil {
		return fmt.Errorf("decode certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("parse certificate: %w", err)
	}

	ecdsaKey, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not ECDSA")
	}

	msg, err := parsing.ParseCOSESign1(coseBytes)
	if err != nil {
		return err
	}

	sigStructure, err := msg.SigStructure()
	if err != nil {
		return err
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES384, ecdsaKey)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	if err := verifier.Verify(sigStructure, msg.Signature); err != nil {
		return fmt.Errorf("COSE signature verification failed: %w", err)
	}

	return nil
}
