package enclaveapi

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cloudx-io/confidentialbid/enclaveapi/parsing"
)

// AttestationCOSE is a raw COSE_Sign1 attestation as returned by the Nitro
// secure module.
type AttestationCOSE []byte

// AttestationCOSEBase64 is standard base64 of an AttestationCOSE, the form
// used inside JSON documents.
type AttestationCOSEBase64 string

// AttestationCOSEURLBase64 is unpadded URL-safe base64 of an
// AttestationCOSE, the form used in query strings.
type AttestationCOSEURLBase64 string

func (a AttestationCOSE) EncodeBase64() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(a))
}

func (a AttestationCOSE) EncodeURLSafe() AttestationCOSEURLBase64 {
	return AttestationCOSEURLBase64(base64.RawURLEncoding.EncodeToString(a))
}

func (a AttestationCOSEBase64) String() string { return string(a) }

func (a AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	b, err := base64.StdEncoding.DecodeString(string(a))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return b, nil
}

func (a AttestationCOSEURLBase64) String() string { return string(a) }

// Decode accepts both padded and unpadded input.
func (a AttestationCOSEURLBase64) Decode() (AttestationCOSE, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(string(a), "="))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64url: %w", err)
	}
	return b, nil
}

// ParseAttestationDoc decodes the attestation payload without verifying it.
// It returns the common document fields and the raw user data.
func (a AttestationCOSE) ParseAttestationDoc() (AttestationDoc, []byte, error) {
	raw, err := parsing.ParseNitroDocument(a)
	if err != nil {
		return AttestationDoc{}, nil, err
	}

	doc := AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs:            pcrsFromRaw(raw.PCRs),
		Certificate:     base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:        parsing.EncodeCertificateBundle(raw.CABundle),
		PublicKey:       base64.StdEncoding.EncodeToString(raw.PublicKey),
		Nonce:           string(raw.Nonce),
	}

	return doc, raw.UserData, nil
}

func pcrsFromRaw(pcrs map[uint64][]byte) PCRs {
	return PCRs{
		ImageFileHash:   parsing.FormatPCR(pcrs[0]),
		KernelHash:      parsing.FormatPCR(pcrs[1]),
		ApplicationHash: parsing.FormatPCR(pcrs[2]),
		IAMRoleHash:     parsing.FormatPCR(pcrs[3]),
		InstanceIDHash:  parsing.FormatPCR(pcrs[4]),
		SigningCertHash: parsing.FormatPCR(pcrs[8]),
	}
}
