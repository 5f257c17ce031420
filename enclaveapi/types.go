// Package enclaveapi defines the wire protocol between the auction service
// and a confidential compute enclave, plus the attestation documents the
// enclave produces.
package enclaveapi

import (
	"errors"
	"time"

	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/core"
)

// Message types.
const (
	TypePing        = "ping"
	TypePong        = "pong"
	TypeKeyRequest  = "key_request"
	TypeKeyResponse = "key_response"
	TypeCompute     = "compute"
	TypeDecrypt     = "decrypt"
	TypeResult      = "result"
	TypeError       = "error"
)

// Error codes carried in error responses, so the client can restore the
// engine's sentinel errors.
const (
	CodeUnknownHandle = "unknown_handle"
	CodeMissingSigner = "missing_signer"
	CodeNotAllowed    = "not_allowed"
	CodeTypeMismatch  = "type_mismatch"
	CodeInvalidInput  = "invalid_input"
	CodeBadRequest    = "bad_request"
	CodeInternal      = "internal"
)

var codeErrors = map[string]error{
	CodeUnknownHandle: confidential.ErrUnknownHandle,
	CodeMissingSigner: confidential.ErrMissingSigner,
	CodeNotAllowed:    confidential.ErrNotAllowed,
	CodeTypeMismatch:  confidential.ErrTypeMismatch,
	CodeInvalidInput:  core.ErrInvalidBidAmount,
}

func errorCode(err error) string {
	for code, target := range codeErrors {
		if errors.Is(err, target) {
			return code
		}
	}
	return CodeInternal
}

// Request is a single call to the enclave. Which fields are meaningful
// depends on Type and, for compute requests, Op.
type Request struct {
	Type string `json:"type"`
	Op   string `json:"op,omitempty"`

	Signer     core.Address    `json:"signer,omitempty"`
	Plaintext  uint64          `json:"plaintext,omitempty"`
	Ciphertext []byte          `json:"ciphertext,omitempty"`
	A          core.Handle     `json:"a"`
	B          core.Handle     `json:"b"`
	Cond       core.BoolHandle `json:"cond"`
	CondA      core.BoolHandle `json:"cond_a"`
	CondB      core.BoolHandle `json:"cond_b"`
	Grantee    core.Address    `json:"grantee,omitempty"`

	// Requester and Target are used by decrypt requests.
	Requester core.Address `json:"requester,omitempty"`
	Target    core.Handle  `json:"target"`
}

// Response answers a Request. Exactly one of the result fields is set on
// success; Code and Message are set on error.
type Response struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`

	Handle     core.Handle                  `json:"handle"`
	BoolHandle core.BoolHandle              `json:"bool_handle"`
	Reveal     *confidential.AttestedReveal `json:"reveal,omitempty"`
	Keys       *KeyResponse                 `json:"keys,omitempty"`

	ProcessingTime float64 `json:"processing_time_ms,omitempty"`
}

// Err converts an error response back into an error, restoring the engine's
// sentinels where the code names one.
func (r *Response) Err() error {
	if r.Type != TypeError {
		return nil
	}
	if target, ok := codeErrors[r.Code]; ok {
		return &RemoteError{Code: r.Code, Message: r.Message, target: target}
	}
	return &RemoteError{Code: r.Code, Message: r.Message}
}

// RemoteError is an error reported by the enclave.
type RemoteError struct {
	Code    string
	Message string
	target  error
}

func (e *RemoteError) Error() string { return "enclave: " + e.Message }
func (e *RemoteError) Unwrap() error { return e.target }

// KeyResponse carries the enclave's public keys and, when running inside a
// Nitro enclave, an attestation binding them to the enclave image.
type KeyResponse struct {
	PublicKey             string                `json:"public_key"`
	RevealKey             string                `json:"reveal_key"`
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64,omitempty"`
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc holds the fields common to every Nitro attestation.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"`
	CABundle        []string  `json:"cabundle"`
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// KeyAttestationDoc is an attestation over the enclave's public keys.
type KeyAttestationDoc struct {
	AttestationDoc
	UserData *KeyAttestationUserData `json:"user_data"`
}

// KeyAttestationUserData is embedded as user data in a key attestation.
type KeyAttestationUserData struct {
	KeyAlgorithm    string `json:"key_algorithm"`
	PublicKey       string `json:"public_key"`
	RevealAlgorithm string `json:"reveal_algorithm"`
	RevealKey       string `json:"reveal_key"`
}
