package confidential

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/confidentialbid/core"
)

// Reveal is the plaintext of a handle disclosed to an authorized requester.
type Reveal struct {
	Handle    string       `cbor:"handle" json:"handle"`
	Requester core.Address `cbor:"requester" json:"requester"`
	Value     uint64       `cbor:"value" json:"value"`
	IsBool    bool         `cbor:"is_bool" json:"is_bool"`
	IssuedAt  int64        `cbor:"issued_at" json:"issued_at"` // unix millis
}

// AttestedReveal is a Reveal plus its COSE_Sign1 (ES256) encoding, which a
// third party can check against the engine's reveal key.
type AttestedReveal struct {
	Reveal Reveal `json:"reveal"`
	COSE   []byte `json:"cose"`
}

func signReveal(r Reveal, key *ecdsa.PrivateKey) ([]byte, error) {
	payload, err := cbor.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal reveal: %w", err)
	}

	signer, err := cose.NewSigner(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmES256)
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	return msg.MarshalCBOR()
}

// VerifyReveal checks a COSE_Sign1 reveal against key and returns the
// decoded reveal.
func VerifyReveal(coseBytes []byte, key *ecdsa.PublicKey) (*Reveal, error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(coseBytes); err != nil {
		return nil, fmt.Errorf("parse COSE_Sign1: %w", err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmES256, key)
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}

	if err := msg.Verify(nil, verifier); err != nil {
		return nil, fmt.Errorf("COSE signature verification failed: %w", err)
	}

	var r Reveal
	if err := cbor.Unmarshal(msg.Payload, &r); err != nil {
		return nil, fmt.Errorf("parse reveal payload: %w", err)
	}

	return &r, nil
}
