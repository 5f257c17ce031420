// Package parsing decodes the CBOR structures produced by the Nitro secure
// module.
package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// COSESign1 is an untagged COSE_Sign1 array:
// [protected, unprotected, payload, signature].
type COSESign1 struct {
	Protected   []byte
	Unprotected map[any]any
	Payload     []byte
	Signature   []byte
}

// ParseCOSESign1 splits a COSE_Sign1 array into its parts.
func ParseCOSESign1(coseBytes []byte) (*COSESign1, error) {
	var coseArray []any
	if err := cbor.Unmarshal(coseBytes, &coseArray); err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}

	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	var (
		msg COSESign1
		ok  bool
	)
	if msg.Protected, ok = coseArray[0].([]byte); !ok {
		return nil, fmt.Errorf("invalid protected headers in COSE structure")
	}
	msg.Unprotected, _ = coseArray[1].(map[any]any)
	if msg.Payload, ok = coseArray[2].([]byte); !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}
	if msg.Signature, ok = coseArray[3].([]byte); !ok {
		return nil, fmt.Errorf("invalid signature in COSE structure")
	}

	return &msg, nil
}

// ExtractCOSEPayload returns element 2 of a COSE_Sign1 array.
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	msg, err := ParseCOSESign1(coseBytes)
	if err != nil {
		return nil, err
	}
	return msg.Payload, nil
}

// SigStructure returns the bytes a COSE_Sign1 signature is computed over,
// with empty external AAD.
func (m *COSESign1) SigStructure() ([]byte, error) {
	b, err := cbor.Marshal([]any{"Signature1", m.Protected, []byte{}, m.Payload})
	if err != nil {
		return nil, fmt.Errorf("marshal Sig_structure: %w", err)
	}
	return b, nil
}
