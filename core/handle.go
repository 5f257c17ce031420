package core

import (
	"fmt"

	"github.com/google/uuid"
)

// Handle is an opaque reference to an encrypted integer held by the
// confidential compute service. It carries no plaintext and deliberately has
// no ordering or arithmetic: every comparison goes through ConfidentialCompute.
//
// The zero Handle denotes an encrypted zero.
type Handle struct {
	id uuid.UUID
}

// BoolHandle is an opaque reference to an encrypted boolean.
type BoolHandle struct {
	id uuid.UUID
}

// NewHandle wraps an identifier issued by a ConfidentialCompute implementation.
func NewHandle(id uuid.UUID) Handle { return Handle{id: id} }

// NewBoolHandle wraps an identifier issued by a ConfidentialCompute implementation.
func NewBoolHandle(id uuid.UUID) BoolHandle { return BoolHandle{id: id} }

// ParseHandle parses the textual form produced by Handle.String.
func ParseHandle(s string) (Handle, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Handle{}, fmt.Errorf("parse handle %q: %w", s, err)
	}
	return Handle{id: id}, nil
}

// ParseBoolHandle parses the textual form produced by BoolHandle.String.
func ParseBoolHandle(s string) (BoolHandle, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return BoolHandle{}, fmt.Errorf("parse bool handle %q: %w", s, err)
	}
	return BoolHandle{id: id}, nil
}

func (h Handle) ID() uuid.UUID      { return h.id }
func (h Handle) IsZero() bool       { return h.id == uuid.Nil }
func (h Handle) String() string     { return h.id.String() }
func (h BoolHandle) ID() uuid.UUID  { return h.id }
func (h BoolHandle) IsZero() bool   { return h.id == uuid.Nil }
func (h BoolHandle) String() string { return h.id.String() }

// Equal reports whether h and o reference the same ciphertext. It says
// nothing about the encrypted values.
func (h Handle) Equal(o Handle) bool         { return h.id == o.id }
func (h BoolHandle) Equal(o BoolHandle) bool { return h.id == o.id }

// Handle returns the untyped reference, used where a collaborator call accepts
// either kind (e.g. GrantDecrypt).
func (h BoolHandle) Handle() Handle { return Handle{id: h.id} }

func (h Handle) MarshalText() ([]byte, error) { return h.id.MarshalText() }
func (h *Handle) UnmarshalText(b []byte) error {
	return h.id.UnmarshalText(b)
}

func (h Handle) MarshalBinary() ([]byte, error) { return h.id.MarshalBinary() }
func (h *Handle) UnmarshalBinary(b []byte) error {
	return h.id.UnmarshalBinary(b)
}

func (h BoolHandle) MarshalText() ([]byte, error) { return h.id.MarshalText() }
func (h *BoolHandle) UnmarshalText(b []byte) error {
	return h.id.UnmarshalText(b)
}

func (h BoolHandle) MarshalBinary() ([]byte, error) { return h.id.MarshalBinary() }
func (h *BoolHandle) UnmarshalBinary(b []byte) error {
	return h.id.UnmarshalBinary(b)
}
