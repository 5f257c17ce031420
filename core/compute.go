package core

import (
	"context"
)

// ConfidentialCompute is the capability contract of the confidential
// arithmetic service. Every call is made on behalf of a signer, may be metered
// by the service, and can fail; callers abort the enclosing operation on any
// error.
//
// Implementations must treat the zero Handle as an encrypted zero.
type ConfidentialCompute interface {
	// Encrypt turns a plaintext into a handle (trivial encryption).
	Encrypt(ctx context.Context, signer Address, plaintext uint64) (Handle, error)

	// Ingest registers a client-side encrypted input and returns its handle.
	Ingest(ctx context.Context, signer Address, ciphertext []byte) (Handle, error)

	CompareGT(ctx context.Context, signer Address, a, b Handle) (BoolHandle, error)
	CompareGE(ctx context.Context, signer Address, a, b Handle) (BoolHandle, error)
	CompareEQ(ctx context.Context, signer Address, a, b Handle) (BoolHandle, error)

	// Select returns a handle to a if cond is true and to b otherwise,
	// without revealing which.
	Select(ctx context.Context, signer Address, cond BoolHandle, a, b Handle) (Handle, error)

	And(ctx context.Context, signer Address, a, b BoolHandle) (BoolHandle, error)

	// GrantDecrypt gives grantee standing permission to decrypt h.
	GrantDecrypt(ctx context.Context, signer Address, h Handle, grantee Address) error
}
