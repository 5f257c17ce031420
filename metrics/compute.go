package metrics

import (
	"context"

	"github.com/cloudx-io/confidentialbid/core"
)

// Compute counts calls made through a ConfidentialCompute.
type Compute struct {
	Next core.ConfidentialCompute
}

var _ core.ConfidentialCompute = (*Compute)(nil)

// InstrumentCompute wraps cc so every call is counted in ComputeCallsTotal.
func InstrumentCompute(cc core.ConfidentialCompute) *Compute {
	return &Compute{Next: cc}
}

func observe(op string, err error) {
	ComputeCallsTotal.WithLabelValues(op, Result(err)).Inc()
}

func (c *Compute) Encrypt(ctx context.Context, signer core.Address, plaintext uint64) (core.Handle, error) {
	h, err := c.Next.Encrypt(ctx, signer, plaintext)
	observe("encrypt", err)
	return h, err
}

func (c *Compute) Ingest(ctx context.Context, signer core.Address, ciphertext []byte) (core.Handle, error) {
	h, err := c.Next.Ingest(ctx, signer, ciphertext)
	observe("ingest", err)
	return h, err
}

func (c *Compute) CompareGT(ctx context.Context, signer core.Address, a, b core.Handle) (core.BoolHandle, error) {
	h, err := c.Next.CompareGT(ctx, signer, a, b)
	observe("compare_gt", err)
	return h, err
}

func (c *Compute) CompareGE(ctx context.Context, signer core.Address, a, b core.Handle) (core.BoolHandle, error) {
	h, err := c.Next.CompareGE(ctx, signer, a, b)
	observe("compare_ge", err)
	return h, err
}

func (c *Compute) CompareEQ(ctx context.Context, signer core.Address, a, b core.Handle) (core.BoolHandle, error) {
	h, err := c.Next.CompareEQ(ctx, signer, a, b)
	observe("compare_eq", err)
	return h, err
}

func (c *Compute) Select(ctx context.Context, signer core.Address, cond core.BoolHandle, a, b core.Handle) (core.Handle, error) {
	h, err := c.Next.Select(ctx, signer, cond, a, b)
	observe("select", err)
	return h, err
}

func (c *Compute) And(ctx context.Context, signer core.Address, a, b core.BoolHandle) (core.BoolHandle, error) {
	h, err := c.Next.And(ctx, signer, a, b)
	observe("and", err)
	return h, err
}

func (c *Compute) GrantDecrypt(ctx context.Context, signer core.Address, h core.Handle, grantee core.Address) error {
	err := c.Next.GrantDecrypt(ctx, signer, h, grantee)
	observe("grant_decrypt", err)
	return err
}
