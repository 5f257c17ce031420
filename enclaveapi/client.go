package enclaveapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/core"
)

// Dialer opens a connection to the enclave.
type Dialer func(ctx context.Context) (net.Conn, error)

// VsockDialer dials the enclave at cid:port over vsock.
func VsockDialer(cid, port uint32) Dialer {
	return func(context.Context) (net.Conn, error) {
		return vsock.Dial(cid, port, nil)
	}
}

// Client is a ConfidentialCompute backed by a remote enclave.
type Client struct {
	dial   Dialer
	logger log.Logger

	mu   sync.Mutex
	keys *KeyResponse
}

var _ core.ConfidentialCompute = (*Client)(nil)

func NewClient(dial Dialer, logger log.Logger) *Client {
	return &Client{
		dial:   dial,
		logger: log.With(logger, "module", "enclaveapi"),
	}
}

// Ping checks that the enclave answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, Request{Type: TypePing})
	if err != nil {
		return err
	}
	if resp.Type != TypePong {
		return fmt.Errorf("unexpected response type %q", resp.Type)
	}
	return nil
}

// Keys fetches the enclave's public keys. The first successful response is
// cached for the life of the client.
func (c *Client) Keys(ctx context.Context) (*KeyResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.keys != nil {
		return c.keys, nil
	}

	resp, err := c.do(ctx, Request{Type: TypeKeyRequest})
	if err != nil {
		return nil, err
	}
	if resp.Keys == nil {
		return nil, fmt.Errorf("key response carries no keys")
	}

	c.keys = resp.Keys
	return c.keys, nil
}

func (c *Client) PublicKeyPEM() (string, error) {
	keys, err := c.Keys(context.Background())
	if err != nil {
		return "", err
	}
	return keys.PublicKey, nil
}

func (c *Client) RevealKeyPEM() (string, error) {
	keys, err := c.Keys(context.Background())
	if err != nil {
		return "", err
	}
	return keys.RevealKey, nil
}

func (c *Client) Encrypt(ctx context.Context, signer core.Address, plaintext uint64) (core.Handle, error) {
	resp, err := c.compute(ctx, Request{Op: confidential.OpEncrypt, Signer: signer, Plaintext: plaintext})
	return resp.Handle, err
}

func (c *Client) Ingest(ctx context.Context, signer core.Address, ciphertext []byte) (core.Handle, error) {
	resp, err := c.compute(ctx, Request{Op: confidential.OpIngest, Signer: signer, Ciphertext: ciphertext})
	return resp.Handle, err
}

func (c *Client) CompareGT(ctx context.Context, signer core.Address, a, b core.Handle) (core.BoolHandle, error) {
	resp, err := c.compute(ctx, Request{Op: confidential.OpCompareGT, Signer: signer, A: a, B: b})
	return resp.BoolHandle, err
}

func (c *Client) CompareGE(ctx context.Context, signer core.Address, a, b core.Handle) (core.BoolHandle, error) {
	resp, err := c.compute(ctx, Request{Op: confidential.OpCompareGE, Signer: signer, A: a, B: b})
	return resp.BoolHandle, err
}

func (c *Client) CompareEQ(ctx context.Context, signer core.Address, a, b core.Handle) (core.BoolHandle, error) {
	resp, err := c.compute(ctx, Request{Op: confidential.OpCompareEQ, Signer: signer, A: a, B: b})
	return resp.BoolHandle, err
}

func (c *Client) Select(ctx context.Context, signer core.Address, cond core.BoolHandle, a, b core.Handle) (core.Handle, error) {
	resp, err := c.compute(ctx, Request{Op: confidential.OpSelect, Signer: signer, Cond: cond, A: a, B: b})
	return resp.Handle, err
}

func (c *Client) And(ctx context.Context, signer core.Address, a, b core.BoolHandle) (core.BoolHandle, error) {
	resp, err := c.compute(ctx, Request{Op: confidential.OpAnd, Signer: signer, CondA: a, CondB: b})
	return resp.BoolHandle, err
}

func (c *Client) GrantDecrypt(ctx context.Context, signer core.Address, h core.Handle, grantee core.Address) error {
	_, err := c.compute(ctx, Request{Op: confidential.OpGrantDecrypt, Signer: signer, Target: h, Grantee: grantee})
	return err
}

// Decrypt asks the enclave to reveal h to requester.
func (c *Client) Decrypt(ctx context.Context, requester core.Address, h core.Handle) (*confidential.AttestedReveal, error) {
	resp, err := c.do(ctx, Request{Type: TypeDecrypt, Requester: requester, Target: h})
	if err != nil {
		return nil, err
	}
	if resp.Reveal == nil {
		return nil, fmt.Errorf("decrypt response carries no reveal")
	}
	return resp.Reveal, nil
}

func (c *Client) compute(ctx context.Context, req Request) (Response, error) {
	req.Type = TypeCompute
	resp, err := c.do(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("%s: %w", req.Op, err)
	}
	return resp, nil
}

// do runs one request over a fresh connection.
func (c *Client) do(ctx context.Context, req Request) (Response, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return Response{}, fmt.Errorf("dial enclave: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(DefaultTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	// Unblock the exchange if ctx ends before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		return Response{}, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Response{}, ctxErr
		}
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	if err := resp.Err(); err != nil {
		level.Debug(c.logger).Log("msg", "enclave error", "type", req.Type, "op", req.Op, "code", resp.Code)
		return Response{}, err
	}

	return resp, nil
}
