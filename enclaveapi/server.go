package enclaveapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/metrics"
)

// DefaultTimeout bounds a single request/response exchange on a connection.
const DefaultTimeout = 30 * time.Second

// KeyAttester produces an attestation over the enclave's public keys.
type KeyAttester interface {
	AttestKeys(userData KeyAttestationUserData) (AttestationCOSE, error)
}

// Server executes enclave requests against a confidential engine. Each
// connection carries exactly one request and one response.
type Server struct {
	engine   *confidential.Engine
	attester KeyAttester
	logger   log.Logger
}

// NewServer returns a server backed by engine. The attester may be nil, in
// which case key responses carry no attestation.
func NewServer(engine *confidential.Engine, attester KeyAttester, logger log.Logger) *Server {
	return &Server{
		engine:   engine,
		attester: attester,
		logger:   log.With(logger, "module", "enclaveapi"),
	}
}

// ServeConn reads one request from conn, answers it, and closes conn.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(s.logger).Log("msg", "panic recovered", "panic", r)
		}
		if err := conn.Close(); err != nil {
			level.Debug(s.logger).Log("msg", "close connection", "err", err)
		}
	}()

	deadline := time.Now().Add(DefaultTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		level.Error(s.logger).Log("msg", "decode request", "err", err)
		resp := errorResponse(CodeBadRequest, fmt.Errorf("decode request: %w", err))
		_ = json.NewEncoder(conn).Encode(resp)
		return
	}

	resp := s.Handle(ctx, req)

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		level.Error(s.logger).Log("msg", "encode response", "type", req.Type, "err", err)
	}
}

// Handle executes a single request.
func (s *Server) Handle(ctx context.Context, req Request) (resp Response) {
	defer func(begin time.Time) {
		resp.ProcessingTime = float64(time.Since(begin).Microseconds()) / 1000
		result := "success"
		if resp.Type == TypeError {
			result = resp.Code
		}
		metrics.EnclaveRequestsTotal.WithLabelValues(req.Type, result).Inc()
	}(time.Now())

	switch req.Type {
	case TypePing:
		return Response{Type: TypePong, Message: "enclave is healthy"}

	case TypeKeyRequest:
		keys, err := s.keys()
		if err != nil {
			level.Error(s.logger).Log("msg", "key request failed", "err", err)
			return errorResponse(CodeInternal, err)
		}
		return Response{Type: TypeKeyResponse, Keys: keys}

	case TypeCompute:
		resp, err := s.compute(ctx, req)
		if err != nil {
			level.Debug(s.logger).Log("msg", "compute failed", "op", req.Op, "signer", req.Signer, "err", err)
			return errorResponse(errorCode(err), err)
		}
		return resp

	case TypeDecrypt:
		reveal, err := s.engine.Decrypt(ctx, req.Requester, req.Target)
		if err != nil {
			return errorResponse(errorCode(err), err)
		}
		return Response{Type: TypeResult, Reveal: reveal}

	default:
		return errorResponse(CodeBadRequest, fmt.Errorf("unknown request type %q", req.Type))
	}
}

func (s *Server) compute(ctx context.Context, req Request) (Response, error) {
	var (
		resp = Response{Type: TypeResult}
		err  error
	)

	switch req.Op {
	case confidential.OpEncrypt:
		resp.Handle, err = s.engine.Encrypt(ctx, req.Signer, req.Plaintext)
	case confidential.OpIngest:
		resp.Handle, err = s.engine.Ingest(ctx, req.Signer, req.Ciphertext)
	case confidential.OpCompareGT:
		resp.BoolHandle, err = s.engine.CompareGT(ctx, req.Signer, req.A, req.B)
	case confidential.OpCompareGE:
		resp.BoolHandle, err = s.engine.CompareGE(ctx, req.Signer, req.A, req.B)
	case confidential.OpCompareEQ:
		resp.BoolHandle, err = s.engine.CompareEQ(ctx, req.Signer, req.A, req.B)
	case confidential.OpSelect:
		resp.Handle, err = s.engine.Select(ctx, req.Signer, req.Cond, req.A, req.B)
	case confidential.OpAnd:
		resp.BoolHandle, err = s.engine.And(ctx, req.Signer, req.CondA, req.CondB)
	case confidential.OpGrantDecrypt:
		err = s.engine.GrantDecrypt(ctx, req.Signer, req.Target, req.Grantee)
	default:
		return Response{}, fmt.Errorf("unknown op %q", req.Op)
	}

	return resp, err
}

func (s *Server) keys() (*KeyResponse, error) {
	km := s.engine.Keys()

	publicKey, err := km.PublicKeyPEM()
	if err != nil {
		return nil, err
	}
	revealKey, err := km.RevealKeyPEM()
	if err != nil {
		return nil, err
	}

	resp := &KeyResponse{PublicKey: publicKey, RevealKey: revealKey}
	if s.attester == nil {
		return resp, nil
	}

	attestation, err := s.attester.AttestKeys(KeyAttestationUserData{
		KeyAlgorithm:    "RSA-2048",
		PublicKey:       publicKey,
		RevealAlgorithm: "ES256",
		RevealKey:       revealKey,
	})
	if err != nil {
		return nil, fmt.Errorf("key attestation: %w", err)
	}
	resp.AttestationCOSEBase64 = attestation.EncodeBase64()

	return resp, nil
}

func errorResponse(code string, err error) Response {
	return Response{Type: TypeError, Code: code, Message: err.Error()}
}
