package confidential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/cloudx-io/confidentialbid/core"
)

// Operation names, as recorded in the trace and used on the wire.
const (
	OpEncrypt      = "encrypt"
	OpIngest       = "ingest"
	OpCompareGT    = "compare_gt"
	OpCompareGE    = "compare_ge"
	OpCompareEQ    = "compare_eq"
	OpSelect       = "select"
	OpAnd          = "and"
	OpGrantDecrypt = "grant_decrypt"
	OpDecrypt      = "decrypt"
)

var (
	ErrUnknownHandle = errors.New("unknown handle")
	ErrMissingSigner = errors.New("missing signer")
	ErrNotAllowed    = errors.New("decrypt not allowed")
	ErrTypeMismatch  = errors.New("handle type mismatch")
)

type valueType uint8

const (
	typeUint valueType = iota
	typeBool
)

type value struct {
	typ valueType
	v   uint64
}

// Engine is an in-process ConfidentialCompute. Plaintexts live only in its
// handle table; callers see opaque handles. Every operation is metered per
// signer and appended to an operation trace.
type Engine struct {
	keys   *KeyManager
	logger log.Logger
	now    func() time.Time

	// FailOn, if set, is consulted before each operation. A non-nil result
	// fails the operation with that error.
	FailOn func(op string) error

	mu     sync.Mutex
	values map[uuid.UUID]value
	acl    map[uuid.UUID]map[core.Address]struct{}
	usage  map[core.Address]uint64
	trace  []string
}

var _ core.ConfidentialCompute = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) { e.logger = log.With(logger, "module", "confidential") }
}

// WithClock sets the clock used to stamp reveals.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an engine using keys for input decryption and reveal
// signing.
func NewEngine(keys *KeyManager, opts ...Option) *Engine {
	e := &Engine{
		keys:   keys,
		logger: log.NewNopLogger(),
		now:    time.Now,
		values: map[uuid.UUID]value{},
		acl:    map[uuid.UUID]map[core.Address]struct{}{},
		usage:  map[core.Address]uint64{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Keys returns the engine's key manager.
func (e *Engine) Keys() *KeyManager { return e.keys }

func (e *Engine) Encrypt(ctx context.Context, signer core.Address, plaintext uint64) (core.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(ctx, OpEncrypt, signer); err != nil {
		return core.Handle{}, err
	}
	return core.NewHandle(e.store(typeUint, plaintext)), nil
}

func (e *Engine) Ingest(ctx context.Context, signer core.Address, ciphertext []byte) (core.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(ctx, OpIngest, signer); err != nil {
		return core.Handle{}, err
	}

	amount, err := decryptInput(ciphertext, e.keys.privateKey)
	if err != nil {
		level.Debug(e.logger).Log("msg", "ingest failed", "signer", signer, "err", err)
		return core.Handle{}, fmt.Errorf("ingest: %w: %w", core.ErrInvalidBidAmount, err)
	}

	return core.NewHandle(e.store(typeUint, amount)), nil
}

func (e *Engine) CompareGT(ctx context.Context, signer core.Address, a, b core.Handle) (core.BoolHandle, error) {
	return e.compare(ctx, OpCompareGT, signer, a, b, func(x, y uint64) bool { return x > y })
}

func (e *Engine) CompareGE(ctx context.Context, signer core.Address, a, b core.Handle) (core.BoolHandle, error) {
	return e.compare(ctx, OpCompareGE, signer, a, b, func(x, y uint64) bool { return x >= y })
}

func (e *Engine) CompareEQ(ctx context.Context, signer core.Address, a, b core.Handle) (core.BoolHandle, error) {
	return e.compare(ctx, OpCompareEQ, signer, a, b, func(x, y uint64) bool { return x == y })
}

func (e *Engine) compare(ctx context.Context, op string, signer core.Address, a, b core.Handle, f func(x, y uint64) bool) (core.BoolHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(ctx, op, signer); err != nil {
		return core.BoolHandle{}, err
	}

	x, err := e.load(a.ID(), typeUint)
	if err != nil {
		return core.BoolHandle{}, fmt.Errorf("%s: %w", op, err)
	}
	y, err := e.load(b.ID(), typeUint)
	if err != nil {
		return core.BoolHandle{}, fmt.Errorf("%s: %w", op, err)
	}

	return core.NewBoolHandle(e.store(typeBool, boolToUint(f(x.v, y.v)))), nil
}

func (e *Engine) Select(ctx context.Context, signer core.Address, cond core.BoolHandle, a, b core.Handle) (core.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(ctx, OpSelect, signer); err != nil {
		return core.Handle{}, err
	}

	c, err := e.load(cond.ID(), typeBool)
	if err != nil {
		return core.Handle{}, fmt.Errorf("select: %w", err)
	}
	x, err := e.load(a.ID(), typeUint)
	if err != nil {
		return core.Handle{}, fmt.Errorf("select: %w", err)
	}
	y, err := e.load(b.ID(), typeUint)
	if err != nil {
		return core.Handle{}, fmt.Errorf("select: %w", err)
	}

	// Always a fresh handle, so the result cannot be linked to either input.
	out := y.v
	if c.v != 0 {
		out = x.v
	}
	return core.NewHandle(e.store(typeUint, out)), nil
}

func (e *Engine) And(ctx context.Context, signer core.Address, a, b core.BoolHandle) (core.BoolHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(ctx, OpAnd, signer); err != nil {
		return core.BoolHandle{}, err
	}

	x, err := e.load(a.ID(), typeBool)
	if err != nil {
		return core.BoolHandle{}, fmt.Errorf("and: %w", err)
	}
	y, err := e.load(b.ID(), typeBool)
	if err != nil {
		return core.BoolHandle{}, fmt.Errorf("and: %w", err)
	}

	return core.NewBoolHandle(e.store(typeBool, boolToUint(x.v != 0 && y.v != 0))), nil
}

func (e *Engine) GrantDecrypt(ctx context.Context, signer core.Address, h core.Handle, grantee core.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(ctx, OpGrantDecrypt, signer); err != nil {
		return err
	}
	if grantee == "" {
		return fmt.Errorf("grant_decrypt: empty grantee")
	}
	if !h.IsZero() {
		if _, ok := e.values[h.ID()]; !ok {
			return fmt.Errorf("grant_decrypt: %w", ErrUnknownHandle)
		}
	}

	grantees, ok := e.acl[h.ID()]
	if !ok {
		grantees = map[core.Address]struct{}{}
		e.acl[h.ID()] = grantees
	}
	grantees[grantee] = struct{}{}
	return nil
}

// Allowed reports whether who may decrypt h.
func (e *Engine) Allowed(h core.Handle, who core.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.acl[h.ID()][who]
	return ok
}

// Decrypt reveals h to requester if a grant exists, as a signed reveal.
func (e *Engine) Decrypt(ctx context.Context, requester core.Address, h core.Handle) (*AttestedReveal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(ctx, OpDecrypt, requester); err != nil {
		return nil, err
	}
	if _, ok := e.acl[h.ID()][requester]; !ok {
		return nil, fmt.Errorf("decrypt %s for %s: %w", h, requester, ErrNotAllowed)
	}

	v, ok := e.values[h.ID()]
	if !ok && !h.IsZero() {
		return nil, fmt.Errorf("decrypt: %w", ErrUnknownHandle)
	}

	reveal := Reveal{
		Handle:    h.String(),
		Requester: requester,
		Value:     v.v,
		IsBool:    v.typ == typeBool,
		IssuedAt:  e.now().UTC().UnixMilli(),
	}

	signed, err := signReveal(reveal, e.keys.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign reveal: %w", err)
	}

	level.Debug(e.logger).Log("msg", "reveal issued", "handle", h, "requester", requester)
	return &AttestedReveal{Reveal: reveal, COSE: signed}, nil
}

// Usage returns the number of operations metered to signer.
func (e *Engine) Usage(signer core.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.usage[signer]
}

// Ops returns a copy of the operation trace.
func (e *Engine) Ops() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.trace...)
}

// ResetOps clears the operation trace.
func (e *Engine) ResetOps() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trace = nil
}

// begin runs the per-operation preamble. Callers hold e.mu.
func (e *Engine) begin(ctx context.Context, op string, signer core.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if signer == "" {
		return fmt.Errorf("%s: %w", op, ErrMissingSigner)
	}

	e.trace = append(e.trace, op)
	e.usage[signer]++

	if e.FailOn != nil {
		if err := e.FailOn(op); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}

func (e *Engine) store(typ valueType, v uint64) uuid.UUID {
	id := uuid.New()
	e.values[id] = value{typ: typ, v: v}
	return id
}

// load resolves a handle. The nil id is the encrypted zero (or false).
func (e *Engine) load(id uuid.UUID, want valueType) (value, error) {
	if id == uuid.Nil {
		return value{typ: want}, nil
	}
	v, ok := e.values[id]
	if !ok {
		return value{}, ErrUnknownHandle
	}
	if v.typ != want {
		return value{}, ErrTypeMismatch
	}
	return v, nil
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
