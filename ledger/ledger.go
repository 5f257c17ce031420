package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/cloudx-io/confidentialbid/core"
)

var (
	ErrUnknownMint         = errors.New("unknown mint")
	ErrMintExists          = errors.New("mint already registered")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotConfidential     = errors.New("mint is not confidential")
	ErrInvalidAmount       = errors.New("invalid amount")
)

// Mint describes a token. Confidential mints carry encrypted amounts and are
// only recognized when issued by the ledger's confidential authority.
type Mint struct {
	Address      core.Address `json:"address"`
	Decimals     uint8        `json:"decimals"`
	Confidential bool         `json:"confidential"`
	Authority    core.Address `json:"authority"`
}

// ConfidentialTransfer is a journal entry for a transfer whose amount is
// only known as a handle.
type ConfidentialTransfer struct {
	Ref      string       `json:"ref,omitempty"`
	From     core.Address `json:"from"`
	To       core.Address `json:"to"`
	Mint     core.Address `json:"mint"`
	Amount   core.Handle  `json:"amount"`
	Reversal bool         `json:"reversal,omitempty"`
}

// transfer is an applied transfer kept under its ref until reverted.
type transfer struct {
	from, to, mint core.Address
	amount         uint64
	handle         *core.Handle
}

type account struct {
	owner core.Address
	mint  core.Address
}

// Ledger is an in-memory token ledger used as the auction escrow. Plain
// balances are tracked exactly. Confidential transfers are journaled by
// handle, since their amounts are never visible here.
type Ledger struct {
	authority core.Address
	logger    log.Logger

	mu       sync.Mutex
	mints    map[core.Address]Mint
	balances map[account]uint64
	journal  []ConfidentialTransfer
	applied  map[string]transfer
}

// New returns an empty ledger that recognizes authority as the issuer of
// confidential mints.
func New(authority core.Address, logger log.Logger) *Ledger {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Ledger{
		authority: authority,
		logger:    log.With(logger, "module", "ledger"),
		mints:     map[core.Address]Mint{},
		balances:  map[account]uint64{},
	}
}

// Authority returns the recognized confidential mint authority.
func (l *Ledger) Authority() core.Address { return l.authority }

func (l *Ledger) RegisterMint(m Mint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.mints[m.Address]; ok {
		return fmt.Errorf("%s: %w", m.Address, ErrMintExists)
	}
	l.mints[m.Address] = m

	level.Debug(l.logger).Log("msg", "mint registered", "mint", m.Address, "decimals", m.Decimals, "confidential", m.Confidential)
	return nil
}

// MintTo credits amount of a plain mint to owner.
func (l *Ledger) MintTo(owner, mint core.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.mints[mint]; !ok {
		return fmt.Errorf("%s: %w", mint, ErrUnknownMint)
	}

	key := account{owner, mint}
	if l.balances[key] > math.MaxUint64-amount {
		return fmt.Errorf("mint to %s: %w", owner, ErrInvalidAmount)
	}
	l.balances[key] += amount
	return nil
}

func (l *Ledger) Mint(ctx context.Context, mint core.Address) (Mint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.mints[mint]
	if !ok {
		return Mint{}, fmt.Errorf("%s: %w", mint, ErrUnknownMint)
	}
	return m, nil
}

func (l *Ledger) IsConfidentialMint(ctx context.Context, mint core.Address) (bool, error) {
	m, err := l.Mint(ctx, mint)
	if errors.Is(err, ErrUnknownMint) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return m.Confidential && m.Authority == l.authority, nil
}

func (l *Ledger) Decimals(ctx context.Context, mint core.Address) (uint8, error) {
	m, err := l.Mint(ctx, mint)
	if err != nil {
		return 0, err
	}
	return m.Decimals, nil
}

func (l *Ledger) Balance(ctx context.Context, owner, mint core.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.mints[mint]; !ok {
		return 0, fmt.Errorf("%s: %w", mint, ErrUnknownMint)
	}
	return l.balances[account{owner, mint}], nil
}

// Transfer moves a plain amount from one account to another. ref names the
// transfer: repeating a ref that was already applied is a no-op, so a caller
// whose surrounding transaction is retried moves the funds only once.
func (l *Ledger) Transfer(ctx context.Context, ref string, from, to, mint core.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.applied[ref]; ok {
		return nil
	}

	m, ok := l.mints[mint]
	if !ok {
		return fmt.Errorf("%s: %w", mint, ErrUnknownMint)
	}
	if m.Confidential {
		return fmt.Errorf("plain transfer of %s: %w", mint, ErrInvalidAmount)
	}
	if amount == 0 {
		return fmt.Errorf("transfer: %w", ErrInvalidAmount)
	}

	if err := l.moveLocked(from, to, mint, amount); err != nil {
		return err
	}
	l.record(ref, transfer{from: from, to: to, mint: mint, amount: amount})

	level.Debug(l.logger).Log("msg", "transfer", "ref", ref, "from", from, "to", to, "mint", mint, "amount", l.uiAmountLocked(m, amount))
	return nil
}

// TransferConfidential journals a transfer whose amount is a handle. Refs
// are idempotent as for Transfer.
func (l *Ledger) TransferConfidential(ctx context.Context, ref string, from, to, mint core.Address, amount core.Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.applied[ref]; ok {
		return nil
	}

	m, ok := l.mints[mint]
	if !ok {
		return fmt.Errorf("%s: %w", mint, ErrUnknownMint)
	}
	if !m.Confidential {
		return fmt.Errorf("%s: %w", mint, ErrNotConfidential)
	}

	l.journal = append(l.journal, ConfidentialTransfer{Ref: ref, From: from, To: to, Mint: mint, Amount: amount})
	l.record(ref, transfer{from: from, to: to, mint: mint, handle: &amount})

	level.Debug(l.logger).Log("msg", "confidential transfer", "ref", ref, "from", from, "to", to, "mint", mint, "amount", amount)
	return nil
}

// Revert undoes the transfer applied under ref. Unknown or already reverted
// refs are a no-op.
func (l *Ledger) Revert(ctx context.Context, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.applied[ref]
	if !ok {
		return nil
	}

	if t.handle != nil {
		l.journal = append(l.journal, ConfidentialTransfer{Ref: ref, From: t.to, To: t.from, Mint: t.mint, Amount: *t.handle, Reversal: true})
	} else if err := l.moveLocked(t.to, t.from, t.mint, t.amount); err != nil {
		return fmt.Errorf("revert %s: %w", ref, err)
	}
	delete(l.applied, ref)

	level.Debug(l.logger).Log("msg", "transfer reverted", "ref", ref, "from", t.from, "to", t.to, "mint", t.mint)
	return nil
}

// Applied reports whether a transfer is currently applied under ref.
func (l *Ledger) Applied(ref string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.applied[ref]
	return ok
}

func (l *Ledger) moveLocked(from, to, mint core.Address, amount uint64) error {
	src, dst := account{from, mint}, account{to, mint}
	if l.balances[src] < amount {
		return fmt.Errorf("transfer from %s: %w", from, ErrInsufficientBalance)
	}
	if l.balances[dst] > math.MaxUint64-amount {
		return fmt.Errorf("transfer to %s: %w", to, ErrInvalidAmount)
	}
	l.balances[src] -= amount
	l.balances[dst] += amount
	return nil
}

func (l *Ledger) record(ref string, t transfer) {
	if ref != "" {
		l.applied[ref] = t
	}
}

// Journal returns the confidential transfers in the order they happened.
func (l *Ledger) Journal() []ConfidentialTransfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ConfidentialTransfer(nil), l.journal...)
}
