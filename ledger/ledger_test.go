package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/confidentialbid/core"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := New("authority", nil)
	assert.NoError(t, l.RegisterMint(Mint{Address: "nft", Decimals: 0}))
	assert.NoError(t, l.RegisterMint(Mint{Address: "usdc", Decimals: 6}))
	assert.NoError(t, l.RegisterMint(Mint{Address: "cusdc", Decimals: 6, Confidential: true, Authority: "authority"}))
	assert.NoError(t, l.RegisterMint(Mint{Address: "rogue", Decimals: 6, Confidential: true, Authority: "someone-else"}))
	return l
}

func TestLedger_IsConfidentialMint(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	tests := map[core.Address]bool{
		"cusdc":   true,
		"rogue":   false, // wrong authority
		"usdc":    false,
		"missing": false,
	}
	for mint, want := range tests {
		got, err := l.IsConfidentialMint(ctx, mint)
		assert.NoError(t, err)
		check.Equal(t, want, got)
	}
}

func TestLedger_Transfer(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	assert.NoError(t, l.MintTo("alice", "nft", 3))

	assert.NoError(t, l.Transfer(ctx, "t1", "alice", "vault", "nft", 2))

	bal, err := l.Balance(ctx, "alice", "nft")
	assert.NoError(t, err)
	check.Equal(t, uint64(1), bal)
	bal, err = l.Balance(ctx, "vault", "nft")
	assert.NoError(t, err)
	check.Equal(t, uint64(2), bal)

	err = l.Transfer(ctx, "t2", "alice", "vault", "nft", 2)
	check.True(t, errors.Is(err, ErrInsufficientBalance))

	err = l.Transfer(ctx, "t3", "alice", "vault", "nft", 0)
	check.True(t, errors.Is(err, ErrInvalidAmount))

	err = l.Transfer(ctx, "t4", "alice", "vault", "missing", 1)
	check.True(t, errors.Is(err, ErrUnknownMint))

	err = l.Transfer(ctx, "t5", "alice", "vault", "cusdc", 1)
	check.True(t, errors.Is(err, ErrInvalidAmount))

	_, err = l.Balance(ctx, "alice", "missing")
	check.True(t, errors.Is(err, ErrUnknownMint))
}

func TestLedger_TransferConfidential(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	h := core.NewHandle(uuid.New())

	assert.NoError(t, l.TransferConfidential(ctx, "c1", "bob", "vault", "cusdc", h))

	err := l.TransferConfidential(ctx, "c2", "bob", "vault", "usdc", h)
	check.True(t, errors.Is(err, ErrNotConfidential))

	journal := l.Journal()
	assert.Equal(t, 1, len(journal))
	check.Equal(t, core.Address("bob"), journal[0].From)
	check.True(t, h.Equal(journal[0].Amount))
}

func TestLedger_TransferIdempotentRef(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	assert.NoError(t, l.MintTo("alice", "nft", 5))

	// A retried transaction repeats the same ref.
	assert.NoError(t, l.Transfer(ctx, "escrow/1", "alice", "vault", "nft", 2))
	assert.NoError(t, l.Transfer(ctx, "escrow/1", "alice", "vault", "nft", 2))

	bal, err := l.Balance(ctx, "alice", "nft")
	assert.NoError(t, err)
	check.Equal(t, uint64(3), bal)
	check.True(t, l.Applied("escrow/1"))

	h := core.NewHandle(uuid.New())
	assert.NoError(t, l.TransferConfidential(ctx, "bid/1", "bob", "vault", "cusdc", h))
	assert.NoError(t, l.TransferConfidential(ctx, "bid/1", "bob", "vault", "cusdc", h))
	check.Equal(t, 1, len(l.Journal()))
}

func TestLedger_Revert(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	assert.NoError(t, l.MintTo("alice", "nft", 5))

	assert.NoError(t, l.Transfer(ctx, "escrow/1", "alice", "vault", "nft", 2))
	assert.NoError(t, l.Revert(ctx, "escrow/1"))
	assert.NoError(t, l.Revert(ctx, "escrow/1"))
	assert.NoError(t, l.Revert(ctx, "never-applied"))

	bal, err := l.Balance(ctx, "alice", "nft")
	assert.NoError(t, err)
	check.Equal(t, uint64(5), bal)
	bal, err = l.Balance(ctx, "vault", "nft")
	assert.NoError(t, err)
	check.Equal(t, uint64(0), bal)
	check.False(t, l.Applied("escrow/1"))

	h := core.NewHandle(uuid.New())
	assert.NoError(t, l.TransferConfidential(ctx, "bid/1", "bob", "vault", "cusdc", h))
	assert.NoError(t, l.Revert(ctx, "bid/1"))

	journal := l.Journal()
	assert.Equal(t, 2, len(journal))
	check.True(t, journal[1].Reversal)
	check.Equal(t, core.Address("vault"), journal[1].From)
	check.Equal(t, core.Address("bob"), journal[1].To)
}

func TestLedger_RegisterMintTwice(t *testing.T) {
	l := newTestLedger(t)
	err := l.RegisterMint(Mint{Address: "nft"})
	check.True(t, errors.Is(err, ErrMintExists))
}

func TestUIAmount(t *testing.T) {
	check.Equal(t, "1.5", UIAmount(1500000, 6).String())
	check.Equal(t, "7", UIAmount(7, 0).String())
	check.Equal(t, "18446744073709.551615", UIAmount(^uint64(0), 6).String())
}

func TestParseUIAmount(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     uint64
		wantErr  bool
	}{
		{in: "1.5", decimals: 6, want: 1500000},
		{in: "0.000001", decimals: 6, want: 1},
		{in: "42", decimals: 0, want: 42},
		{in: "18446744073709551615", decimals: 0, want: ^uint64(0)},
		{in: "18446744073709551616", decimals: 0, wantErr: true},
		{in: "0.0000001", decimals: 6, wantErr: true},
		{in: "-1", decimals: 6, wantErr: true},
		{in: "abc", decimals: 6, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUIAmount(tt.in, tt.decimals)
			if tt.wantErr {
				check.Error(t, err)
				return
			}
			assert.NoError(t, err)
			check.Equal(t, tt.want, got)
		})
	}
}

func TestFromGenesis(t *testing.T) {
	ctx := context.Background()
	g, err := ReadGenesis(strings.NewReader(`{
		"authority": "token-authority",
		"mints": [
			{"address": "nft", "decimals": 0},
			{"address": "cusdc", "decimals": 6, "confidential": true, "authority": "token-authority"}
		],
		"balances": [{"owner": "alice", "mint": "nft", "amount": "2"}]
	}`))
	assert.NoError(t, err)

	l, err := FromGenesis(g, nil)
	assert.NoError(t, err)
	check.Equal(t, core.Address("token-authority"), l.Authority())

	bal, err := l.Balance(ctx, "alice", "nft")
	assert.NoError(t, err)
	check.Equal(t, uint64(2), bal)

	ok, err := l.IsConfidentialMint(ctx, "cusdc")
	assert.NoError(t, err)
	check.True(t, ok)

	_, err = ReadGenesis(strings.NewReader(`{"unknown": 1}`))
	check.Error(t, err)

	_, err = FromGenesis(&Genesis{
		Mints:    []Mint{{Address: "cusdc", Confidential: true}},
		Balances: []GenesisBalance{{Owner: "a", Mint: "cusdc", Amount: "1"}},
	}, nil)
	check.Error(t, err)
}
