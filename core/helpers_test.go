package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/core"
)

const program = core.Address("auction-program")

var testKeys *confidential.KeyManager

// newEngine returns an engine sharing one key pair across tests; RSA key
// generation dominates test time otherwise.
func newEngine(t *testing.T) *confidential.Engine {
	t.Helper()
	if testKeys == nil {
		km, err := confidential.NewKeyManager()
		assert.NoError(t, err)
		testKeys = km
	}
	return confidential.NewEngine(testKeys)
}

// plain reveals a handle's value through a fresh grant.
func plain(t *testing.T, e *confidential.Engine, h core.Handle) uint64 {
	t.Helper()
	ctx := context.Background()
	assert.NoError(t, e.GrantDecrypt(ctx, program, h, "test-auditor"))
	r, err := e.Decrypt(ctx, "test-auditor", h)
	assert.NoError(t, err)
	return r.Reveal.Value
}

func plainBool(t *testing.T, e *confidential.Engine, h core.BoolHandle) bool {
	t.Helper()
	return plain(t, e, h.Handle()) == 1
}

var (
	t0    = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	start = t0.Add(time.Minute)
	end   = t0.Add(time.Hour)
)

func newAuction(kind core.AuctionKind, reserve uint64) *core.Auction {
	addr := core.AuctionAddress("organizer", 1)
	return &core.Auction{
		Address:      addr,
		Organizer:    "organizer",
		AuctionID:    1,
		ItemMint:     "item-mint",
		ItemVault:    core.VaultAddress(addr, "item-mint"),
		ItemAmount:   1,
		BidMint:      "bid-mint",
		BidVault:     core.VaultAddress(addr, "bid-mint"),
		StartTime:    start,
		EndTime:      end,
		CreatedAt:    t0,
		ReservePrice: reserve,
		Kind:         kind,
		Status:       core.StatusOpen,
	}
}

// placedBid is a bid applied to an auction, with its plaintext kept for
// assertions.
type placedBid struct {
	bid    *core.Bid
	amount uint64
}

// placeBids applies amounts in order, each one second after the previous.
func placeBids(t *testing.T, e *confidential.Engine, a *core.Auction, amounts ...uint64) []placedBid {
	t.Helper()
	ctx := context.Background()

	var out []placedBid
	for i, amount := range amounts {
		bidder := core.Address("bidder-" + string(rune('a'+i)))

		h, err := e.Encrypt(ctx, program, amount)
		assert.NoError(t, err)
		ts, err := e.Encrypt(ctx, program, uint64(start.Add(time.Duration(i)*time.Second).Unix()))
		assert.NoError(t, err)

		assert.NoError(t, a.ApplyBid(ctx, e, program, h, ts))

		out = append(out, placedBid{
			bid: &core.Bid{
				Address:     core.BidAddress(a.Address, bidder),
				Bidder:      bidder,
				Auction:     a.Address,
				Amount:      h,
				SubmittedAt: ts,
			},
			amount: amount,
		})
	}
	return out
}
