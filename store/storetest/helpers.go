package storetest

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/store"
)

const (
	ItemMint = core.Address("item-mint")
	BidMint  = core.Address("bid-mint")
)

// Timestamps are truncated to microseconds, the precision Postgres keeps.
var now = time.Now().UTC().Truncate(time.Microsecond)

func NewAuction(t *testing.T, s store.Store) *core.Auction {
	t.Helper()

	organizer := core.Address(fmt.Sprintf("organizer-%d", rand.Int()))
	id := rand.Uint64()
	addr := core.AuctionAddress(organizer, id)

	a := &core.Auction{
		Address:          addr,
		Organizer:        organizer,
		AuctionID:        id,
		ItemMint:         ItemMint,
		ItemVault:        core.VaultAddress(addr, ItemMint),
		ItemAmount:       1,
		ItemDecimals:     6,
		BidMint:          BidMint,
		BidVault:         core.VaultAddress(addr, BidMint),
		StartTime:        now.Add(time.Minute),
		EndTime:          now.Add(time.Hour),
		CreatedAt:        now,
		ReservePrice:     100,
		Kind:             core.SecondPrice,
		HighestBid:       core.Handle{},
		HighestTimestamp: core.Handle{},
		Status:           core.StatusOpen,
	}

	if err := s.InsertAuction(context.Background(), a); err != nil {
		t.Fatal(err)
	}

	return a
}

func NewBid(t *testing.T, s store.Store, a *core.Auction) *core.Bid {
	t.Helper()

	bidder := core.Address(fmt.Sprintf("bidder-%d", rand.Int()))
	b := &core.Bid{
		Address:     core.BidAddress(a.Address, bidder),
		Bidder:      bidder,
		Auction:     a.Address,
		Amount:      RandomHandle(),
		SubmittedAt: RandomHandle(),
		CreatedAt:   now,
	}

	if err := s.InsertBid(context.Background(), b); err != nil {
		t.Fatal(err)
	}

	return b
}

func RandomHandle() core.Handle {
	return core.NewHandle(uuid.New())
}

func RandomBoolHandle() core.BoolHandle {
	return core.NewBoolHandle(uuid.New())
}
