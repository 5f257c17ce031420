package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/store"
)

func TestStore(t *testing.T, makeStore func(*testing.T) store.Store) {
	ctx := context.Background()

	t.Run("SelectAuction", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		have, err := s.SelectAuction(ctx, auction.Address)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, auction); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("SelectAuctionNotFound", func(t *testing.T) {
		s := makeStore(t)

		_, err := s.SelectAuction(ctx, "nowhere")
		if want := store.ErrNotFound; !errors.Is(err, want) {
			t.Fatalf("want %v, have %v", want, err)
		}
	})

	t.Run("InsertAuctionTwice", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		err := s.InsertAuction(ctx, auction)
		if want := store.ErrAlreadyExists; !errors.Is(err, want) {
			t.Fatalf("want %v, have %v", want, err)
		}
	})

	t.Run("UpdateAuction", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		second := RandomHandle()
		met := RandomBoolHandle()
		auction.HighestBid = RandomHandle()
		auction.HighestTimestamp = RandomHandle()
		auction.SecondHighestBid = &second
		auction.ReserveMet = &met
		auction.BidCount = 2
		auction.Status = core.StatusClosed

		if err := s.UpdateAuction(ctx, auction); err != nil {
			t.Fatal(err)
		}

		have, err := s.SelectAuction(ctx, auction.Address)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, auction); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("UpdateAuctionNotFound", func(t *testing.T) {
		s := makeStore(t)

		err := s.UpdateAuction(ctx, &core.Auction{Address: "nowhere"})
		if want := store.ErrNotFound; !errors.Is(err, want) {
			t.Fatalf("want %v, have %v", want, err)
		}
	})

	t.Run("ListAuctions", func(t *testing.T) {
		s := makeStore(t)
		a1 := NewAuction(t, s)
		a2 := NewAuction(t, s)

		have, err := s.ListAuctions(ctx)
		if err != nil {
			t.Fatal(err)
		}

		if len(have) != 2 {
			t.Fatalf("want 2 auctions, have %d", len(have))
		}

		seen := map[core.Address]bool{}
		for _, a := range have {
			seen[a.Address] = true
		}
		if !seen[a1.Address] || !seen[a2.Address] {
			t.Fatalf("missing auctions: %v", seen)
		}
	})

	t.Run("ListBids", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)
		other := NewAuction(t, s)
		bid1 := NewBid(t, s, auction)
		bid2 := NewBid(t, s, auction)
		NewBid(t, s, other)

		bids, err := s.ListBids(ctx, auction.Address)
		if err != nil {
			t.Fatal(err)
		}

		want := []*core.Bid{bid1, bid2}
		if diff := cmp.Diff(bids, want); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("ListBidsEmpty", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		bids, err := s.ListBids(ctx, auction.Address)
		if err != nil {
			t.Fatal(err)
		}

		if len(bids) != 0 {
			t.Fatalf("want no bids, have %d", len(bids))
		}
	})

	t.Run("InsertBidTwice", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)
		bid := NewBid(t, s, auction)

		bid.Amount = RandomHandle()
		err := s.InsertBid(ctx, bid)
		if want := store.ErrAlreadyExists; !errors.Is(err, want) {
			t.Fatalf("want %v, have %v", want, err)
		}
	})

	t.Run("UpdateBid", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)
		bid := NewBid(t, s, auction)

		winner := RandomBoolHandle()
		bid.WinnerHandle = &winner

		if err := s.UpdateBid(ctx, bid); err != nil {
			t.Fatal(err)
		}

		have, err := s.SelectBid(ctx, auction.Address, bid.Bidder)
		if err != nil {
			t.Fatal(err)
		}

		if diff := cmp.Diff(have, bid); diff != "" {
			t.Fatalf("mismatch: %s", diff)
		}
	})

	t.Run("SelectBidNotFound", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		_, err := s.SelectBid(ctx, auction.Address, "nobody")
		if want := store.ErrNotFound; !errors.Is(err, want) {
			t.Fatalf("want %v, have %v", want, err)
		}

		err = s.UpdateBid(ctx, &core.Bid{Auction: auction.Address, Bidder: "nobody"})
		if want := store.ErrNotFound; !errors.Is(err, want) {
			t.Fatalf("want %v, have %v", want, err)
		}
	})

	t.Run("TransactCommit", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		var bid *core.Bid
		if err := s.Transact(ctx, func(tx store.Store) error {
			bid = NewBid(t, tx, auction)
			auction.BidCount = 1
			return tx.UpdateAuction(ctx, auction)
		}); err != nil {
			t.Fatal(err)
		}

		have, err := s.SelectAuction(ctx, auction.Address)
		if err != nil {
			t.Fatal(err)
		}
		if have.BidCount != 1 {
			t.Fatalf("want bid count 1, have %d", have.BidCount)
		}

		if _, err := s.SelectBid(ctx, auction.Address, bid.Bidder); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("TransactRollback", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		var (
			bid  *core.Bid
			boom = errors.New("boom")
		)
		err := s.Transact(ctx, func(tx store.Store) error {
			bid = NewBid(t, tx, auction)
			auction.BidCount = 1
			if err := tx.UpdateAuction(ctx, auction); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("want %v, have %v", boom, err)
		}

		have, err := s.SelectAuction(ctx, auction.Address)
		if err != nil {
			t.Fatal(err)
		}
		if have.BidCount != 0 {
			t.Fatalf("want bid count 0 after rollback, have %d", have.BidCount)
		}

		_, err = s.SelectBid(ctx, auction.Address, bid.Bidder)
		if want := store.ErrNotFound; !errors.Is(err, want) {
			t.Fatalf("want %v, have %v", want, err)
		}
	})

	t.Run("TransactReadsOwnWrites", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		if err := s.Transact(ctx, func(tx store.Store) error {
			bid := NewBid(t, tx, auction)
			have, err := tx.SelectBid(ctx, auction.Address, bid.Bidder)
			if err != nil {
				return err
			}
			if diff := cmp.Diff(have, bid); diff != "" {
				t.Errorf("mismatch: %s", diff)
			}
			return nil
		}); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("ReturnedRecordsAreCopies", func(t *testing.T) {
		s := makeStore(t)
		auction := NewAuction(t, s)

		have, err := s.SelectAuction(ctx, auction.Address)
		if err != nil {
			t.Fatal(err)
		}
		have.BidCount = 99

		again, err := s.SelectAuction(ctx, auction.Address)
		if err != nil {
			t.Fatal(err)
		}
		if again.BidCount != 0 {
			t.Fatalf("store aliased returned record")
		}
	})
}
