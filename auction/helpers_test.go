package auction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/confidentialbid/auction"
	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/events"
	"github.com/cloudx-io/confidentialbid/ledger"
	"github.com/cloudx-io/confidentialbid/store"
	"github.com/cloudx-io/confidentialbid/store/memstore"
)

const (
	authority = core.Address("token-authority")
	organizer = core.Address("organizer")
	itemMint  = core.Address("item-mint")
	bidMint   = core.Address("bid-mint")
	plainMint = core.Address("plain-mint")
	auditor   = core.Address("auditor")
)

var (
	t0    = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	start = t0.Add(time.Minute)
	end   = t0.Add(time.Hour)
)

var testKeys *confidential.KeyManager

type fixture struct {
	t      *testing.T
	now    time.Time
	store  *memstore.Store
	engine *confidential.Engine
	ledger *ledger.Ledger
	events *events.Recorder
	svc    *auction.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	if testKeys == nil {
		km, err := confidential.NewKeyManager()
		assert.NoError(t, err)
		testKeys = km
	}

	f := &fixture{
		t:      t,
		now:    t0,
		store:  memstore.NewStore(),
		engine: confidential.NewEngine(testKeys),
		ledger: ledger.New(authority, nil),
		events: &events.Recorder{},
	}

	assert.NoError(t, f.ledger.RegisterMint(ledger.Mint{Address: itemMint, Decimals: 6}))
	assert.NoError(t, f.ledger.RegisterMint(ledger.Mint{Address: plainMint, Decimals: 6}))
	assert.NoError(t, f.ledger.RegisterMint(ledger.Mint{Address: bidMint, Decimals: 6, Confidential: true, Authority: authority}))
	assert.NoError(t, f.ledger.MintTo(organizer, itemMint, 1_000))

	svc, err := auction.NewService(auction.Config{
		Store:   f.store,
		Compute: f.engine,
		Escrow:  f.ledger,
		Sink:    f.events,
		Clock:   auction.ClockFunc(func() time.Time { return f.now }),
	})
	assert.NoError(t, err)
	f.svc = svc

	return f
}

func (f *fixture) createParams(kind core.AuctionKind, reserve uint64) auction.CreateParams {
	return auction.CreateParams{
		Organizer:    organizer,
		AuctionID:    1,
		ItemMint:     itemMint,
		BidMint:      bidMint,
		Amount:       10,
		ReservePrice: reserve,
		StartTime:    start,
		EndTime:      end,
		Kind:         kind,
	}
}

func (f *fixture) create(kind core.AuctionKind, reserve uint64) *core.Auction {
	f.t.Helper()
	f.now = t0
	a, err := f.svc.CreateAuction(context.Background(), f.createParams(kind, reserve))
	assert.NoError(f.t, err)
	return a
}

func (f *fixture) payload(amount uint64) []byte {
	f.t.Helper()
	b, err := confidential.EncryptAmount(f.engine.Keys().PublicKey, amount)
	assert.NoError(f.t, err)
	return b
}

func (f *fixture) bidParams(a *core.Auction, bidder core.Address, amount uint64) auction.PlaceBidParams {
	return auction.PlaceBidParams{
		Auction:  a.Address,
		Bidder:   bidder,
		BidMint:  a.BidMint,
		BidVault: a.BidVault,
		Payload:  f.payload(amount),
	}
}

func (f *fixture) bid(a *core.Auction, bidder core.Address, amount uint64) *core.Bid {
	f.t.Helper()
	b, err := f.svc.PlaceBid(context.Background(), f.bidParams(a, bidder, amount))
	assert.NoError(f.t, err)
	return b
}

// runAuction creates an auction, places amounts from bidders a, b, c... one
// second apart and closes it.
func (f *fixture) runAuction(kind core.AuctionKind, reserve uint64, amounts ...uint64) (*core.Auction, []*core.Bid) {
	f.t.Helper()
	ctx := context.Background()

	a := f.create(kind, reserve)

	var bids []*core.Bid
	for i, amount := range amounts {
		f.now = start.Add(time.Duration(i) * time.Second)
		bids = append(bids, f.bid(a, bidderName(i), amount))
	}

	f.now = end
	closed, err := f.svc.CloseAuction(ctx, a.Address, organizer)
	assert.NoError(f.t, err)
	return closed, bids
}

func bidderName(i int) core.Address {
	return core.Address("bidder-" + string(rune('a'+i)))
}

// plain decrypts h through a grant to the auditor.
func (f *fixture) plain(h core.Handle) uint64 {
	f.t.Helper()
	ctx := context.Background()
	assert.NoError(f.t, f.engine.GrantDecrypt(ctx, auditor, h, auditor))
	r, err := f.engine.Decrypt(ctx, auditor, h)
	assert.NoError(f.t, err)
	return r.Reveal.Value
}

func (f *fixture) isWinner(a *core.Auction, bidder core.Address) bool {
	f.t.Helper()
	b, err := f.svc.CheckWinner(context.Background(), auction.CheckWinnerParams{
		Auction: a.Address,
		Bidder:  bidder,
		Caller:  bidder,
	})
	assert.NoError(f.t, err)
	return f.plain(b.WinnerHandle.Handle()) == 1
}

// clearingPrice decrypts the clearing price as caller, using the caller's
// own grant.
func (f *fixture) clearingPrice(a *core.Auction, caller core.Address) uint64 {
	f.t.Helper()
	ctx := context.Background()
	h, err := f.svc.ClearingPrice(ctx, a.Address, caller)
	assert.NoError(f.t, err)
	r, err := f.engine.Decrypt(ctx, caller, h)
	assert.NoError(f.t, err)
	return r.Reveal.Value
}

var errCommitConflict = errors.New("could not serialize access")

// commitFailStore runs each transaction body and then fails the commit the
// way a serializable database does. The first retries attempts are retried,
// like pgstore retries SQLSTATE 40001; after that the commit fails with fail,
// or succeeds if fail is nil.
type commitFailStore struct {
	store.Store
	retries int
	fail    error
	runs    int
}

func (s *commitFailStore) Transact(ctx context.Context, f func(store.Store) error) error {
	for attempt := 0; ; attempt++ {
		err := s.Store.Transact(ctx, func(tx store.Store) error {
			s.runs++
			if err := f(tx); err != nil {
				return err
			}
			if attempt < s.retries {
				return errCommitConflict
			}
			return s.fail
		})
		if errors.Is(err, errCommitConflict) {
			continue
		}
		return err
	}
}

// withStore rebuilds the fixture's service over s.
func (f *fixture) withStore(s store.Store) {
	f.t.Helper()
	svc, err := auction.NewService(auction.Config{
		Store:   s,
		Compute: f.engine,
		Escrow:  f.ledger,
		Sink:    f.events,
		Clock:   auction.ClockFunc(func() time.Time { return f.now }),
	})
	assert.NoError(f.t, err)
	f.svc = svc
}
