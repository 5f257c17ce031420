package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/metrics"
	"github.com/cloudx-io/confidentialbid/store"
)

// Store keeps encoded records in memory. Transactions are serialized and
// work on a copy of the state that replaces the original only on success.
type Store struct {
	mu    *sync.Mutex // nil inside a transaction, which already holds it
	state *state
}

type state struct {
	auctions map[core.Address][]byte
	bids     map[bidKey][]byte
	order    map[core.Address][]core.Address // auction -> bidders, insertion order
}

type bidKey struct {
	auction core.Address
	bidder  core.Address
}

var _ store.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		mu: &sync.Mutex{},
		state: &state{
			auctions: map[core.Address][]byte{},
			bids:     map[bidKey][]byte{},
			order:    map[core.Address][]core.Address{},
		},
	}
}

// Records are immutable byte slices, so copying the maps is enough.
func (st *state) clone() *state {
	c := &state{
		auctions: make(map[core.Address][]byte, len(st.auctions)),
		bids:     make(map[bidKey][]byte, len(st.bids)),
		order:    make(map[core.Address][]core.Address, len(st.order)),
	}
	for k, v := range st.auctions {
		c.auctions[k] = v
	}
	for k, v := range st.bids {
		c.bids[k] = v
	}
	for k, v := range st.order {
		c.order[k] = append([]core.Address(nil), v...)
	}
	return c
}

func (s *Store) lock() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) Transact(ctx context.Context, f func(store.Store) error) error {
	begin := time.Now()
	unlock := s.lock()
	defer unlock()
	metrics.OpWait("memstore_transact", time.Since(begin))

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &Store{state: s.state.clone()}
	if err := f(tx); err != nil {
		return err
	}

	s.state = tx.state
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) InsertAuction(ctx context.Context, a *core.Auction) error {
	defer s.lock()()

	if _, ok := s.state.auctions[a.Address]; ok {
		return store.ErrAlreadyExists
	}

	b, err := store.EncodeAuction(a)
	if err != nil {
		return err
	}

	s.state.auctions[a.Address] = b
	return nil
}

func (s *Store) UpdateAuction(ctx context.Context, a *core.Auction) error {
	defer s.lock()()

	if _, ok := s.state.auctions[a.Address]; !ok {
		return store.ErrNotFound
	}

	b, err := store.EncodeAuction(a)
	if err != nil {
		return err
	}

	s.state.auctions[a.Address] = b
	return nil
}

func (s *Store) SelectAuction(ctx context.Context, addr core.Address) (*core.Auction, error) {
	defer s.lock()()

	b, ok := s.state.auctions[addr]
	if !ok {
		return nil, store.ErrNotFound
	}

	return store.DecodeAuction(b)
}

func (s *Store) ListAuctions(ctx context.Context) ([]*core.Auction, error) {
	defer s.lock()()

	auctions := make([]*core.Auction, 0, len(s.state.auctions))
	for _, b := range s.state.auctions {
		a, err := store.DecodeAuction(b)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}

	sort.Slice(auctions, func(i, j int) bool {
		if !auctions[i].CreatedAt.Equal(auctions[j].CreatedAt) {
			return auctions[i].CreatedAt.Before(auctions[j].CreatedAt)
		}
		return auctions[i].Address < auctions[j].Address
	})

	return auctions, nil
}

func (s *Store) InsertBid(ctx context.Context, b *core.Bid) error {
	defer s.lock()()

	key := bidKey{b.Auction, b.Bidder}
	if _, ok := s.state.bids[key]; ok {
		return store.ErrAlreadyExists
	}

	enc, err := store.EncodeBid(b)
	if err != nil {
		return err
	}

	s.state.bids[key] = enc
	s.state.order[b.Auction] = append(s.state.order[b.Auction], b.Bidder)
	return nil
}

func (s *Store) UpdateBid(ctx context.Context, b *core.Bid) error {
	defer s.lock()()

	key := bidKey{b.Auction, b.Bidder}
	if _, ok := s.state.bids[key]; !ok {
		return store.ErrNotFound
	}

	enc, err := store.EncodeBid(b)
	if err != nil {
		return err
	}

	s.state.bids[key] = enc
	return nil
}

func (s *Store) SelectBid(ctx context.Context, auction, bidder core.Address) (*core.Bid, error) {
	defer s.lock()()

	b, ok := s.state.bids[bidKey{auction, bidder}]
	if !ok {
		return nil, store.ErrNotFound
	}

	return store.DecodeBid(b)
}

func (s *Store) ListBids(ctx context.Context, auction core.Address) ([]*core.Bid, error) {
	defer s.lock()()

	bidders := s.state.order[auction]
	bids := make([]*core.Bid, 0, len(bidders))
	for _, bidder := range bidders {
		b, err := store.DecodeBid(s.state.bids[bidKey{auction, bidder}])
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}

	return bids, nil
}
