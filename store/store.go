package store

import (
	"context"
	"errors"

	"github.com/cloudx-io/confidentialbid/core"
)

// Store persists auctions and bids. Every auction operation runs inside one
// Transact call; an error returned from the callback discards all writes made
// through the transaction's Store.
type Store interface {
	Transact(context.Context, func(Store) error) error

	Ping(ctx context.Context) error

	InsertAuction(ctx context.Context, a *core.Auction) error
	UpdateAuction(ctx context.Context, a *core.Auction) error
	SelectAuction(ctx context.Context, addr core.Address) (*core.Auction, error)
	ListAuctions(ctx context.Context) ([]*core.Auction, error)

	InsertBid(ctx context.Context, b *core.Bid) error
	UpdateBid(ctx context.Context, b *core.Bid) error
	SelectBid(ctx context.Context, auction, bidder core.Address) (*core.Bid, error)
	ListBids(ctx context.Context, auction core.Address) ([]*core.Bid, error)
}

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)
