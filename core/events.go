package core

import (
	"time"
)

// Event is a notification for external indexers.
type Event interface {
	EventName() string
}

// AuctionCreated is emitted once an auction is initialized and its item is
// escrowed.
type AuctionCreated struct {
	AuctionID    uint64      `json:"auction_id"`
	Auction      Address     `json:"auction"`
	Organizer    Address     `json:"organizer"`
	Mint         Address     `json:"mint"`
	Amount       uint64      `json:"amount"`
	Decimals     uint8       `json:"decimals"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      time.Time   `json:"end_time"`
	ReservePrice uint64      `json:"reserve_price"`
	Kind         AuctionKind `json:"auction_kind"`
	BidMint      Address     `json:"bid_mint"`
}

// AuctionClosed is emitted when the organizer closes an auction.
type AuctionClosed struct {
	AuctionID uint64    `json:"auction_id"`
	Auction   Address   `json:"auction"`
	Organizer Address   `json:"organizer"`
	Timestamp time.Time `json:"timestamp"`
}

// BidPlaced is emitted for every accepted bid. It carries no bid value.
type BidPlaced struct {
	Auction  Address `json:"auction"`
	Bidder   Address `json:"bidder"`
	BidCount uint32  `json:"bid_count"`
}

// WinnerChecked is emitted whenever a bidder's winner predicate is derived.
type WinnerChecked struct {
	Auction      Address    `json:"auction"`
	Bidder       Address    `json:"bidder"`
	WinnerHandle BoolHandle `json:"winner_handle"`
}

func (AuctionCreated) EventName() string { return "auction_created" }
func (AuctionClosed) EventName() string  { return "auction_closed" }
func (BidPlaced) EventName() string      { return "bid_placed" }
func (WinnerChecked) EventName() string  { return "winner_checked" }
