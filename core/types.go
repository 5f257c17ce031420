package core

import (
	"fmt"
	"strings"
	"time"
)

// Address identifies an account: organizer, bidder, mint, vault, or a derived
// record address.
type Address string

// AuctionKind selects how the clearing price is derived.
type AuctionKind int

const (
	// FirstPrice: the winner pays their own bid.
	FirstPrice AuctionKind = iota
	// SecondPrice: the winner pays the second-highest bid (Vickrey).
	SecondPrice
)

func (k AuctionKind) String() string {
	switch k {
	case FirstPrice:
		return "first_price"
	case SecondPrice:
		return "second_price"
	default:
		return fmt.Sprintf("auction_kind(%d)", int(k))
	}
}

// ParseAuctionKind accepts the String form, plus the legacy "normal" and
// "vickrey" names.
func ParseAuctionKind(s string) (AuctionKind, error) {
	switch strings.ToLower(s) {
	case "first_price", "normal":
		return FirstPrice, nil
	case "second_price", "vickrey":
		return SecondPrice, nil
	default:
		return 0, fmt.Errorf("unknown auction kind %q", s)
	}
}

func (k AuctionKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *AuctionKind) UnmarshalText(b []byte) error {
	v, err := ParseAuctionKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// AuctionStatus is the lifecycle state of an auction.
type AuctionStatus int

const (
	StatusOpen AuctionStatus = iota
	StatusClosed
	StatusSettled   // reached only by settlement flows outside this module
	StatusCancelled // reached only by cancellation flows outside this module
)

func (s AuctionStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusSettled:
		return "settled"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("auction_status(%d)", int(s))
	}
}

func ParseAuctionStatus(s string) (AuctionStatus, error) {
	switch strings.ToLower(s) {
	case "open":
		return StatusOpen, nil
	case "closed":
		return StatusClosed, nil
	case "settled":
		return StatusSettled, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return 0, fmt.Errorf("unknown auction status %q", s)
	}
}

func (s AuctionStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *AuctionStatus) UnmarshalText(b []byte) error {
	v, err := ParseAuctionStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Auction is the single authoritative record of an auction, including the
// running encrypted leader state.
type Auction struct {
	Address   Address `json:"address" cbor:"address"`
	Organizer Address `json:"organizer" cbor:"organizer"`
	AuctionID uint64  `json:"auction_id" cbor:"auction_id"`

	ItemMint     Address `json:"item_mint" cbor:"item_mint"`
	ItemVault    Address `json:"item_vault" cbor:"item_vault"`
	ItemAmount   uint64  `json:"item_amount" cbor:"item_amount"`
	ItemDecimals uint8   `json:"item_decimals" cbor:"item_decimals"`
	BidMint      Address `json:"bid_mint" cbor:"bid_mint"`
	BidVault     Address `json:"bid_vault" cbor:"bid_vault"`

	StartTime time.Time `json:"start_time" cbor:"start_time"`
	EndTime   time.Time `json:"end_time" cbor:"end_time"`
	CreatedAt time.Time `json:"created_at" cbor:"created_at"`

	ReservePrice uint64      `json:"reserve_price" cbor:"reserve_price"`
	Kind         AuctionKind `json:"auction_kind" cbor:"auction_kind"`

	HighestBid       Handle  `json:"highest_bid" cbor:"highest_bid"`
	SecondHighestBid *Handle `json:"second_highest_bid,omitempty" cbor:"second_highest_bid,omitempty"`
	HighestTimestamp Handle  `json:"highest_timestamp" cbor:"highest_timestamp"`

	ReserveMet *BoolHandle `json:"reserve_met,omitempty" cbor:"reserve_met,omitempty"`

	// LastBidAt is the plaintext submission time of the latest bid. Bid
	// times are public; only amounts are sealed.
	LastBidAt time.Time `json:"last_bid_at" cbor:"last_bid_at"`

	BidCount uint32        `json:"bid_count" cbor:"bid_count"`
	Status   AuctionStatus `json:"status" cbor:"status"`
}

// Leader returns the current leader state.
func (a *Auction) Leader() LeaderState {
	return LeaderState{
		Highest:          a.HighestBid,
		SecondHighest:    a.SecondHighestBid,
		HighestTimestamp: a.HighestTimestamp,
	}
}

// Bid is one bidder's sealed bid in one auction. It is immutable after
// creation except for WinnerHandle.
type Bid struct {
	Address     Address `json:"address" cbor:"address"`
	Bidder      Address `json:"bidder" cbor:"bidder"`
	Auction     Address `json:"auction" cbor:"auction"`
	Amount      Handle  `json:"bid_amount" cbor:"bid_amount"`
	SubmittedAt Handle  `json:"submission_timestamp" cbor:"submission_timestamp"`

	WinnerHandle *BoolHandle `json:"winner_handle,omitempty" cbor:"winner_handle,omitempty"`
	Claimed      bool        `json:"claimed" cbor:"claimed"`

	CreatedAt time.Time `json:"created_at" cbor:"created_at"`
}
