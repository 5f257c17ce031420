package core

import (
	"math"
	"time"
)

// ValidateSchedule checks the creation-time constraints that need no
// collaborator: end > start > now and a non-zero escrow amount.
func ValidateSchedule(start, end, now time.Time, escrowAmount uint64) error {
	if !start.After(now) {
		return ErrInvalidStartTime
	}
	if !end.After(start) {
		return ErrInvalidEndTime
	}
	if escrowAmount == 0 {
		return ErrInvalidTokenAmount
	}
	return nil
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Only Open → Closed is driven by this module; Closed → Settled and
// Open → Cancelled belong to settlement and cancellation flows. Terminal
// states never move again.
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	switch s {
	case StatusOpen:
		return next == StatusClosed || next == StatusCancelled
	case StatusClosed:
		return next == StatusSettled
	default:
		return false
	}
}

// BidRequest holds the plaintext facts about an incoming bid that are checked
// before any encrypted computation or fund movement.
type BidRequest struct {
	BidMint  Address
	BidVault Address
	Payload  []byte
}

// CheckBid applies the place-bid preconditions in order: status, time
// window [StartTime, EndTime), bid mint, bid vault, non-empty payload.
func (a *Auction) CheckBid(now time.Time, req BidRequest) error {
	if a.Status != StatusOpen {
		return ErrAuctionNotOpen
	}
	if now.Before(a.StartTime) {
		return ErrAuctionNotStarted
	}
	if !now.Before(a.EndTime) {
		return ErrAuctionEnded
	}
	if req.BidMint != a.BidMint {
		return ErrInvalidBidMint
	}
	if req.BidVault != a.BidVault {
		return ErrInvalidBidVault
	}
	if len(req.Payload) == 0 {
		return ErrInvalidBidAmount
	}
	return nil
}

// CheckClose applies the close preconditions: organizer only, still open,
// and now ≥ EndTime. A second close therefore fails with ErrAuctionNotOpen.
func (a *Auction) CheckClose(caller Address, now time.Time) error {
	if caller != a.Organizer {
		return ErrUnauthorized
	}
	if a.Status != StatusOpen {
		return ErrAuctionNotOpen
	}
	if now.Before(a.EndTime) {
		return ErrAuctionNotEnded
	}
	return nil
}

// CheckResolvable reports whether winners can be resolved: the reserve must
// have been evaluated, which happens on close.
func (a *Auction) CheckResolvable() error {
	if a.Status != StatusClosed && a.Status != StatusSettled {
		return ErrAuctionNotClosed
	}
	if a.ReserveMet == nil {
		return ErrAuctionNotClosed
	}
	return nil
}

// MarkClosed records the reserve outcome and moves the auction to Closed.
func (a *Auction) MarkClosed(reserveMet BoolHandle) error {
	if !a.Status.CanTransitionTo(StatusClosed) {
		return ErrAuctionNotOpen
	}
	a.ReserveMet = &reserveMet
	a.Status = StatusClosed
	return nil
}

// StampSubmission returns the submission time for a bid arriving at now and
// records it. Stamps are strictly increasing per auction, so no two bids
// share an encrypted timestamp and the leader is always unique.
func (a *Auction) StampSubmission(now time.Time) time.Time {
	ts := now
	if !ts.After(a.LastBidAt) {
		ts = a.LastBidAt.Add(time.Nanosecond)
	}
	a.LastBidAt = ts
	return ts
}

// SubmissionValue is the plaintext encrypted as a bid's submission
// timestamp: unix nanoseconds.
func SubmissionValue(ts time.Time) uint64 {
	return uint64(ts.UnixNano())
}

// incrementBidCount is the overflow-checked bid counter increment.
func incrementBidCount(n uint32) (uint32, error) {
	if n == math.MaxUint32 {
		return n, ErrMathOverflow
	}
	return n + 1, nil
}
