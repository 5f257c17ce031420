package core

import (
	"context"
	"fmt"
)

// LeaderState is the running encrypted top-2 of an auction plus the
// submission time of the current leader.
type LeaderState struct {
	Highest          Handle
	SecondHighest    *Handle // nil until two bids have been seen
	HighestTimestamp Handle
}

// UpdateLeader folds one new bid into the leader state using only oblivious
// comparisons and selections. It is insertion into a bounded top-2 list:
//
//	gt      = new > highest     (new >= highest for the first bid)
//	hi'     = gt ? new : highest
//	prior   = second ?? 0
//	cand    = (new > prior) ? new : prior
//	second' = gt ? highest : cand
//	ts'     = gt ? newTS : highestTS
//
// The same six collaborator calls are issued for every bid, whatever its
// value. Ties keep the earlier leader because the comparison is strict. The
// first bid always takes the lead, including a bid of zero.
//
// seen is the number of bids already folded in; SecondHighest is only
// populated once seen+1 ≥ 2.
func UpdateLeader(ctx context.Context, cc ConfidentialCompute, signer Address, prev LeaderState, seen uint32, newBid, newTS Handle) (LeaderState, error) {
	compare := cc.CompareGT
	if seen == 0 {
		compare = cc.CompareGE
	}

	isNewHighest, err := compare(ctx, signer, newBid, prev.Highest)
	if err != nil {
		return prev, fmt.Errorf("%w: compare new bid with highest: %w", ErrComputeFailed, err)
	}

	highest, err := cc.Select(ctx, signer, isNewHighest, newBid, prev.Highest)
	if err != nil {
		return prev, fmt.Errorf("%w: select highest: %w", ErrComputeFailed, err)
	}

	// Until a second bid exists the runner-up is the encrypted zero.
	var priorSecond Handle
	if prev.SecondHighest != nil {
		priorSecond = *prev.SecondHighest
	}

	isNewGTSecond, err := cc.CompareGT(ctx, signer, newBid, priorSecond)
	if err != nil {
		return prev, fmt.Errorf("%w: compare new bid with second: %w", ErrComputeFailed, err)
	}

	candidate, err := cc.Select(ctx, signer, isNewGTSecond, newBid, priorSecond)
	if err != nil {
		return prev, fmt.Errorf("%w: select second candidate: %w", ErrComputeFailed, err)
	}

	// A displaced highest demotes to second.
	second, err := cc.Select(ctx, signer, isNewHighest, prev.Highest, candidate)
	if err != nil {
		return prev, fmt.Errorf("%w: select second: %w", ErrComputeFailed, err)
	}

	timestamp, err := cc.Select(ctx, signer, isNewHighest, newTS, prev.HighestTimestamp)
	if err != nil {
		return prev, fmt.Errorf("%w: select leader timestamp: %w", ErrComputeFailed, err)
	}

	next := LeaderState{
		Highest:          highest,
		HighestTimestamp: timestamp,
	}
	if seen >= 1 {
		next.SecondHighest = &second
	}
	return next, nil
}

// ApplyBid runs the extrema update for one accepted bid and commits it to the
// auction together with the overflow-checked bid count. On error the auction
// is left untouched.
func (a *Auction) ApplyBid(ctx context.Context, cc ConfidentialCompute, signer Address, amount, submittedAt Handle) error {
	count, err := incrementBidCount(a.BidCount)
	if err != nil {
		return err
	}

	next, err := UpdateLeader(ctx, cc, signer, a.Leader(), a.BidCount, amount, submittedAt)
	if err != nil {
		return err
	}

	a.HighestBid = next.Highest
	a.SecondHighestBid = next.SecondHighest
	a.HighestTimestamp = next.HighestTimestamp
	a.BidCount = count
	return nil
}
