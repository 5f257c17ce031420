package core

import (
	"context"
	"fmt"
)

// ResolveWinner derives the encrypted predicate "this bid is the unique
// winner":
//
//	amount == highest AND submitted_at == highest_timestamp AND reserve_met
//
// The timestamp equality keeps a later bid of equal value from also matching
// the leader. The result is a pure function of frozen state, so repeated calls
// are equivalent. The auction must have passed CheckResolvable.
func ResolveWinner(ctx context.Context, cc ConfidentialCompute, signer Address, a *Auction, bid *Bid) (BoolHandle, error) {
	if err := a.CheckResolvable(); err != nil {
		return BoolHandle{}, err
	}

	isHighest, err := cc.CompareEQ(ctx, signer, bid.Amount, a.HighestBid)
	if err != nil {
		return BoolHandle{}, fmt.Errorf("%w: compare bid with highest: %w", ErrComputeFailed, err)
	}

	isEarliest, err := cc.CompareEQ(ctx, signer, bid.SubmittedAt, a.HighestTimestamp)
	if err != nil {
		return BoolHandle{}, fmt.Errorf("%w: compare bid time with leader time: %w", ErrComputeFailed, err)
	}

	isLeader, err := cc.And(ctx, signer, isHighest, isEarliest)
	if err != nil {
		return BoolHandle{}, fmt.Errorf("%w: and leader predicates: %w", ErrComputeFailed, err)
	}

	winner, err := cc.And(ctx, signer, isLeader, *a.ReserveMet)
	if err != nil {
		return BoolHandle{}, fmt.Errorf("%w: and reserve predicate: %w", ErrComputeFailed, err)
	}

	return winner, nil
}
