package core

import (
	"context"
	"fmt"
)

// EvaluateReserve computes the encrypted predicate highest ≥ reserve. It runs
// once per auction, at close, against the final leader; the result is never
// decrypted here.
func EvaluateReserve(ctx context.Context, cc ConfidentialCompute, signer Address, highest Handle, reservePrice uint64) (BoolHandle, error) {
	reserve, err := cc.Encrypt(ctx, signer, reservePrice)
	if err != nil {
		return BoolHandle{}, fmt.Errorf("%w: encrypt reserve price: %w", ErrComputeFailed, err)
	}

	met, err := cc.CompareGE(ctx, signer, highest, reserve)
	if err != nil {
		return BoolHandle{}, fmt.Errorf("%w: compare highest with reserve: %w", ErrComputeFailed, err)
	}

	return met, nil
}

// Close evaluates the reserve over the final leader and transitions the
// auction to Closed. Callers must have passed CheckClose.
func (a *Auction) Close(ctx context.Context, cc ConfidentialCompute, signer Address) error {
	if !a.Status.CanTransitionTo(StatusClosed) {
		return ErrAuctionNotOpen
	}

	met, err := EvaluateReserve(ctx, cc, signer, a.HighestBid, a.ReservePrice)
	if err != nil {
		return err
	}

	return a.MarkClosed(met)
}
