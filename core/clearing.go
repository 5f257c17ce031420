package core

import (
	"context"
	"fmt"
)

// ClearingPrice returns the encrypted price the winner would pay. FirstPrice
// charges the winning bid itself; SecondPrice charges the second-highest bid
// frozen at close, or the reserve price when only one bid was placed.
//
// The caller is expected to pass the winning bid; nothing here checks it,
// since winning is only known under encryption.
func ClearingPrice(ctx context.Context, cc ConfidentialCompute, signer Address, a *Auction, winning *Bid) (Handle, error) {
	if err := a.CheckResolvable(); err != nil {
		return Handle{}, err
	}

	switch a.Kind {
	case FirstPrice:
		return winning.Amount, nil

	case SecondPrice:
		if a.SecondHighestBid != nil {
			return *a.SecondHighestBid, nil
		}
		reserve, err := cc.Encrypt(ctx, signer, a.ReservePrice)
		if err != nil {
			return Handle{}, fmt.Errorf("%w: encrypt reserve price: %w", ErrComputeFailed, err)
		}
		return reserve, nil

	default:
		return Handle{}, fmt.Errorf("unsupported auction kind %s", a.Kind)
	}
}
