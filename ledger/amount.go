package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/confidentialbid/core"
)

var maxUint64 = decimal.NewFromBigInt(new(big.Int).SetUint64(^uint64(0)), 0)

// UIAmount renders a raw amount with the mint's decimals, e.g. 1500000 with
// 6 decimals is 1.5.
func UIAmount(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}

// ParseUIAmount is the inverse of UIAmount. Amounts with more fractional
// digits than the mint supports are rejected rather than rounded.
func ParseUIAmount(s string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q: %w", s, ErrInvalidAmount)
	}

	raw := d.Shift(int32(decimals))
	if !raw.Equal(raw.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimals: %w", s, decimals, ErrInvalidAmount)
	}
	if raw.GreaterThan(maxUint64) {
		return 0, fmt.Errorf("amount %q: %w", s, ErrInvalidAmount)
	}

	return raw.BigInt().Uint64(), nil
}

// UIAmount renders amount of mint.
func (l *Ledger) UIAmount(ctx context.Context, mint core.Address, amount uint64) (decimal.Decimal, error) {
	m, err := l.Mint(ctx, mint)
	if err != nil {
		return decimal.Zero, err
	}
	return UIAmount(amount, m.Decimals), nil
}

func (l *Ledger) uiAmountLocked(m Mint, amount uint64) string {
	return UIAmount(amount, m.Decimals).String()
}
