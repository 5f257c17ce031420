package core_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/confidentialbid/core"
)

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		end    time.Time
		amount uint64
		want   error
	}{
		{name: "valid", start: start, end: end, amount: 1, want: nil},
		{name: "start equals now", start: t0, end: end, amount: 1, want: core.ErrInvalidStartTime},
		{name: "start in the past", start: t0.Add(-time.Second), end: end, amount: 1, want: core.ErrInvalidStartTime},
		{name: "end equals start", start: start, end: start, amount: 1, want: core.ErrInvalidEndTime},
		{name: "end before start", start: start, end: start.Add(-time.Second), amount: 1, want: core.ErrInvalidEndTime},
		{name: "zero amount", start: start, end: end, amount: 0, want: core.ErrInvalidTokenAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := core.ValidateSchedule(tt.start, tt.end, t0, tt.amount)
			if tt.want == nil {
				check.NoError(t, err)
				return
			}
			check.True(t, errors.Is(err, tt.want))
		})
	}
}

func TestCheckBid(t *testing.T) {
	payload := []byte("sealed")
	ok := core.BidRequest{BidMint: "bid-mint", Payload: payload}

	tests := []struct {
		name   string
		now    time.Time
		status core.AuctionStatus
		req    func(a *core.Auction) core.BidRequest
		want   error
	}{
		{name: "at start", now: start, want: nil},
		{name: "just before end", now: end.Add(-time.Nanosecond), want: nil},
		{name: "before start", now: start.Add(-time.Nanosecond), want: core.ErrAuctionNotStarted},
		{name: "at end", now: end, want: core.ErrAuctionEnded},
		{name: "closed", now: start, status: core.StatusClosed, want: core.ErrAuctionNotOpen},
		{name: "closed after end", now: end, status: core.StatusClosed, want: core.ErrAuctionNotOpen},
		{
			name: "wrong mint",
			now:  start,
			req: func(a *core.Auction) core.BidRequest {
				return core.BidRequest{BidMint: "other-mint", BidVault: a.BidVault, Payload: payload}
			},
			want: core.ErrInvalidBidMint,
		},
		{
			name: "wrong vault",
			now:  start,
			req: func(a *core.Auction) core.BidRequest {
				return core.BidRequest{BidMint: a.BidMint, BidVault: "elsewhere", Payload: payload}
			},
			want: core.ErrInvalidBidVault,
		},
		{
			name: "empty payload",
			now:  start,
			req: func(a *core.Auction) core.BidRequest {
				return core.BidRequest{BidMint: a.BidMint, BidVault: a.BidVault}
			},
			want: core.ErrInvalidBidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAuction(core.FirstPrice, 0)
			a.Status = tt.status

			req := ok
			req.BidVault = a.BidVault
			if tt.req != nil {
				req = tt.req(a)
			}

			err := a.CheckBid(tt.now, req)
			if tt.want == nil {
				check.NoError(t, err)
				return
			}
			check.True(t, errors.Is(err, tt.want))
		})
	}
}

func TestCheckClose(t *testing.T) {
	a := newAuction(core.FirstPrice, 0)

	check.True(t, errors.Is(a.CheckClose("intruder", end), core.ErrUnauthorized))
	check.True(t, errors.Is(a.CheckClose("organizer", end.Add(-time.Nanosecond)), core.ErrAuctionNotEnded))
	check.NoError(t, a.CheckClose("organizer", end))

	a.Status = core.StatusClosed
	check.True(t, errors.Is(a.CheckClose("organizer", end.Add(time.Hour)), core.ErrAuctionNotOpen))

	// Authorization is checked before status.
	check.True(t, errors.Is(a.CheckClose("intruder", end), core.ErrUnauthorized))
}

func TestStatusTransitions(t *testing.T) {
	allowed := map[[2]core.AuctionStatus]bool{
		{core.StatusOpen, core.StatusClosed}:    true,
		{core.StatusOpen, core.StatusCancelled}: true,
		{core.StatusClosed, core.StatusSettled}: true,
	}
	all := []core.AuctionStatus{core.StatusOpen, core.StatusClosed, core.StatusSettled, core.StatusCancelled}

	for _, from := range all {
		for _, to := range all {
			check.Equal(t, allowed[[2]core.AuctionStatus{from, to}], from.CanTransitionTo(to))
		}
	}
}

func TestMarkClosed(t *testing.T) {
	a := newAuction(core.FirstPrice, 0)
	met := core.NewBoolHandle(uuid.New())

	check.True(t, errors.Is(a.CheckResolvable(), core.ErrAuctionNotClosed))

	assert.NoError(t, a.MarkClosed(met))
	check.Equal(t, core.StatusClosed, a.Status)
	assert.NotNil(t, a.ReserveMet)
	check.True(t, met.Equal(*a.ReserveMet))
	check.NoError(t, a.CheckResolvable())

	check.True(t, errors.Is(a.MarkClosed(met), core.ErrAuctionNotOpen))

	a.Status = core.StatusSettled
	check.NoError(t, a.CheckResolvable())
}

func TestApplyBid_Overflow(t *testing.T) {
	e := newEngine(t)
	a := newAuction(core.FirstPrice, 0)
	a.BidCount = math.MaxUint32
	before := *a

	h, err := e.Encrypt(context.Background(), program, 10)
	assert.NoError(t, err)
	e.ResetOps()

	err = a.ApplyBid(context.Background(), e, program, h, h)
	check.True(t, errors.Is(err, core.ErrMathOverflow))
	check.Equal(t, before.BidCount, a.BidCount)
	check.True(t, before.HighestBid.Equal(a.HighestBid))
	check.Equal(t, 0, len(e.Ops()))
}

func TestParseKindAndStatus(t *testing.T) {
	for _, s := range []string{"first_price", "normal", "FIRST_PRICE"} {
		k, err := core.ParseAuctionKind(s)
		assert.NoError(t, err)
		check.Equal(t, core.FirstPrice, k)
	}
	for _, s := range []string{"second_price", "vickrey"} {
		k, err := core.ParseAuctionKind(s)
		assert.NoError(t, err)
		check.Equal(t, core.SecondPrice, k)
	}
	_, err := core.ParseAuctionKind("dutch")
	check.Error(t, err)

	for _, s := range []core.AuctionStatus{core.StatusOpen, core.StatusClosed, core.StatusSettled, core.StatusCancelled} {
		parsed, err := core.ParseAuctionStatus(s.String())
		assert.NoError(t, err)
		check.Equal(t, s, parsed)
	}
}

func TestStampSubmission(t *testing.T) {
	a := newAuction(core.FirstPrice, 0)

	first := a.StampSubmission(start)
	check.True(t, first.Equal(start))

	// Same clock reading: bumped past the previous stamp.
	second := a.StampSubmission(start)
	check.True(t, second.After(first))

	// Clock going backwards still yields an increasing stamp.
	third := a.StampSubmission(start.Add(-time.Hour))
	check.True(t, third.After(second))

	later := a.StampSubmission(start.Add(time.Minute))
	check.True(t, later.Equal(start.Add(time.Minute)))
	check.True(t, a.LastBidAt.Equal(later))

	check.True(t, core.SubmissionValue(second) > core.SubmissionValue(first))
}
