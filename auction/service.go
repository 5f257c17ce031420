// Package auction runs the auction operations against a record store, a
// confidential compute service and an escrow. Each operation is one store
// transaction; notifications go out only after it commits.
package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/events"
	"github.com/cloudx-io/confidentialbid/metrics"
	"github.com/cloudx-io/confidentialbid/store"
)

// Escrow moves tokens into and out of auction vaults.
type Escrow interface {
	// IsConfidentialMint reports whether mint is a confidential token issued
	// by the recognized authority.
	IsConfidentialMint(ctx context.Context, mint core.Address) (bool, error)
	Decimals(ctx context.Context, mint core.Address) (uint8, error)
	Balance(ctx context.Context, owner, mint core.Address) (uint64, error)

	// Transfer and TransferConfidential are idempotent per ref, since the
	// store may run a transaction body more than once. Revert undoes the
	// transfer applied under ref, if any.
	Transfer(ctx context.Context, ref string, from, to, mint core.Address, amount uint64) error
	TransferConfidential(ctx context.Context, ref string, from, to, mint core.Address, amount core.Handle) error
	Revert(ctx context.Context, ref string) error
}

type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

type Config struct {
	Store   store.Store
	Compute core.ConfidentialCompute
	Escrow  Escrow

	// Optional.
	Sink   events.Sink
	Clock  Clock
	Logger log.Logger
}

func (cfg *Config) validate() error {
	var result error
	if cfg.Store == nil {
		result = multierror.Append(result, errors.New("store is required"))
	}
	if cfg.Compute == nil {
		result = multierror.Append(result, errors.New("compute is required"))
	}
	if cfg.Escrow == nil {
		result = multierror.Append(result, errors.New("escrow is required"))
	}
	if result != nil {
		return result
	}

	if cfg.Sink == nil {
		cfg.Sink = events.Discard
	}
	if cfg.Clock == nil {
		cfg.Clock = ClockFunc(time.Now)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNopLogger()
	}
	return nil
}

type Service struct {
	store   store.Store
	compute core.ConfidentialCompute
	escrow  Escrow
	sink    events.Sink
	clock   Clock
	logger  log.Logger
}

func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		store:   cfg.Store,
		compute: cfg.Compute,
		escrow:  cfg.Escrow,
		sink:    cfg.Sink,
		clock:   cfg.Clock,
		logger:  log.With(cfg.Logger, "module", "auction"),
	}, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

//
//
//

type CreateParams struct {
	Organizer    core.Address     `json:"organizer"`
	AuctionID    uint64           `json:"auction_id"`
	ItemMint     core.Address     `json:"item_mint"`
	BidMint      core.Address     `json:"bid_mint"`
	Amount       uint64           `json:"amount"`
	ReservePrice uint64           `json:"reserve_price"`
	StartTime    time.Time        `json:"start_time"`
	EndTime      time.Time        `json:"end_time"`
	Kind         core.AuctionKind `json:"auction_kind"`
}

// CreateAuction opens an auction and escrows the organizer's item tokens in
// the auction's item vault.
func (s *Service) CreateAuction(ctx context.Context, p CreateParams) (_ *core.Auction, err error) {
	defer observe("create", &err)

	now := s.clock.Now()
	addr := core.AuctionAddress(p.Organizer, p.AuctionID)

	var (
		created *core.Auction
		ref     = transferRef("create", addr)
		moved   bool
	)
	if err := s.store.Transact(ctx, func(tx store.Store) error {
		confidential, err := s.escrow.IsConfidentialMint(ctx, p.BidMint)
		if err != nil {
			return fmt.Errorf("%w: check bid mint: %w", core.ErrEscrowFailed, err)
		}
		if !confidential {
			return core.ErrInvalidBidMint
		}

		if err := core.ValidateSchedule(p.StartTime, p.EndTime, now, p.Amount); err != nil {
			return err
		}

		switch _, err := tx.SelectAuction(ctx, addr); {
		case err == nil:
			return core.ErrAuctionExists
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("select auction: %w", err)
		}

		balance, err := s.escrow.Balance(ctx, p.Organizer, p.ItemMint)
		if err != nil {
			return fmt.Errorf("%w: organizer balance: %w", core.ErrEscrowFailed, err)
		}
		if balance < p.Amount {
			return core.ErrInsufficientFunds
		}

		decimals, err := s.escrow.Decimals(ctx, p.ItemMint)
		if err != nil {
			return fmt.Errorf("%w: item decimals: %w", core.ErrEscrowFailed, err)
		}

		a := &core.Auction{
			Address:      addr,
			Organizer:    p.Organizer,
			AuctionID:    p.AuctionID,
			ItemMint:     p.ItemMint,
			ItemVault:    core.VaultAddress(addr, p.ItemMint),
			ItemAmount:   p.Amount,
			ItemDecimals: decimals,
			BidMint:      p.BidMint,
			BidVault:     core.VaultAddress(addr, p.BidMint),
			StartTime:    p.StartTime,
			EndTime:      p.EndTime,
			CreatedAt:    now,
			ReservePrice: p.ReservePrice,
			Kind:         p.Kind,
			Status:       core.StatusOpen,
		}

		if err := s.escrow.Transfer(ctx, ref, p.Organizer, a.ItemVault, p.ItemMint, p.Amount); err != nil {
			return fmt.Errorf("%w: escrow item: %w", core.ErrEscrowFailed, err)
		}
		moved = true

		if err := tx.InsertAuction(ctx, a); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return core.ErrAuctionExists
			}
			return fmt.Errorf("insert auction: %w", err)
		}

		created = a
		return nil
	}); err != nil {
		if moved {
			s.revert(ctx, ref)
		}
		return nil, err
	}

	level.Info(s.logger).Log("msg", "auction created", "auction", created.Address, "organizer", created.Organizer, "kind", created.Kind)

	s.publish(ctx, core.AuctionCreated{
		AuctionID:    created.AuctionID,
		Auction:      created.Address,
		Organizer:    created.Organizer,
		Mint:         created.ItemMint,
		Amount:       created.ItemAmount,
		Decimals:     created.ItemDecimals,
		StartTime:    created.StartTime,
		EndTime:      created.EndTime,
		ReservePrice: created.ReservePrice,
		Kind:         created.Kind,
		BidMint:      created.BidMint,
	})

	return created, nil
}

type PlaceBidParams struct {
	Auction  core.Address `json:"auction"`
	Bidder   core.Address `json:"bidder"`
	BidMint  core.Address `json:"bid_mint"`
	BidVault core.Address `json:"bid_vault"`

	// Payload is the client-encrypted bid amount, handed to Ingest as is.
	Payload []byte `json:"payload"`

	// Reveal grants the bidder decryption rights on their own bid amount.
	Reveal bool `json:"reveal"`
}

// PlaceBid records a sealed bid, folds it into the auction's encrypted
// leader state and moves the encrypted amount into the bid vault.
func (s *Service) PlaceBid(ctx context.Context, p PlaceBidParams) (_ *core.Bid, err error) {
	defer observe("place_bid", &err)

	now := s.clock.Now()

	var (
		placed *core.Bid
		count  uint32
		ref    = transferRef("bid", core.BidAddress(p.Auction, p.Bidder))
		moved  bool
	)
	if err := s.store.Transact(ctx, func(tx store.Store) error {
		a, err := selectAuction(ctx, tx, p.Auction)
		if err != nil {
			return err
		}

		if err := a.CheckBid(now, core.BidRequest{BidMint: p.BidMint, BidVault: p.BidVault, Payload: p.Payload}); err != nil {
			return err
		}

		switch _, err := tx.SelectBid(ctx, a.Address, p.Bidder); {
		case err == nil:
			return core.ErrBidExists
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("select bid: %w", err)
		}

		submittedAt := a.StampSubmission(now)
		if !submittedAt.Before(a.EndTime) {
			return core.ErrAuctionEnded
		}

		amount, err := s.compute.Ingest(ctx, p.Bidder, p.Payload)
		if errors.Is(err, core.ErrInvalidBidAmount) {
			return fmt.Errorf("ingest bid: %w", err)
		}
		if err != nil {
			return fmt.Errorf("%w: ingest bid: %w", core.ErrComputeFailed, err)
		}

		ts, err := s.compute.Encrypt(ctx, p.Bidder, core.SubmissionValue(submittedAt))
		if err != nil {
			return fmt.Errorf("%w: encrypt submission time: %w", core.ErrComputeFailed, err)
		}

		if err := a.ApplyBid(ctx, s.compute, p.Bidder, amount, ts); err != nil {
			return err
		}

		if p.Reveal {
			if err := s.compute.GrantDecrypt(ctx, p.Bidder, amount, p.Bidder); err != nil {
				return fmt.Errorf("%w: grant bid amount: %w", core.ErrComputeFailed, err)
			}
		}

		if err := s.escrow.TransferConfidential(ctx, ref, p.Bidder, a.BidVault, a.BidMint, amount); err != nil {
			return fmt.Errorf("%w: escrow bid: %w", core.ErrEscrowFailed, err)
		}
		moved = true

		bid := &core.Bid{
			Address:     core.BidAddress(a.Address, p.Bidder),
			Bidder:      p.Bidder,
			Auction:     a.Address,
			Amount:      amount,
			SubmittedAt: ts,
			CreatedAt:   submittedAt,
		}

		if err := tx.InsertBid(ctx, bid); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return core.ErrBidExists
			}
			return fmt.Errorf("insert bid: %w", err)
		}

		if err := tx.UpdateAuction(ctx, a); err != nil {
			return fmt.Errorf("update auction: %w", err)
		}

		placed, count = bid, a.BidCount
		return nil
	}); err != nil {
		if moved {
			s.revert(ctx, ref)
		}
		return nil, err
	}

	level.Debug(s.logger).Log("msg", "bid placed", "auction", placed.Auction, "bidder", placed.Bidder, "bid_count", count)

	s.publish(ctx, core.BidPlaced{
		Auction:  placed.Auction,
		Bidder:   placed.Bidder,
		BidCount: count,
	})

	return placed, nil
}

// CloseAuction ends bidding and evaluates the reserve against the final
// leader. Only the organizer may close, and only once.
func (s *Service) CloseAuction(ctx context.Context, auction, caller core.Address) (_ *core.Auction, err error) {
	defer observe("close", &err)

	now := s.clock.Now()

	var closed *core.Auction
	if err := s.store.Transact(ctx, func(tx store.Store) error {
		a, err := selectAuction(ctx, tx, auction)
		if err != nil {
			return err
		}

		if err := a.CheckClose(caller, now); err != nil {
			return err
		}

		if err := a.Close(ctx, s.compute, caller); err != nil {
			return err
		}

		if err := tx.UpdateAuction(ctx, a); err != nil {
			return fmt.Errorf("update auction: %w", err)
		}

		closed = a
		return nil
	}); err != nil {
		return nil, err
	}

	level.Info(s.logger).Log("msg", "auction closed", "auction", closed.Address, "bid_count", closed.BidCount)

	s.publish(ctx, core.AuctionClosed{
		AuctionID: closed.AuctionID,
		Auction:   closed.Address,
		Organizer: closed.Organizer,
		Timestamp: now,
	})

	return closed, nil
}

type CheckWinnerParams struct {
	Auction core.Address `json:"auction"`
	Bidder  core.Address `json:"bidder"`
	Caller  core.Address `json:"caller"`

	// Reveal grants the bidder decryption rights on the winner predicate.
	Reveal bool `json:"reveal"`
}

// CheckWinner derives and stores the encrypted "is the winner" predicate for
// one bid. It may be called any number of times once the auction is closed.
func (s *Service) CheckWinner(ctx context.Context, p CheckWinnerParams) (_ *core.Bid, err error) {
	defer observe("check_winner", &err)

	var checked *core.Bid
	if err := s.store.Transact(ctx, func(tx store.Store) error {
		a, err := selectAuction(ctx, tx, p.Auction)
		if err != nil {
			return err
		}

		if err := a.CheckResolvable(); err != nil {
			return err
		}

		if p.Caller != p.Bidder {
			return core.ErrUnauthorized
		}

		bid, err := selectBid(ctx, tx, a.Address, p.Bidder)
		if err != nil {
			return err
		}

		winner, err := core.ResolveWinner(ctx, s.compute, p.Bidder, a, bid)
		if err != nil {
			return err
		}

		bid.WinnerHandle = &winner
		if err := tx.UpdateBid(ctx, bid); err != nil {
			return fmt.Errorf("update bid: %w", err)
		}

		if p.Reveal {
			if err := s.compute.GrantDecrypt(ctx, p.Bidder, winner.Handle(), p.Bidder); err != nil {
				return fmt.Errorf("%w: grant winner predicate: %w", core.ErrComputeFailed, err)
			}
		}

		checked = bid
		return nil
	}); err != nil {
		return nil, err
	}

	s.publish(ctx, core.WinnerChecked{
		Auction:      checked.Auction,
		Bidder:       checked.Bidder,
		WinnerHandle: *checked.WinnerHandle,
	})

	return checked, nil
}

// ClearingPrice returns a handle the caller may decrypt. It holds the
// clearing price if the caller is the winning bidder, or the organizer of an
// auction whose reserve was met, and an encrypted zero otherwise. Nothing is
// transferred.
func (s *Service) ClearingPrice(ctx context.Context, auction, caller core.Address) (_ core.Handle, err error) {
	defer observe("clearing_price", &err)

	var price core.Handle
	if err := s.store.Transact(ctx, func(tx store.Store) error {
		a, err := selectAuction(ctx, tx, auction)
		if err != nil {
			return err
		}

		if err := a.CheckResolvable(); err != nil {
			return err
		}

		var (
			winning *core.Bid
			gate    core.BoolHandle
		)
		if caller == a.Organizer {
			winning = &core.Bid{Auction: a.Address, Amount: a.HighestBid}
			gate = *a.ReserveMet
		} else {
			bid, err := tx.SelectBid(ctx, a.Address, caller)
			if errors.Is(err, store.ErrNotFound) {
				return core.ErrUnauthorized
			}
			if err != nil {
				return fmt.Errorf("select bid: %w", err)
			}

			winner, err := core.ResolveWinner(ctx, s.compute, caller, a, bid)
			if err != nil {
				return err
			}
			winning, gate = bid, winner
		}

		clearing, err := core.ClearingPrice(ctx, s.compute, caller, a, winning)
		if err != nil {
			return err
		}

		price, err = s.compute.Select(ctx, caller, gate, clearing, core.Handle{})
		if err != nil {
			return fmt.Errorf("%w: gate clearing price: %w", core.ErrComputeFailed, err)
		}

		if err := s.compute.GrantDecrypt(ctx, caller, price, caller); err != nil {
			return fmt.Errorf("%w: grant clearing price: %w", core.ErrComputeFailed, err)
		}
		return nil
	}); err != nil {
		return core.Handle{}, err
	}

	return price, nil
}

//
//
//

func (s *Service) Auction(ctx context.Context, addr core.Address) (*core.Auction, error) {
	return selectAuction(ctx, s.store, addr)
}

func (s *Service) Auctions(ctx context.Context) ([]*core.Auction, error) {
	return s.store.ListAuctions(ctx)
}

func (s *Service) Bid(ctx context.Context, auction, bidder core.Address) (*core.Bid, error) {
	return selectBid(ctx, s.store, auction, bidder)
}

func (s *Service) Bids(ctx context.Context, auction core.Address) ([]*core.Bid, error) {
	if _, err := selectAuction(ctx, s.store, auction); err != nil {
		return nil, err
	}
	return s.store.ListBids(ctx, auction)
}

//
//
//

func selectAuction(ctx context.Context, s store.Store, addr core.Address) (*core.Auction, error) {
	a, err := s.SelectAuction(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select auction: %w", err)
	}
	return a, nil
}

func selectBid(ctx context.Context, s store.Store, auction, bidder core.Address) (*core.Bid, error) {
	b, err := s.SelectBid(ctx, auction, bidder)
	if errors.Is(err, store.ErrNotFound) {
		return nil, core.ErrBidNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select bid: %w", err)
	}
	return b, nil
}

// transferRef names one escrow transfer. Retries of the same call share it;
// separate calls never do.
func transferRef(op string, addr core.Address) string {
	return fmt.Sprintf("%s/%s/%s", op, addr, uuid.NewString())
}

// revert undoes an escrow transfer whose transaction did not commit. It runs
// even if ctx was canceled.
func (s *Service) revert(ctx context.Context, ref string) {
	if err := s.escrow.Revert(context.WithoutCancel(ctx), ref); err != nil {
		level.Error(s.logger).Log("msg", "escrow revert failed", "ref", ref, "err", err)
		metrics.EscrowRevertFailuresTotal.Inc()
		return
	}
	level.Warn(s.logger).Log("msg", "escrow transfer reverted", "ref", ref)
}

// publish hands e to the sink. The operation has already committed, so a
// failed delivery is only logged.
func (s *Service) publish(ctx context.Context, e core.Event) {
	if err := s.sink.Publish(ctx, e); err != nil {
		level.Warn(s.logger).Log("msg", "publish failed", "event", e.EventName(), "err", err)
	}
}

func observe(op string, errp *error) {
	result := "success"
	if err := *errp; err != nil {
		if result = core.CodeOf(err); result == "" {
			result = "error"
		}
	}
	metrics.OperationsTotal.WithLabelValues(op, result).Inc()
}
