package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"

	"github.com/cloudx-io/confidentialbid/auction"
	"github.com/cloudx-io/confidentialbid/confidential"
	"github.com/cloudx-io/confidentialbid/core"
	"github.com/cloudx-io/confidentialbid/debug"
	"github.com/cloudx-io/confidentialbid/enclaveapi"
	"github.com/cloudx-io/confidentialbid/ledger"
)

var (
	ErrNoOrganizer = errors.New("no organizer")
	ErrNoBidder    = errors.New("no bidder")
	ErrNoCaller    = errors.New("no caller")
	ErrNoRequester = errors.New("no requester")
	ErrNoMint      = errors.New("no mint")
	ErrNoPayload   = errors.New("no payload")
)

// Service is the auction surface the handler drives.
type Service interface {
	Ping(ctx context.Context) error
	CreateAuction(ctx context.Context, p auction.CreateParams) (*core.Auction, error)
	PlaceBid(ctx context.Context, p auction.PlaceBidParams) (*core.Bid, error)
	CloseAuction(ctx context.Context, auction, caller core.Address) (*core.Auction, error)
	CheckWinner(ctx context.Context, p auction.CheckWinnerParams) (*core.Bid, error)
	ClearingPrice(ctx context.Context, auction, caller core.Address) (core.Handle, error)
	Auction(ctx context.Context, addr core.Address) (*core.Auction, error)
	Auctions(ctx context.Context) ([]*core.Auction, error)
	Bid(ctx context.Context, auction, bidder core.Address) (*core.Bid, error)
	Bids(ctx context.Context, auction core.Address) ([]*core.Bid, error)
}

var _ Service = (*auction.Service)(nil)

// Revealer discloses granted handles as attested reveals.
type Revealer interface {
	Decrypt(ctx context.Context, requester core.Address, h core.Handle) (*confidential.AttestedReveal, error)
}

// KeySource publishes the keys bidders encrypt to and reveals are signed
// with.
type KeySource interface {
	PublicKeyPEM() (string, error)
	RevealKeyPEM() (string, error)
}

type Handler struct {
	router   *mux.Router
	service  Service
	revealer Revealer
	keys     KeySource
	tokens   CallerTokens
	logger   log.Logger
}

func NewHandler(service Service, revealer Revealer, keys KeySource, logger log.Logger, opts ...Option) *Handler {
	h := &Handler{
		router:   mux.NewRouter(),
		service:  service,
		revealer: revealer,
		keys:     keys,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}

	h.router.Methods("GET").Path("/-/ping").HandlerFunc(h.handleGetPing)
	h.router.Methods("GET").Path("/v1/keys").HandlerFunc(h.handleGetKeys)

	h.router.Methods("GET").Path("/v1/auctions").HandlerFunc(h.handleListAuctions)
	h.router.Methods("POST").Path("/v1/auctions").HandlerFunc(h.handleCreateAuction)
	h.router.Methods("GET").Path("/v1/auctions/{auction}").HandlerFunc(h.handleGetAuction)
	h.router.Methods("POST").Path("/v1/auctions/{auction}/close").HandlerFunc(h.handleCloseAuction)
	h.router.Methods("POST").Path("/v1/auctions/{auction}/clearing-price").HandlerFunc(h.handleClearingPrice)

	h.router.Methods("GET").Path("/v1/auctions/{auction}/bids").HandlerFunc(h.handleListBids)
	h.router.Methods("POST").Path("/v1/auctions/{auction}/bids").HandlerFunc(h.handlePlaceBid)
	h.router.Methods("GET").Path("/v1/auctions/{auction}/bids/{bidder}").HandlerFunc(h.handleGetBid)
	h.router.Methods("POST").Path("/v1/auctions/{auction}/bids/{bidder}/winner").HandlerFunc(h.handleCheckWinner)

	h.router.Methods("POST").Path("/v1/reveal").HandlerFunc(h.handleReveal)

	h.router.Use(
		debug.GZipMiddleware,
		debug.MetricsMiddleware,
		debug.LoggingMiddleware(h.logger),
		corsHeadersMiddleware,
		panicRecoveryMiddleware(h.logger), // should be after observability middlewares
	)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

//
//
//

func (h *Handler) handleGetPing(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		respondError(w, r, fmt.Errorf("ping: %w", err), http.StatusInternalServerError, h.logger)
		return
	}
	respondOK(w, r, struct{}{})
}

// attestedKeySource is a KeySource that can also prove where its keys live.
type attestedKeySource interface {
	Keys(ctx context.Context) (*enclaveapi.KeyResponse, error)
}

type keysResponse struct {
	InputKey    string                           `json:"input_key"`
	RevealKey   string                           `json:"reveal_key"`
	Attestation enclaveapi.AttestationCOSEBase64 `json:"attestation_cose_base64,omitempty"`
}

func (h *Handler) handleGetKeys(w http.ResponseWriter, r *http.Request) {
	if attested, ok := h.keys.(attestedKeySource); ok {
		keys, err := attested.Keys(r.Context())
		if err != nil {
			respondError(w, r, fmt.Errorf("enclave keys: %w", err), http.StatusBadGateway, h.logger)
			return
		}
		respondOK(w, r, keysResponse{InputKey: keys.PublicKey, RevealKey: keys.RevealKey, Attestation: keys.AttestationCOSEBase64})
		return
	}

	inputKey, err := h.keys.PublicKeyPEM()
	if err != nil {
		respondError(w, r, fmt.Errorf("input key: %w", err), http.StatusInternalServerError, h.logger)
		return
	}

	revealKey, err := h.keys.RevealKeyPEM()
	if err != nil {
		respondError(w, r, fmt.Errorf("reveal key: %w", err), http.StatusInternalServerError, h.logger)
		return
	}

	respondOK(w, r, keysResponse{InputKey: inputKey, RevealKey: revealKey})
}

//
//
//

type createRequest struct {
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

func (req *createRequest) validate() error {
	var merr multiError
	merr.addIf(req.Organizer == "", ErrNoOrganizer)
	merr.addIf(req.ItemMint == "", fmt.Errorf("item: %w", ErrNoMint))
	merr.addIf(req.BidMint == "", fmt.Errorf("bid: %w", ErrNoMint))
	return merr.yield()
}

// auctionResponse is an auction as seen by clients. Handles are rendered as
// their identifiers, never as values.
type auctionResponse struct {
	*core.Auction
	ItemAmountUI string `json:"item_amount_ui"`
}

func newAuctionResponse(a *core.Auction) auctionResponse {
	return auctionResponse{
		Auction:      a,
		ItemAmountUI: ledger.UIAmount(a.ItemAmount, a.ItemDecimals).String(),
	}
}

func (h *Handler) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("decode create request: %w", err), http.StatusBadRequest, h.logger)
		return
	}

	if err := req.validate(); err != nil {
		respondError(w, r, fmt.Errorf("request invalid: %w", err), http.StatusBadRequest, h.logger)
		return
	}

	if err := h.authenticate(r, req.Organizer); err != nil {
		respondError(w, r, err, http.StatusUnauthorized, h.logger)
		return
	}

	a, err := h.service.CreateAuction(r.Context(), auction.CreateParams(req))
	if err != nil {
		respondError(w, r, fmt.Errorf("create auction: %w", err), http.StatusInternalServerError, h.logger)
		return
	}

	level.Info(h.logger).Log("msg", "auction created", "auction", a.Address)

	respondOK(w, r, newAuctionResponse(a))
}

func (h *Handler) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.service.Auctions(r.Context())
	if err != nil {
		respondError(w, r, fmt.Errorf("list auctions: %w", err), http.StatusInternalServerError, h.logger)
		return
	}

	resp := make([]auctionResponse, len(auctions))
	for i, a := range auctions {
		resp[i] = newAuctionResponse(a)
	}
	respondOK(w, r, resp)
}

func (h *Handler) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	addr := core.Address(mux.Vars(r)["auction"])

	a, err := h.service.Auction(r.Context(), addr)
	if err != nil {
		respondError(w, r, fmt.Errorf("get auction %s: %w", addr, err), http.StatusInternalServerError, h.logger)
		return
	}

	respondOK(w, r, newAuctionResponse(a))
}

type callerRequest struct {
	Caller core.Address `json:"caller"`
}

func (req *callerRequest) validate() error {
	var merr multiError
	merr.addIf(req.Caller == "", ErrNoCaller)
	return merr.yield()
}

func (h *Handler) handleCloseAuction(w http.ResponseWriter, r *http.Request) {
	addr := core.Address(mux.Vars(r)["auction"])

	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("decode close request: %w", err), http.StatusBadRequest, h.logger)
		return
	}

	if err := req.validate(); err != nil {
		respondError(w, r, fmt.Errorf("request invalid: %w", err), http.StatusBadRequest, h.logger)
		return
	}

	if err := h.authenticate(r, req.Caller); err != nil {
		respondError(w, r, err, http.StatusUnauthorized, h.logger)
		return
	}

	a, err := h.service.CloseAuction(r.Context(), addr, req.Caller)
	if err != nil {
		respondError(w, r, fmt.Errorf("close auction %s: %w", addr, err), http.StatusInternalServerError, h.logger)
		return
	}

	respondOK(w, r, newAuctionResponse(a))
}

type handleResponse struct {
	Handle core.Handle `json:"handle"`
}

func (h *Handler) handleClearingPrice(w http.ResponseWriter, r *http.Request) {
	addr := core.Address(mux.Vars(r)["auction"])

	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("decode clearing price request: %w", err), http.StatusBadRequest, h.logger)
		return
	}

	if err := req.validate(); err != nil {
		respondError(w, r, fmt.Errorf("request invalid: %w", err), http.StatusBadRequest, h.logger)
		return
	}

	if err := h.authenticate(r, req.Caller); err != nil {
		respondError(w, r, err, http.StatusUnauthorized, h.logger)
		return
	}

	price, err := h.service.ClearingPrice(r.Context(), addr, req.Caller)
	if err != nil {
		respondError(w, r, fmt.Errorf("clearing price of %s: %w", addr, err), http.StatusInternalServerError, h.logger)
		return
	}

	respondOK(w, r, handleResponse{Handle: price})
}

//
//
//

type bidRequest struct {
	Bidder   core.Address `json:"bidder"`
	BidMint  core.Address `json:"bid_mint"`
	BidVault core.Address `json:"bid_vault"`
	Payload  []byte       `json:"payload"` // base64 in JSON
	Reveal   bool         `json:"reveal"`
}

func (req *bidRequest) validate() error {
	var merr multiError
	merr.addIf(req.Bidder == "", ErrNoBidder)
	merr.addIf(req.BidMint == "", ErrNoMint)
	merr.addIf(len(req.Payload) == 0, ErrNoPayload)
	return merr.yield()
}

func (h *Handler) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	addr := core.Address(mux.Vars(r)["auction"])

	var req bidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("decode bid request: %w", err), http.StatusBadRequest, h.logger)
		return
	}

	if err := req.validate(); err != nil {
		respondError(w, r, fmt.Errorf("request invalid: %w", err), http.StatusBadRequest, h.logger)
		return
	}

	if err := h.authenticate(r, req.Bidder); err != nil {
		respondError(w, r, err, http.StatusUnauthorized, h.logger)
		return
	}

	bid, err := h.service.PlaceBid(r.Context(), auction.PlaceBidParams{
		Auction:  addr,
		Bidder:   req.Bidder,
		BidMint:  req.BidMint,
		BidVault: req.BidVault,
		Payload:  req.Payload,
		Reveal:   req.Reveal,
	})
	if err != nil {
		respondError(w, r, fmt.Errorf("bid on %s: %w", addr, err), http.StatusInternalServerError, h.logger)
		return
	}

	respondOK(w, r, bid)
}

func (h *Handler) handleListBids(w http.ResponseWriter, r *http.Request) {
	addr := core.Address(mux.Vars(r)["auction"])

	bids, err := h.service.Bids(r.Context(), addr)
	if err != nil {
		respondError(w, r, fmt.Errorf("list bids of %s: %w", addr, err), http.StatusInternalServerError, h.logger)
		return
	}

	respondOK(w, r, bids)
}

func (h *Handler) handleGetBid(w http.ResponseWriter, r *http.Request) {
	var (
		vars   = mux.Vars(r)
		addr   = core.Address(vars["auction"])
		bidder = core.Address(vars["bidder"])
	)

	bid, err := h.service.Bid(r.Context(), addr, bidder)
	if err != nil {
		respondError(w, r, fmt.Errorf("get bid of %s on %s: %w", bidder, addr, err), http.StatusInternalServerError, h.logger)
		return
	}

	respondOK(w, r, bid)
}

type winnerRequest struct {
	Caller core.Address `json:"caller"`
	Reveal bool         `json:"reveal"`
}

func (h *Handler) handleCheckWinner(w http.ResponseWriter, r *http.Request) {
	var (
		vars   = mux.Vars(r)
		addr   = core.Address(vars["auction"])
		bidder = core.Address(vars["bidder"])
	)

	var req winnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("decode winner request: %w", err), http.StatusBadRequest, h.logger)
		return
	}

	if req.Caller == "" {
		respondError(w, r, fmt.Errorf("request invalid: %w", ErrNoCaller), http.StatusBadRequest, h.logger)
		return
	}

	if err := h.authenticate(r, req.Caller); err != nil {
		respondError(w, r, err, http.StatusUnauthorized, h.logger)
		return
	}

	bid, err := h.service.CheckWinner(r.Context(), auction.CheckWinnerParams{
		Auction: addr,
		Bidder:  bidder,
		Caller:  req.Caller,
		Reveal:  req.Reveal,
	})
	if err != nil {
		respondError(w, r, fmt.Errorf("check winner %s on %s: %w", bidder, addr, err), http.StatusInternalServerError, h.logger)
		return
	}

	respondOK(w, r, bid)
}

//
//
//

type revealRequest struct {
	Requester core.Address `json:"requester"`
	Handle    core.Handle  `json:"handle"`
}

func (h *Handler) handleReveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, fmt.Errorf("decode reveal request: %w", err), http.StatusBadRequest, h.logger)
		return
	}

	if req.Requester == "" {
		respondError(w, r, fmt.Errorf("request invalid: %w", ErrNoRequester), http.StatusBadRequest, h.logger)
		return
	}

	if err := h.authenticate(r, req.Requester); err != nil {
		respondError(w, r, err, http.StatusUnauthorized, h.logger)
		return
	}

	reveal, err := h.revealer.Decrypt(r.Context(), req.Requester, req.Handle)
	if err != nil {
		respondError(w, r, fmt.Errorf("reveal %s: %w", req.Handle, err), http.StatusInternalServerError, h.logger)
		return
	}

	respondOK(w, r, reveal)
}

//
//
//

type multiError struct {
	merr *multierror.Error
}

func (m *multiError) addIf(b bool, err error) {
	if !b {
		return
	}

	if m.merr == nil {
		m.merr = &multierror.Error{ErrorFormat: joinErrorStrings}
	}

	m.merr = multierror.Append(m.merr, err)
}

func (m *multiError) yield() error {
	if m.merr == nil {
		return nil
	}

	return m.merr.ErrorOrNil()
}

func joinErrorStrings(errs []error) string {
	strs := make([]string, len(errs))
	for i := range errs {
		strs[i] = errs[i].Error()
	}
	return strings.Join(strs, "; ")
}
