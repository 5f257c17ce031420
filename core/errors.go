package core

import (
	"errors"
)

// ErrorKind groups errors by how a caller should react to them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindValidation: bad input, nothing was mutated, correct and resubmit.
	KindValidation
	// KindAuthorization: wrong organizer or signer, never retried.
	KindAuthorization
	// KindLifecycle: wrong status or time window for this call.
	KindLifecycle
	// KindArithmetic: a systemic limit was reached.
	KindArithmetic
	// KindCollaborator: compute or escrow failed, the operation was rolled
	// back and may be retried.
	KindCollaborator
	// KindNotFound: the addressed record does not exist.
	KindNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindLifecycle:
		return "lifecycle"
	case KindArithmetic:
		return "arithmetic"
	case KindCollaborator:
		return "collaborator"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is a named auction failure. Every guard in this module returns one of
// the sentinel values below, so callers can match with errors.Is.
type Error struct {
	Kind ErrorKind
	Code string
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, msg: msg}
}

var (
	ErrInvalidStartTime   = newError(KindValidation, "InvalidStartTime", "invalid start time")
	ErrInvalidEndTime     = newError(KindValidation, "InvalidEndTime", "invalid end time")
	ErrInvalidTokenAmount = newError(KindValidation, "InvalidTokenAmount", "token amount must be greater than zero")
	ErrInsufficientFunds  = newError(KindValidation, "InsufficientBalance", "insufficient balance")
	ErrInvalidBidMint     = newError(KindValidation, "InvalidBidMint", "invalid bid mint")
	ErrInvalidBidVault    = newError(KindValidation, "InvalidBidVault", "invalid bid vault")
	ErrInvalidBidAmount   = newError(KindValidation, "InvalidBidAmount", "invalid bid amount")
	ErrAuctionExists      = newError(KindValidation, "AuctionExists", "auction already exists")
	ErrBidExists          = newError(KindValidation, "BidExists", "bidder already placed a bid in this auction")

	ErrUnauthorized = newError(KindAuthorization, "Unauthorized", "unauthorized")

	ErrAuctionNotOpen    = newError(KindLifecycle, "AuctionNotOpen", "auction is not open")
	ErrAuctionNotStarted = newError(KindLifecycle, "AuctionNotStarted", "auction has not started yet")
	ErrAuctionEnded      = newError(KindLifecycle, "AuctionEnded", "auction has ended")
	ErrAuctionNotEnded   = newError(KindLifecycle, "AuctionNotEnded", "auction not ended")
	ErrAuctionNotClosed  = newError(KindLifecycle, "AuctionNotClosed", "auction must be closed")

	ErrMathOverflow = newError(KindArithmetic, "MathOverflow", "math overflow")

	ErrComputeFailed = newError(KindCollaborator, "ComputeFailed", "confidential compute call failed")
	ErrEscrowFailed  = newError(KindCollaborator, "EscrowFailed", "escrow call failed")

	ErrAuctionNotFound = newError(KindNotFound, "AuctionNotFound", "auction not found")
	ErrBidNotFound     = newError(KindNotFound, "BidNotFound", "bid not found")
)

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// CodeOf reports the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
