package core

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Seed tags for deterministic record addresses.
const (
	AuctionSeed = "auction"
	BidSeed     = "bid"
	VaultSeed   = "vault"
)

// deriveAddress computes SHA256(seed + "|" + part1 + "|" + part2 ...) and
// returns it hex-encoded.
func deriveAddress(seed string, parts ...[]byte) Address {
	h := sha256.New()
	h.Write([]byte(seed))
	for _, p := range parts {
		h.Write([]byte("|"))
		h.Write(p)
	}
	return Address(fmt.Sprintf("%x", h.Sum(nil)))
}

// AuctionAddress derives the auction record address from
// (AuctionSeed, organizer, little-endian auction_id).
func AuctionAddress(organizer Address, auctionID uint64) Address {
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], auctionID)
	return deriveAddress(AuctionSeed, []byte(organizer), id[:])
}

// BidAddress derives the bid record address from (BidSeed, auction, bidder).
// One bidder therefore has at most one bid per auction.
func BidAddress(auction, bidder Address) Address {
	return deriveAddress(BidSeed, []byte(auction), []byte(bidder))
}

// VaultAddress derives the escrow account owned by owner for mint.
func VaultAddress(owner, mint Address) Address {
	return deriveAddress(VaultSeed, []byte(owner), []byte(mint))
}
