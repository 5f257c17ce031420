package store

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/confidentialbid/core"
)

// Records are stored as CBOR blobs. Times keep nanosecond precision and
// handles encode as 16-byte strings.
var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = (cbor.EncOptions{Time: cbor.TimeRFC3339Nano}).EncMode(); err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	if decMode, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(fmt.Sprintf("cbor dec mode: %v", err))
	}
}

func EncodeAuction(a *core.Auction) ([]byte, error) {
	b, err := encMode.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode auction: %w", err)
	}
	return b, nil
}

func DecodeAuction(b []byte) (*core.Auction, error) {
	var a core.Auction
	if err := decMode.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode auction: %w", err)
	}
	return &a, nil
}

func EncodeBid(b *core.Bid) ([]byte, error) {
	out, err := encMode.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode bid: %w", err)
	}
	return out, nil
}

func DecodeBid(b []byte) (*core.Bid, error) {
	var bid core.Bid
	if err := decMode.Unmarshal(b, &bid); err != nil {
		return nil, fmt.Errorf("decode bid: %w", err)
	}
	return &bid, nil
}
