package ledger

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-kit/log"

	"github.com/cloudx-io/confidentialbid/core"
)

// Genesis is the initial ledger state, loaded from JSON.
//
//	{
//	  "authority": "token-authority",
//	  "mints": [{"address": "usdc", "decimals": 6, "confidential": true, "authority": "token-authority"}],
//	  "balances": [{"owner": "alice", "mint": "nft", "amount": "1"}]
//	}
type Genesis struct {
	Authority core.Address     `json:"authority"`
	Mints     []Mint           `json:"mints"`
	Balances  []GenesisBalance `json:"balances"`
}

// GenesisBalance credits a plain mint. Amount is in UI units.
type GenesisBalance struct {
	Owner  core.Address `json:"owner"`
	Mint   core.Address `json:"mint"`
	Amount string       `json:"amount"`
}

// ReadGenesis decodes a genesis document.
func ReadGenesis(r io.Reader) (*Genesis, error) {
	var g Genesis
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("decode genesis: %w", err)
	}
	return &g, nil
}

// FromGenesis builds a ledger from g.
func FromGenesis(g *Genesis, logger log.Logger) (*Ledger, error) {
	l := New(g.Authority, logger)

	for _, m := range g.Mints {
		if err := l.RegisterMint(m); err != nil {
			return nil, err
		}
	}

	for _, b := range g.Balances {
		m, ok := l.mints[b.Mint]
		if !ok {
			return nil, fmt.Errorf("balance for %s: %w", b.Mint, ErrUnknownMint)
		}
		if m.Confidential {
			return nil, fmt.Errorf("balance for %s: confidential balances cannot be seeded", b.Mint)
		}

		amount, err := ParseUIAmount(b.Amount, m.Decimals)
		if err != nil {
			return nil, fmt.Errorf("balance for %s/%s: %w", b.Owner, b.Mint, err)
		}

		if err := l.MintTo(b.Owner, b.Mint, amount); err != nil {
			return nil, err
		}
	}

	return l, nil
}
