package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/cloudx-io/confidentialbid/core"
)

var ErrUnauthenticated = errors.New("caller not authenticated")

// CallerTokens maps each caller address to the bearer token that proves it.
type CallerTokens map[core.Address]string

// LoadCallerTokens reads a JSON object of address to token.
func LoadCallerTokens(path string) (CallerTokens, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read caller tokens: %w", err)
	}

	var tokens CallerTokens
	if err := json.Unmarshal(b, &tokens); err != nil {
		return nil, fmt.Errorf("parse caller tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no caller tokens in %s", path)
	}
	for caller, token := range tokens {
		if token == "" {
			return nil, fmt.Errorf("empty token for %s", caller)
		}
	}
	return tokens, nil
}

// Option configures a Handler.
type Option func(*Handler)

// WithCallerTokens makes every request that names a caller, organizer,
// bidder or requester prove it with "Authorization: Bearer <token>".
// Without it caller identities are taken from the request body as is.
func WithCallerTokens(tokens CallerTokens) Option {
	return func(h *Handler) { h.tokens = tokens }
}

// authenticate checks that r carries caller's token.
func (h *Handler) authenticate(r *http.Request, caller core.Address) error {
	if h.tokens == nil {
		return nil
	}

	want, ok := h.tokens[caller]
	if !ok {
		return fmt.Errorf("%s: %w", caller, ErrUnauthenticated)
	}

	have, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(have), []byte(want)) != 1 {
		return fmt.Errorf("%s: %w", caller, ErrUnauthenticated)
	}
	return nil
}
