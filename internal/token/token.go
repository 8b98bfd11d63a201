// Package token resolves and caches mint metadata for the tokens held
// in managed positions.
package token

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// stablecoins is the fixed symbol allow-list is_stablecoin is derived
// from.
var stablecoins = map[string]bool{
	"USDC": true,
	"USDT": true,
	"DAI":  true,
	"USDH": true,
	"UXD":  true,
	"PAI":  true,
}

// Token is the process-wide record of one SPL mint.
type Token struct {
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	MintAddress  string `json:"mint_address"`
	Decimals     uint8  `json:"decimals"`
	IsStablecoin bool   `json:"is_stablecoin"`
}

// New constructs a Token, trimming NUL padding from the on-chain
// fixed-width metadata fields and deriving IsStablecoin from the
// allow-list.
func New(name, symbol, mint string, decimals uint8) Token {
	name = trimNullBytes(name)
	symbol = trimNullBytes(symbol)
	return Token{
		Name:         name,
		Symbol:       symbol,
		MintAddress:  mint,
		Decimals:     decimals,
		IsStablecoin: stablecoins[symbol],
	}
}

func trimNullBytes(s string) string {
	return strings.TrimRight(s, "\x00")
}

// Solana is the native SOL pseudo-mint.
func Solana() Token {
	return Token{
		Name:         "Solana",
		Symbol:       "SOL",
		MintAddress:  "So11111111111111111111111111111111111111112",
		Decimals:     9,
		IsStablecoin: false,
	}
}

// MetadataFetcher resolves on-chain mint + metadata-account data for a
// mint address not yet in the store. It is supplied by the caller
// (wired to the RPC fanout in cmd/engine) so this package stays free
// of a hard RPC dependency.
type MetadataFetcher func(ctx context.Context, mint string) (Token, error)

// Store is the process-wide mapping from mint address to Token.
// Entries are resolved on demand and cached for process lifetime.
// Reads recheck the map under a short-lived lock, matching the
// concurrency contract in the spec's shared-resource policy.
type Store struct {
	mu     sync.Mutex
	tokens map[string]Token
	fetch  MetadataFetcher
}

// NewStore creates an empty token store backed by fetch for cache
// misses.
func NewStore(fetch MetadataFetcher) *Store {
	s := &Store{
		tokens: make(map[string]Token),
		fetch:  fetch,
	}
	s.tokens[Solana().MintAddress] = Solana()
	return s
}

// Resolve returns the Token for mint, fetching and caching it on
// first use.
func (s *Store) Resolve(ctx context.Context, mint string) (Token, error) {
	s.mu.Lock()
	if t, ok := s.tokens[mint]; ok {
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	t, err := s.fetch(ctx, mint)
	if err != nil {
		return Token{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tokens[mint]; ok {
		return existing, nil
	}
	log.Debug().Str("mint", mint).Str("symbol", t.Symbol).Msg("token added to store")
	s.tokens[mint] = t
	return t, nil
}

// CacheSize returns the number of cached tokens.
func (s *Store) CacheSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// base58Set is an O(1) lookup table for Base58 character validity,
// carried over from the teacher's resolver (nested-loop -> table).
var base58Set = func() [256]bool {
	var set [256]bool
	const chars = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	for i := 0; i < len(chars); i++ {
		set[chars[i]] = true
	}
	return set
}()

// IsValidBase58 reports whether s contains only base58 characters.
func IsValidBase58(s string) bool {
	for i := 0; i < len(s); i++ {
		if !base58Set[s[i]] {
			return false
		}
	}
	return true
}

// LooksLikeMintAddress reports whether s has the shape of a base58
// Solana public key (43-44 characters, valid alphabet) rather than a
// human-readable token name.
func LooksLikeMintAddress(s string) bool {
	if len(s) < 43 || len(s) > 44 {
		return false
	}
	return IsValidBase58(s)
}
