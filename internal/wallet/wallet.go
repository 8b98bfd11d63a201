// Package wallet holds the programmatic signing keypair and decodes
// the additional-signer blobs the AMM client returns alongside
// instruction bundles.
package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

// Wallet holds an ed25519 keypair used to sign outgoing transactions.
//
// The private key is supplied once at process start from
// SOLANA_WALLET_PRIVATE_KEY; this implementation does not custody or
// generate keys beyond reading that single configured value.
type Wallet struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	address    string
}

// New creates a wallet from a base58-encoded private key: either the
// 64-byte seed+pubkey form or a bare 32-byte seed.
func New(privateKeyBase58 string) (*Wallet, error) {
	raw, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	default:
		return nil, fmt.Errorf("invalid private key length: %d (expected %d or %d)", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}

	pub := priv.Public().(ed25519.PublicKey)
	address := base58.Encode(pub)

	log.Info().Str("address", address).Msg("programmatic wallet loaded")

	return &Wallet{privateKey: priv, publicKey: pub, address: address}, nil
}

// Address returns the wallet's base58-encoded public key.
func (w *Wallet) Address() string { return w.address }

// PublicKey returns the raw public key bytes.
func (w *Wallet) PublicKey() ed25519.PublicKey { return w.publicKey }

// Sign signs message with the wallet's private key.
func (w *Wallet) Sign(message []byte) []byte {
	return ed25519.Sign(w.privateKey, message)
}

// AdditionalSigner is a decoded extra keypair the AMM instruction
// service returned alongside an instruction bundle (e.g. a freshly
// generated position-mint keypair that must co-sign the open).
type AdditionalSigner struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Sign signs message with this signer's private key.
func (s AdditionalSigner) Sign(message []byte) []byte {
	return ed25519.Sign(s.PrivateKey, message)
}

// DecodeAdditionalSigners decodes the base64 raw-keypair blobs C3
// returns into usable signers. Per the transaction-builder contract,
// any decode failure is a hard InvalidSigner failure for the whole
// transaction — partial signer sets are never submitted.
func DecodeAdditionalSigners(blobs []string) ([]AdditionalSigner, error) {
	signers := make([]AdditionalSigner, 0, len(blobs))
	for i, blob := range blobs {
		raw, err := base64.StdEncoding.DecodeString(blob)
		if err != nil {
			return nil, fmt.Errorf("invalid signer at index %d: %w", i, err)
		}
		if len(raw) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("invalid signer at index %d: expected %d bytes, got %d", i, ed25519.PrivateKeySize, len(raw))
		}
		priv := ed25519.PrivateKey(raw)
		signers = append(signers, AdditionalSigner{
			PublicKey:  priv.Public().(ed25519.PublicKey),
			PrivateKey: priv,
		})
	}
	return signers, nil
}

// LamportsFetcher retrieves the current lamport balance of an account,
// supplied by the caller so this package has no direct RPC dependency.
type LamportsFetcher func(ctx context.Context, address string) (uint64, error)

// BalanceTracker caches the last-known SOL balance for a pubkey,
// refreshed on demand from an injected fetcher.
type BalanceTracker struct {
	mu       sync.RWMutex
	address  string
	fetch    LamportsFetcher
	lamports uint64
}

// NewBalanceTracker creates a tracker for address, using fetch to
// refresh.
func NewBalanceTracker(address string, fetch LamportsFetcher) *BalanceTracker {
	return &BalanceTracker{address: address, fetch: fetch}
}

// Refresh re-fetches the balance from the chain.
func (b *BalanceTracker) Refresh(ctx context.Context) error {
	lamports, err := b.fetch(ctx, b.address)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.lamports = lamports
	b.mu.Unlock()
	return nil
}

// Lamports returns the last-known balance in lamports.
func (b *BalanceTracker) Lamports() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lamports
}

// SOL returns the last-known balance in whole SOL.
func (b *BalanceTracker) SOL() float64 {
	return float64(b.Lamports()) / 1e9
}

// HasSufficientBalance reports whether the tracked balance covers
// amountLamports plus a fee reserve.
func (b *BalanceTracker) HasSufficientBalance(amountLamports, feeReserveLamports uint64) bool {
	return b.Lamports() >= amountLamports+feeReserveLamports
}
