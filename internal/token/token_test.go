package token

import (
	"context"
	"errors"
	"testing"
)

func TestNewTrimsNullPaddingAndFlagsStablecoins(t *testing.T) {
	tok := New("USD Coin\x00\x00\x00", "USDC\x00\x00\x00\x00", "Mint1", 6)

	if tok.Name != "USD Coin" {
		t.Errorf("expected trimmed name 'USD Coin', got %q", tok.Name)
	}
	if tok.Symbol != "USDC" {
		t.Errorf("expected trimmed symbol 'USDC', got %q", tok.Symbol)
	}
	if !tok.IsStablecoin {
		t.Errorf("expected USDC to be flagged as stablecoin")
	}
}

func TestNewNonStablecoin(t *testing.T) {
	tok := New("Wrapped SOL", "SOL", Solana().MintAddress, 9)
	if tok.IsStablecoin {
		t.Errorf("expected SOL to not be flagged as stablecoin")
	}
}

func TestStoreResolveCachesAfterFirstFetch(t *testing.T) {
	calls := 0
	store := NewStore(func(ctx context.Context, mint string) (Token, error) {
		calls++
		return New("Mint Token", "MINT", mint, 6), nil
	})

	for i := 0; i < 3; i++ {
		tok, err := store.Resolve(context.Background(), "Mint2")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if tok.Symbol != "MINT" {
			t.Errorf("expected symbol MINT, got %s", tok.Symbol)
		}
	}

	if calls != 1 {
		t.Errorf("expected fetch to be called once, got %d", calls)
	}
	if store.CacheSize() != 2 { // SOL preseeded + Mint2
		t.Errorf("expected cache size 2, got %d", store.CacheSize())
	}
}

func TestStoreResolvePropagatesFetchError(t *testing.T) {
	wantErr := errors.New("rpc unavailable")
	store := NewStore(func(ctx context.Context, mint string) (Token, error) {
		return Token{}, wantErr
	})

	_, err := store.Resolve(context.Background(), "MintX")
	if err != wantErr {
		t.Errorf("expected propagated error, got %v", err)
	}
}

func TestLooksLikeMintAddress(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"So11111111111111111111111111111111111111112", true},
		{"SOL", false},
		{"not-base58-!!!!", false},
		{"", false},
	}
	for _, c := range cases {
		if got := LooksLikeMintAddress(c.in); got != c.want {
			t.Errorf("LooksLikeMintAddress(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
