package rpcfanout

import (
	"fmt"
	"os"
)

// Endpoint URL builders. Each reads its API key from the environment
// and returns ("", false) when the key is absent — per spec.md §4.1,
// a missing key silently omits that endpoint rather than failing.

func heliusURL() (string, bool) {
	key := os.Getenv("HELIUS_API_KEY")
	if key == "" {
		return "", false
	}
	return fmt.Sprintf("https://rpc.helius.xyz?api-key=%s", key), true
}

func quicknodeURL() (string, bool) {
	key := os.Getenv("QUICKNODE_API_KEY")
	if key == "" {
		return "", false
	}
	return fmt.Sprintf("https://fittest-bold-card.solana-mainnet.quiknode.pro/%s/", key), true
}

func alchemyURL() (string, bool) {
	key := os.Getenv("ALCHEMY_API_KEY")
	if key == "" {
		return "", false
	}
	return fmt.Sprintf("https://solana-mainnet.g.alchemy.com/v2/%s", key), true
}

func syndicaURL() (string, bool) {
	key := os.Getenv("SYNDICA_API_KEY")
	if key == "" {
		return "", false
	}
	return fmt.Sprintf("https://solana-mainnet.api.syndica.io/api-key/%s", key), true
}

func chainstackURL() (string, bool) {
	key := os.Getenv("CHAINSTACK_API_KEY")
	if key == "" {
		return "", false
	}
	return fmt.Sprintf("https://solana-mainnet.core.chainstack.com/%s", key), true
}

func publicnodeURL() string {
	return "https://solana-rpc.publicnode.com"
}

// SpeedPriority builds the endpoint list for latency-critical paths
// (blockhash, send, quote, close): publicnode first, then whichever of
// quicknode/helius/syndica have keys configured, to be raced
// concurrently.
func SpeedPriority() Mode {
	urls := []string{publicnodeURL()}
	for _, build := range []func() (string, bool){quicknodeURL, heliusURL, syndicaURL} {
		if u, ok := build(); ok {
			urls = append(urls, u)
		}
	}
	return Mode{Kind: Concurrent, URLs: urls}
}

// VolumePriority builds the ordered failover list for bulk
// reconciliation and account lookups, from cheapest/rate-limit-
// tolerant to most expensive.
func VolumePriority() Mode {
	urls := []string{publicnodeURL()}
	for _, build := range []func() (string, bool){syndicaURL, chainstackURL, quicknodeURL, heliusURL} {
		if u, ok := build(); ok {
			urls = append(urls, u)
		}
	}
	return Mode{Kind: Failover, URLs: urls}
}
