package txbuilder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"clp-rebalancer/internal/rpcfanout"
)

// CachedBlockhash is one fetched blockhash with its validity metadata.
type CachedBlockhash struct {
	Hash                 string
	LastValidBlockHeight uint64
	FetchedAt            time.Time
}

// BlockhashCache is a double-buffered, never-blocking-on-the-hot-path
// cache refreshed by a background prefetch loop, grounded on the
// teacher's BlockhashCache.
type BlockhashCache struct {
	current atomic.Pointer[CachedBlockhash]
	next    atomic.Pointer[CachedBlockhash]

	mode     rpcfanout.Mode
	ttl      time.Duration
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewBlockhashCache creates a cache that fetches via mode (intended to
// be rpcfanout.SpeedPriority()).
func NewBlockhashCache(mode rpcfanout.Mode, refreshInterval, ttl time.Duration) *BlockhashCache {
	return &BlockhashCache{
		mode:     mode,
		interval: refreshInterval,
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
}

// Start performs the initial synchronous fetch and launches the
// background prefetch loop.
func (c *BlockhashCache) Start(ctx context.Context) error {
	if err := c.fetchAndRotate(ctx); err != nil {
		return err
	}
	c.wg.Add(1)
	go c.prefetchLoop(ctx)
	return nil
}

// Stop halts the background refresh loop.
func (c *BlockhashCache) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// Get returns the cached blockhash, forcing a synchronous refetch only
// when both buffers have gone stale.
func (c *BlockhashCache) Get(ctx context.Context) (string, uint64, error) {
	if cached := c.current.Load(); cached != nil && time.Since(cached.FetchedAt) < c.ttl {
		return cached.Hash, cached.LastValidBlockHeight, nil
	}
	if next := c.next.Load(); next != nil && time.Since(next.FetchedAt) < c.ttl {
		return next.Hash, next.LastValidBlockHeight, nil
	}
	log.Warn().Msg("blockhash cache miss, forcing sync refresh")
	if err := c.fetchAndRotate(ctx); err != nil {
		return "", 0, err
	}
	cached := c.current.Load()
	return cached.Hash, cached.LastValidBlockHeight, nil
}

func (c *BlockhashCache) prefetchLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.fetchAndRotate(ctx); err != nil {
				log.Warn().Err(err).Msg("blockhash prefetch failed")
			}
		}
	}
}

func (c *BlockhashCache) fetchAndRotate(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	result, err := getLatestBlockhash(fetchCtx, c.mode)
	if err != nil {
		return err
	}

	newHash := &CachedBlockhash{
		Hash:                 result.Value.Blockhash,
		LastValidBlockHeight: result.Value.LastValidBlockHeight,
		FetchedAt:            time.Now(),
	}

	current := c.current.Load()
	c.current.Store(c.next.Load())
	c.next.Store(newHash)
	if current == nil {
		c.current.Store(newHash)
	}
	return nil
}
