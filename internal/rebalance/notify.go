package rebalance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"clp-rebalancer/internal/position"
	"clp-rebalancer/internal/priceclient"
)

// statsLoop enqueues one Stats message per second (spec.md §4.5/§6),
// one line per ticker window.
func (e *Engine) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.store.Enqueue(position.NewStatsMessage(e.statsLines(time.Now())))
		}
	}
}

func (e *Engine) statsLines(now time.Time) []string {
	lines := make([]string, 0, len(priceclient.AllWindows))
	for _, w := range priceclient.AllWindows {
		avg, _ := e.ticker.AveragePrice(w, now)
		updatesPerSecond := float64(e.ticker.TotalVolume(w, now)) / w.Duration().Seconds()
		lines = append(lines, fmt.Sprintf("%s: %.2f updates/sec, Average Price: %.2f", w.String(), updatesPerSecond, avg))
	}
	return lines
}

// notifyForwarder drains the store's outbound queue every second into
// Notifications, the channel the external router consumes, per
// spec.md §5 task 2. A full Notifications channel drops the message
// rather than blocking, matching the store's own backpressure policy.
func (e *Engine) notifyForwarder(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, m := range e.store.DrainMessages() {
				select {
				case e.Notifications <- m:
				default:
					log.Warn().Str("channel", m.Channel).Str("instruction", m.Instruction).Msg("outbound notification dropped, receiver backpressured")
				}
			}
		}
	}
}
