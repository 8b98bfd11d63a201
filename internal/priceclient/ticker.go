// Package priceclient maintains the current ticker price and a
// rolling history window fed by an authenticated Coinbase-style
// WebSocket feed (C2).
package priceclient

import (
	"math"
	"sync"
	"time"
)

// Window names a lookback period for history queries and the
// statistics derived from it, matching the original source's
// TimePeriod enum.
type Window int

const (
	OneSecond Window = iota
	FiveSeconds
	TenSeconds
	FifteenSeconds
	ThirtySeconds
	OneMinute
	FiveMinutes
	FifteenMinutes
	OneHour
	TwoHours
	FourHours
	SixHours
	TwelveHours
	EighteenHours
	TwentyFourHours
)

func (w Window) Duration() time.Duration {
	switch w {
	case OneSecond:
		return time.Second
	case FiveSeconds:
		return 5 * time.Second
	case TenSeconds:
		return 10 * time.Second
	case FifteenSeconds:
		return 15 * time.Second
	case ThirtySeconds:
		return 30 * time.Second
	case OneMinute:
		return time.Minute
	case FiveMinutes:
		return 5 * time.Minute
	case FifteenMinutes:
		return 15 * time.Minute
	case OneHour:
		return time.Hour
	case TwoHours:
		return 2 * time.Hour
	case FourHours:
		return 4 * time.Hour
	case SixHours:
		return 6 * time.Hour
	case TwelveHours:
		return 12 * time.Hour
	case EighteenHours:
		return 18 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func (w Window) String() string {
	switch w {
	case OneSecond:
		return "1s"
	case FiveSeconds:
		return "5s"
	case TenSeconds:
		return "10s"
	case FifteenSeconds:
		return "15s"
	case ThirtySeconds:
		return "30s"
	case OneMinute:
		return "1m"
	case FiveMinutes:
		return "5m"
	case FifteenMinutes:
		return "15m"
	case OneHour:
		return "1h"
	case TwoHours:
		return "2h"
	case FourHours:
		return "4h"
	case SixHours:
		return "6h"
	case TwelveHours:
		return "12h"
	case EighteenHours:
		return "18h"
	default:
		return "24h"
	}
}

// AllWindows lists every window a stats message reports one line for.
var AllWindows = []Window{
	OneSecond, FiveSeconds, TenSeconds, FifteenSeconds, ThirtySeconds,
	OneMinute, FiveMinutes, FifteenMinutes,
	OneHour, TwoHours, FourHours, SixHours, TwelveHours, EighteenHours, TwentyFourHours,
}

// Tick is one observed ticker sample.
type Tick struct {
	Price float64
	Time  time.Time
}

// maxHistory bounds the in-memory rolling window so a long-lived
// process can't grow this unboundedly; 24h of 1/sec ticks plus
// slack.
const maxHistory = 24*60*60 + 4096

// Ticker holds the current price and a trimmed history, safe for
// concurrent readers while a single writer goroutine (the WebSocket
// feed) appends.
type Ticker struct {
	mu      sync.RWMutex
	current Tick
	history []Tick
}

// NewTicker returns an empty ticker.
func NewTicker() *Ticker {
	return &Ticker{}
}

// Update records a new observed price, appending to history and
// trimming samples older than the longest window plus slack.
func (t *Ticker) Update(price float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = Tick{Price: price, Time: at}
	t.history = append(t.history, t.current)
	t.trimLocked(at)
}

func (t *Ticker) trimLocked(now time.Time) {
	cutoff := now.Add(-TwentyFourHours.Duration())
	i := 0
	for i < len(t.history) && t.history[i].Time.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.history = append([]Tick(nil), t.history[i:]...)
	}
	if len(t.history) > maxHistory {
		t.history = append([]Tick(nil), t.history[len(t.history)-maxHistory:]...)
	}
}

// CurrentPrice returns the last observed price, or 0 if none yet.
func (t *Ticker) CurrentPrice() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current.Price
}

// History returns every sample within window of now.
func (t *Ticker) History(window Window, now time.Time) []Tick {
	t.mu.RLock()
	defer t.mu.RUnlock()
	threshold := now.Add(-window.Duration())
	var out []Tick
	for _, tick := range t.history {
		if !tick.Time.Before(threshold) {
			out = append(out, tick)
		}
	}
	return out
}

// AveragePrice returns the mean sampled price within window, and
// false if no samples fall inside it.
func (t *Ticker) AveragePrice(window Window, now time.Time) (float64, bool) {
	samples := t.History(window, now)
	if len(samples) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range samples {
		sum += s.Price
	}
	return sum / float64(len(samples)), true
}

// TotalVolume returns the sample count inside window — the
// per_second_volume field of the original's calculate_stats divides
// this by window.Duration().Seconds().
func (t *Ticker) TotalVolume(window Window, now time.Time) int {
	return len(t.History(window, now))
}

// Volatility is a read-only diagnostic (population standard deviation
// of sampled prices within window), not consulted by any rebalance
// decision — see SPEC_FULL.md §9.
func (t *Ticker) Volatility(window Window, now time.Time) (float64, bool) {
	samples := t.History(window, now)
	if len(samples) < 2 {
		return 0, false
	}
	var sum float64
	for _, s := range samples {
		sum += s.Price
	}
	mean := sum / float64(len(samples))
	var variance float64
	for _, s := range samples {
		d := s.Price - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	return math.Sqrt(variance), true
}
