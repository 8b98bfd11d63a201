package rebalance

import (
	"context"
	"strings"
	"testing"
	"time"

	"clp-rebalancer/internal/position"
	"clp-rebalancer/internal/priceclient"
)

func TestStatsLinesWithNoSamplesFormatAsZero(t *testing.T) {
	e := testEngine(t, "http://unused.invalid", true)
	lines := e.statsLines(time.Now())

	if len(lines) != len(priceclient.AllWindows) {
		t.Fatalf("expected one line per window, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.Contains(line, "0.00 updates/sec, Average Price: 0.00") {
			t.Fatalf("expected an empty ticker to format as zero, got %q", line)
		}
	}
}

func TestStatsLinesReflectRecordedSamples(t *testing.T) {
	e := testEngine(t, "http://unused.invalid", true)
	now := time.Now()
	e.ticker.Update(100, now)
	e.ticker.Update(110, now)

	lines := e.statsLines(now)
	for _, line := range lines {
		if strings.Contains(line, "Average Price: 0.00") {
			t.Fatalf("expected a non-zero average after recording samples, got %q", line)
		}
	}
}

func TestNotifyForwarderDrainsStoreIntoChannel(t *testing.T) {
	e := testEngine(t, "http://unused.invalid", true)
	e.store.Enqueue(position.NewUpdatePositionMessage(rangedPosition("Pos1"), 30))
	e.store.Enqueue(position.NewRemovePositionMessage(rangedPosition("Pos2"), 30))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.notifyForwarder(ctx)

	var got []position.PoolManagerMessage
	deadline := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case m := <-e.Notifications:
			got = append(got, m)
		case <-deadline:
			t.Fatalf("expected notifyForwarder to forward 2 messages within 3s, got %d", len(got))
		}
	}
	if got[0].Instruction != "update" || got[1].Instruction != "remove" {
		t.Fatalf("expected forwarded messages to preserve order, got %q then %q", got[0].Instruction, got[1].Instruction)
	}
}
