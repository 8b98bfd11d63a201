package rpcfanout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"clp-rebalancer/internal/errs"
)

func TestCallFailoverTriesNextOnError(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer good.Close()

	mode := Mode{Kind: Failover, URLs: []string{bad.URL, good.URL}}

	var attempts int32
	result, err := Call(context.Background(), mode, 0, func(ctx context.Context, endpointURL string) (string, error) {
		atomic.AddInt32(&attempts, 1)
		resp, err := http.Get(endpointURL)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", errors.New("bad status")
		}
		return "success", nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != "success" {
		t.Errorf("expected 'success', got %q", result)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestCallFailoverAllFail(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	mode := Mode{Kind: Failover, URLs: []string{bad.URL, bad.URL}}

	_, err := Call(context.Background(), mode, 0, func(ctx context.Context, endpointURL string) (string, error) {
		return "", errors.New("bad status")
	})

	var allFailed *errs.AllEndpointsFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllEndpointsFailedError, got %v", err)
	}
	if len(allFailed.LastErrors) != 2 {
		t.Errorf("expected 2 recorded failures, got %d", len(allFailed.LastErrors))
	}
}

func TestCallConcurrentReturnsFirstSuccess(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("slow"))
	}))
	defer slow.Close()

	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fast"))
	}))
	defer fast.Close()

	mode := Mode{Kind: Concurrent, URLs: []string{slow.URL, fast.URL}}

	result, err := Call(context.Background(), mode, 0, func(ctx context.Context, endpointURL string) (string, error) {
		resp, err := http.Get(endpointURL)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		return endpointURL, nil
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if result != fast.URL {
		t.Errorf("expected fast endpoint to win, got %q", result)
	}
}

func TestCallEmptyURLListFails(t *testing.T) {
	mode := Mode{Kind: Failover, URLs: nil}
	_, err := Call(context.Background(), mode, 0, func(ctx context.Context, endpointURL string) (string, error) {
		return "unreachable", nil
	})
	var allFailed *errs.AllEndpointsFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("expected AllEndpointsFailedError for empty URL list, got %v", err)
	}
}

func TestSpeedPriorityOmitsMissingKeys(t *testing.T) {
	os.Unsetenv("HELIUS_API_KEY")
	os.Unsetenv("QUICKNODE_API_KEY")
	os.Unsetenv("SYNDICA_API_KEY")

	mode := SpeedPriority()
	if len(mode.URLs) != 1 {
		t.Errorf("expected only publicnode with no keys set, got %v", mode.URLs)
	}
	if mode.Kind != Concurrent {
		t.Errorf("expected speed_priority to be Concurrent")
	}
}

func TestVolumePriorityIncludesConfiguredKeys(t *testing.T) {
	os.Setenv("HELIUS_API_KEY", "test-key")
	defer os.Unsetenv("HELIUS_API_KEY")

	mode := VolumePriority()
	if mode.Kind != Failover {
		t.Errorf("expected volume_priority to be Failover")
	}
	found := false
	for _, u := range mode.URLs {
		if u == "https://rpc.helius.xyz?api-key=test-key" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected helius URL to be present when HELIUS_API_KEY is set, got %v", mode.URLs)
	}
}
