package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckReportsHealthyWhenBothEndpointsRespond(t *testing.T) {
	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer rpc.Close()
	amm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer amm.Close()

	c := NewChecker(rpc.URL, amm.URL)
	c.check()

	statuses := c.GetStatuses()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	for _, s := range statuses {
		if !s.Healthy {
			t.Fatalf("expected %s to be healthy, got error %q", s.Name, s.Error)
		}
	}
}

func TestCheckReportsUnhealthyWhenAnEndpointIsUnreachable(t *testing.T) {
	amm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer amm.Close()

	c := NewChecker("http://127.0.0.1:1", amm.URL)
	c.check()

	statuses := c.GetStatuses()
	var rpcStatus *Status
	for i := range statuses {
		if statuses[i].Name == "rpc" {
			rpcStatus = &statuses[i]
		}
	}
	if rpcStatus == nil {
		t.Fatalf("expected an rpc status entry")
	}
	if rpcStatus.Healthy {
		t.Fatalf("expected rpc status to be unhealthy against an unreachable port")
	}
}

func TestStartRunsAnImmediateCheck(t *testing.T) {
	amm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer amm.Close()

	c := NewChecker(amm.URL, amm.URL)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx)
	time.Sleep(10 * time.Millisecond)

	if len(c.GetStatuses()) != 2 {
		t.Fatalf("expected Start to run an immediate check before returning")
	}
}
