package priceclient

import (
	"testing"
	"time"
)

func TestUpdateSetsCurrentPrice(t *testing.T) {
	tk := NewTicker()
	now := time.Now()
	tk.Update(100.5, now)
	if tk.CurrentPrice() != 100.5 {
		t.Errorf("expected current price 100.5, got %v", tk.CurrentPrice())
	}
}

func TestHistoryFiltersByWindow(t *testing.T) {
	tk := NewTicker()
	base := time.Now()
	tk.Update(10, base.Add(-2*time.Hour))
	tk.Update(20, base.Add(-30*time.Second))
	tk.Update(30, base)

	within := tk.History(OneMinute, base)
	if len(within) != 2 {
		t.Fatalf("expected 2 samples within 1m, got %d", len(within))
	}

	withinHour := tk.History(OneHour, base)
	if len(withinHour) != 2 {
		t.Fatalf("expected 2 samples within 1h, got %d", len(withinHour))
	}
}

func TestAveragePriceNoSamples(t *testing.T) {
	tk := NewTicker()
	_, ok := tk.AveragePrice(OneSecond, time.Now())
	if ok {
		t.Errorf("expected no average with empty history")
	}
}

func TestAveragePriceComputesMean(t *testing.T) {
	tk := NewTicker()
	now := time.Now()
	tk.Update(10, now.Add(-1*time.Second))
	tk.Update(20, now)

	avg, ok := tk.AveragePrice(OneMinute, now)
	if !ok {
		t.Fatalf("expected average available")
	}
	if avg != 15 {
		t.Errorf("expected average 15, got %v", avg)
	}
}

func TestTotalVolumeCountsSamples(t *testing.T) {
	tk := NewTicker()
	now := time.Now()
	for i := 0; i < 5; i++ {
		tk.Update(float64(i), now)
	}
	if v := tk.TotalVolume(OneMinute, now); v != 5 {
		t.Errorf("expected volume 5, got %d", v)
	}
}

func TestVolatilityRequiresAtLeastTwoSamples(t *testing.T) {
	tk := NewTicker()
	now := time.Now()
	tk.Update(10, now)
	if _, ok := tk.Volatility(OneMinute, now); ok {
		t.Errorf("expected no volatility with a single sample")
	}

	tk.Update(20, now)
	v, ok := tk.Volatility(OneMinute, now)
	if !ok || v <= 0 {
		t.Errorf("expected positive volatility with varying samples, got %v", v)
	}
}

func TestGenerateSignatureDeterministic(t *testing.T) {
	secret := "c2VjcmV0a2V5Ynl0ZXM=" // base64("secretkeybytes")
	sig1, err := generateSignature(secret, "1700000000", "/users/self/verify")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig2, err := generateSignature(secret, "1700000000", "/users/self/verify")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig1 != sig2 {
		t.Errorf("expected deterministic signature for identical inputs")
	}

	sig3, err := generateSignature(secret, "1700000001", "/users/self/verify")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig1 == sig3 {
		t.Errorf("expected signature to change with timestamp")
	}
}

func TestGenerateSignatureRejectsInvalidBase64Secret(t *testing.T) {
	_, err := generateSignature("not-valid-base64!!!", "1700000000", "/users/self/verify")
	if err == nil {
		t.Errorf("expected error for invalid base64 secret")
	}
}
