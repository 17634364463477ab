package run_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ripplehq/ripple/ratelimit"
	"github.com/ripplehq/ripple/rule"
	"github.com/ripplehq/ripple/run"
	"github.com/ripplehq/ripple/signature"
)

func TestSenderCallSignsRequest(t *testing.T) {
	secret := "whsec_sendersecret1"

	var gotSig, gotTS string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Ripple-Signature")
		gotTS = r.Header.Get("X-Ripple-Timestamp")
		gotBody, _ = io.ReadAll(r.Body)
		if r.Header.Get("X-Custom") != "yes" {
			t.Error("custom header missing")
		}
		if r.Header.Get("X-Ripple-Event-Type") != "donation.received" {
			t.Errorf("event type header %q", r.Header.Get("X-Ripple-Event-Type"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := run.NewSender(time.Second, nil)
	transient, err := s.Call(context.Background(), rule.CallWebhookParams{
		URL:     srv.URL,
		Secret:  secret,
		Headers: map[string]string{"X-Custom": "yes"},
	}, newEvent())
	if err != nil {
		t.Fatalf("transient=%v err=%v", transient, err)
	}

	ts, err := strconv.ParseInt(gotTS, 10, 64)
	if err != nil {
		t.Fatalf("bad timestamp header %q", gotTS)
	}
	if !signature.Verify(gotBody, secret, ts, gotSig) {
		t.Fatal("signature does not verify")
	}
}

func TestSenderCallStatusClassification(t *testing.T) {
	tests := []struct {
		status        int
		wantErr       bool
		wantTransient bool
	}{
		{200, false, false},
		{204, false, false},
		{400, true, false},
		{404, true, false},
		{429, true, true},
		{500, true, true},
		{503, true, true},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		s := run.NewSender(time.Second, nil)
		transient, err := s.Call(context.Background(), rule.CallWebhookParams{
			URL: srv.URL, Secret: "whsec_classify",
		}, newEvent())
		srv.Close()

		if (err != nil) != tt.wantErr {
			t.Errorf("status %d: err = %v, wantErr %v", tt.status, err, tt.wantErr)
		}
		if err != nil && transient != tt.wantTransient {
			t.Errorf("status %d: transient = %v, want %v", tt.status, transient, tt.wantTransient)
		}
	}
}

func TestSenderCallNetworkErrorTransient(t *testing.T) {
	s := run.NewSender(100*time.Millisecond, nil)
	transient, err := s.Call(context.Background(), rule.CallWebhookParams{
		URL: "http://127.0.0.1:1", Secret: "whsec_netfail",
	}, newEvent())
	if err == nil {
		t.Fatal("expected error")
	}
	if !transient {
		t.Fatal("network error should be transient")
	}
}

func TestSenderCallRateLimited(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	limiter := ratelimit.New()
	s := run.NewSender(time.Second, limiter)
	p := rule.CallWebhookParams{URL: srv.URL, Secret: "whsec_ratelimit", RateLimit: 50}

	start := time.Now()
	for i := 0; i < 55; i++ {
		if _, err := s.Call(context.Background(), p, newEvent()); err != nil {
			t.Fatal(err)
		}
	}
	// 50 tokens burst, then ~20ms per token for the remaining 5.
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("rate limiter did not throttle")
	}
	if calls != 55 {
		t.Fatalf("got %d calls", calls)
	}
}
