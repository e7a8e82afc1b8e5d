package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestInvokeSuccess(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.Write([]byte(`{"success":true,"result":"done"}`))
	}))
	defer srv.Close()

	client := New(nil)
	result, err := client.Invoke(context.Background(), &Request{
		URL:    srv.URL,
		Method: "POST",
		Body:   `{"query":"hello"}`,
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got error: %s", result.Error)
	}
	if result.Status != 200 {
		t.Errorf("unexpected status: %d", result.Status)
	}
	if result.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", result.Attempts)
	}
	if gotBody != `{"query":"hello"}` {
		t.Errorf("body not forwarded: %q", gotBody)
	}
}

func TestInvokeApplicationFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"upstream quota exceeded"}`))
	}))
	defer srv.Close()

	client := New(nil)
	result, err := client.Invoke(context.Background(), &Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.Success {
		t.Error("success:false body must fail the invocation even on HTTP 200")
	}
	if !strings.Contains(result.Error, "upstream quota exceeded") {
		t.Errorf("error should carry the service message, got: %q", result.Error)
	}
}

func TestInvokeClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`bad payload`))
	}))
	defer srv.Close()

	client := New(nil)
	result, err := client.Invoke(context.Background(), &Request{
		URL:          srv.URL,
		Retries:      3,
		RetryDelayMS: 1,
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.Success {
		t.Error("expected failure")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("4xx must not be retried, got %d calls", got)
	}
	if !strings.Contains(result.Error, "HTTP 422") {
		t.Errorf("error should carry status, got: %q", result.Error)
	}
}

func TestInvokeServerErrorRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := New(nil)
	result, err := client.Invoke(context.Background(), &Request{
		URL:          srv.URL,
		Retries:      3,
		RetryDelayMS: 1,
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if !result.Success {
		t.Errorf("expected eventual success, got: %s", result.Error)
	}
	if result.Attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", result.Attempts)
	}
}

func TestInvokeRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(nil)
	result, err := client.Invoke(context.Background(), &Request{
		URL:          srv.URL,
		Retries:      1,
		RetryDelayMS: 1,
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.Success {
		t.Error("expected failure")
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", result.Attempts)
	}
	if !strings.Contains(result.Error, "failed after 2 attempts") {
		t.Errorf("unexpected error: %q", result.Error)
	}
}

func TestInvokeEmptyURL(t *testing.T) {
	client := New(nil)
	if _, err := client.Invoke(context.Background(), &Request{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}
