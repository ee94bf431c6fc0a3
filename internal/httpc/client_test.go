package httpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("Expected GET, got %s", r.Method)
		}
		w.Write([]byte("0123456789"))
	}))
	defer server.Close()

	body, err := Fetch(context.Background(), nil, server.URL, 4)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if string(body) != "0123" {
		t.Errorf("Expected truncated body 0123, got %q", body)
	}
}

func TestFetchStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := Fetch(context.Background(), NewClient(time.Second), server.URL, 1024)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", statusErr.StatusCode)
	}
}
