package httpfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchJSONSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"node":"K1ABC-1"}`))
	}))
	defer srv.Close()

	f := New(10, 10)
	defer f.Close()

	result, ok := f.FetchJSON(context.Background(), srv.URL, 1)
	if !ok {
		t.Fatalf("expected success")
	}
	if result["node"] != "K1ABC-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestFetchJSONNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(10, 10)
	defer f.Close()

	_, ok := f.FetchJSON(context.Background(), srv.URL, 3)
	if ok {
		t.Fatalf("expected failure on 404")
	}
}

func TestFetchJSONMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	f := New(10, 10)
	defer f.Close()

	_, ok := f.FetchJSON(context.Background(), srv.URL, 0)
	if ok {
		t.Fatalf("expected failure on malformed json")
	}
}

func TestFetchJSONRetriesOnTimeout(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			time.Sleep(50 * time.Millisecond)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(10, 10, WithTimeout(10*time.Millisecond), WithRetryDelay(1*time.Millisecond))
	defer f.Close()

	result, ok := f.FetchJSON(context.Background(), srv.URL, 2)
	if !ok {
		t.Fatalf("expected eventual success after retry")
	}
	if result["ok"] != true {
		t.Fatalf("unexpected result: %+v", result)
	}
	if calls < 2 {
		t.Fatalf("expected at least 2 attempts, got %d", calls)
	}
}

func TestStripNonPrintable(t *testing.T) {
	in := []byte("{\"a\":\x01\"b\"}\n")
	out := stripNonPrintable(in)
	if string(out) != "{\"a\":\"b\"}\n" {
		t.Fatalf("got %q", out)
	}
}
