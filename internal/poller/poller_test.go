package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kg6wxc/aredn-meshpoller/internal/httpfetch"
)

func TestCheckBand(t *testing.T) {
	cases := []struct {
		channel, boardID, want string
	}{
		{"none", "", "Unknown"},
		{"none", "0xe009", "900MHz"},
		{"6", "", "2GHz"},
		{"-2", "", "2GHz"},
		{"149", "", "5GHz"},
		{"80", "", "3GHz"},
		{"37", "", "5GHz"},
		{"9999", "", "Unknown"},
	}
	for _, c := range cases {
		if got := CheckBand(c.channel, c.boardID); got != c.want {
			t.Errorf("CheckBand(%q,%q) = %q, want %q", c.channel, c.boardID, got, c.want)
		}
	}
}

func TestLinkInfoQueryFetchesLinkInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("link_info") {
		case "1":
			_, _ = w.Write([]byte(`{"link_info":{"10.0.0.2":{"linkType":"rf"}}}`))
			return
		}
		switch r.URL.Query().Get("services_local") {
		case "1":
			_, _ = w.Write([]byte(`{"services_local":[{"name":"svc1"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"node":"K1ABC-1","interfaces":[{"name":"wlan0","ip":"10.0.0.1"}]}`))
	}))
	defer srv.Close()

	// poller builds its own URLs against a fixed :80/:8080 shape, so we
	// can't point Poll at httptest's random port directly; this only
	// checks the link_info query against the server via a direct fetcher
	// call.
	f := httpfetch.New(10, 10)
	defer f.Close()

	result, ok := f.FetchJSON(context.Background(), srv.URL+"?link_info=1", 0)
	if !ok || result["link_info"] == nil {
		t.Fatalf("expected link_info fetch to succeed")
	}
}

func TestCandidateURLOrder(t *testing.T) {
	urls := candidateURLs("10.1.1.1", "")
	want := []string{
		"http://10.1.1.1/a/sysinfo",
		"http://10.1.1.1:8080/a/sysinfo",
		"http://10.1.1.1/cgi-bin/sysinfo.json",
		"http://10.1.1.1:8080/cgi-bin/sysinfo.json",
	}
	for i, w := range want {
		if urls[i] != w {
			t.Fatalf("candidate %d = %q want %q", i, urls[i], w)
		}
	}
}

func TestCandidateURLWithQuery(t *testing.T) {
	urls := candidateURLs("10.1.1.1", "link_info=1")
	if urls[0] != "http://10.1.1.1/a/sysinfo?link_info=1" {
		t.Fatalf("got %q", urls[0])
	}
}

// TestFetchFirstCachesWorkingShape verifies a repeat poll of an
// already-known IP tries its cached candidateURLs index first instead
// of re-walking the fixed fallback order.
func TestFetchFirstCachesWorkingShape(t *testing.T) {
	var hits []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
		if r.URL.Path == "/cgi-bin/sysinfo.json" {
			_, _ = w.Write([]byte(`{"node":"K1ABC-1"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ip := strings.TrimPrefix(srv.URL, "http://")
	f := httpfetch.New(10, 10)
	defer f.Close()

	urlShapeCache.Remove(ip)

	if _, ok := fetchFirst(context.Background(), f, ip, "", 0); !ok {
		t.Fatalf("expected first fetch to eventually succeed via fallback")
	}
	if len(hits) == 0 || hits[len(hits)-1] != "/cgi-bin/sysinfo.json" {
		t.Fatalf("expected the final successful hit to be /cgi-bin/sysinfo.json, got %v", hits)
	}

	hits = nil
	if _, ok := fetchFirst(context.Background(), f, ip, "", 0); !ok {
		t.Fatalf("expected cached-shape fetch to succeed")
	}
	if len(hits) != 1 || hits[0] != "/cgi-bin/sysinfo.json" {
		t.Fatalf("expected exactly one cached-shape request, got %v", hits)
	}
}
