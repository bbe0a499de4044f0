// Package poller orchestrates a single node's per-IP fetch: the root
// sysinfo document plus its link_info and services_local variants, with
// URL-candidate fallback and band classification.
package poller

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kg6wxc/aredn-meshpoller/internal/httpfetch"
	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
	"github.com/kg6wxc/aredn-meshpoller/internal/sysinfo"
)

// shapeCacheSize bounds the last-successful-URL-shape cache across
// however many thousands of nodes a mesh has.
const shapeCacheSize = 4096

// urlShapeCache remembers, per IP, the candidateURLs index that last
// worked, so a repeat poll of an already-known node tries its
// known-good path/port combination first instead of always restarting
// from candidateURLs' fixed order.
var urlShapeCache, _ = lru.New[string, int](shapeCacheSize)

// candidateURLs returns the fixed-order URL candidates for one of the
// three sysinfo views (root, link_info, services_local), trying both
// legacy path shapes on both the default and :8080 ports.
func candidateURLs(ip, query string) []string {
	urls := []string{
		fmt.Sprintf("http://%s/a/sysinfo", ip),
		fmt.Sprintf("http://%s:8080/a/sysinfo", ip),
		fmt.Sprintf("http://%s/cgi-bin/sysinfo.json", ip),
		fmt.Sprintf("http://%s:8080/cgi-bin/sysinfo.json", ip),
	}
	if query != "" {
		for i, u := range urls {
			urls[i] = u + "?" + query
		}
	}
	return urls
}

// fetchFirst tries each candidate URL in order and returns the first
// successful JSON response.
func fetchFirst(ctx context.Context, f *httpfetch.Fetcher, ip, query string, retries int) (map[string]interface{}, bool) {
	urls := candidateURLs(ip, query)

	if idx, ok := urlShapeCache.Get(ip); ok && idx < len(urls) {
		if result, ok := f.FetchJSON(ctx, urls[idx], retries); ok {
			return result, true
		}
	}

	for i, url := range urls {
		if result, ok := f.FetchJSON(ctx, url, retries); ok {
			urlShapeCache.Add(ip, i)
			return result, true
		}
	}
	return nil, false
}

// Poll fetches sysinfo + link_info + services_local for ip and merges
// them into a NodeRecord. hops is the discovery-assigned hop count; a
// caller must not invoke Poll for a node whose hops is nil (unknown
// candidates are skipped upstream, never polled).
func Poll(ctx context.Context, f *httpfetch.Fetcher, ip string, hops *int, retries int) (meshnode.NodeRecord, bool) {
	start := time.Now()

	root, ok := fetchFirst(ctx, f, ip, "", retries)
	if !ok {
		return meshnode.NodeRecord{}, false
	}

	rec, usedIP := sysinfo.Parse(root, ip)
	rec.HopsAway = hops

	responseElapsed := time.Since(start)
	rec.ResponseTimeMS = roundMS(responseElapsed)

	if linkDoc, ok := fetchFirst(ctx, f, ip, "link_info=1", retries); ok {
		if merged, _ := sysinfo.Parse(mergeLinkDoc(root, linkDoc), usedIP); merged.LinkInfo != nil {
			rec.LinkInfo = merged.LinkInfo
		}
	}
	if svcDoc, ok := fetchFirst(ctx, f, ip, "services_local=1", retries); ok {
		if merged, _ := sysinfo.Parse(mergeServicesDoc(root, svcDoc), usedIP); merged.Services != nil {
			rec.Services = merged.Services
		}
	}

	return rec, true
}

func mergeLinkDoc(root, linkDoc map[string]interface{}) map[string]interface{} {
	if li, ok := linkDoc["link_info"]; ok {
		root["link_info"] = li
	}
	return root
}

func mergeServicesDoc(root, svcDoc map[string]interface{}) map[string]interface{} {
	if svc, ok := svcDoc["services_local"]; ok {
		root["services_local"] = svc
	}
	return root
}

func roundMS(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return float64(int(ms*100+0.5)) / 100
}

// 900MHz board IDs, per spec.md §4.3.
var boardIDs900MHz = map[string]bool{
	"0xe009": true, "0xe1b9": true, "0xe239": true,
}

// fiveGHzChannels enumerates the documented 5GHz channel set (with gaps).
var fiveGHzChannels = buildFiveGHzSet()

func buildFiveGHzSet() map[int]bool {
	set := map[int]bool{}
	for _, c := range []int{37, 40, 44, 48, 52, 56, 60, 64} {
		set[c] = true
	}
	for c := 100; c <= 184; c++ {
		set[c] = true
	}
	return set
}

// CheckBand classifies a node's radio band from its channel text and
// board ID, per spec.md §4.3.
func CheckBand(channel, boardID string) string {
	if boardIDs900MHz[boardID] {
		return "900MHz"
	}
	ch, ok := ParseChannel(channel)
	if !ok {
		return "Unknown"
	}
	switch {
	case ch == -2 || ch == -1 || (ch >= 1 && ch <= 11):
		return "2GHz"
	case ch >= 76 && ch <= 99:
		return "3GHz"
	case fiveGHzChannels[ch]:
		return "5GHz"
	default:
		return "Unknown"
	}
}

// ParseChannel parses a channel field that may be negative, "none", or
// absent, shared by band-classification logic across packages.
func ParseChannel(channel string) (int, bool) {
	if channel == "" || channel == "none" {
		return 0, false
	}
	var n int
	var neg bool
	s := channel
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}
