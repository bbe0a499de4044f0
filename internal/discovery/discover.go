// Package discovery performs the one-shot seed fetch that bootstraps a
// cycle's candidate set and initial link map, per spec.md §4.5.
package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/kg6wxc/aredn-meshpoller/internal/httpfetch"
	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
)

// Candidate is one node known to the coordinator before it has been
// polled: an IP plus its discovery-assigned hop count (nil = unknown,
// meaning it must never be polled).
type Candidate struct {
	IP   string
	Hops *int
}

// Bundle is the topology discoverer's output: the candidate set plus
// the seed's own link map (other nodes start with an empty link map,
// populated per-node during poll).
type Bundle struct {
	Nodes []Candidate
	Links map[string]map[string]meshnode.LinkRecord
}

func one() *int { v := 1; return &v }

// Discover fetches the seed's node list, LQM trackers, and link_info,
// building the initial candidate set and seed link map.
func Discover(ctx context.Context, f *httpfetch.Fetcher, seedHost string, retries int) (Bundle, error) {
	nodesDoc, ok := f.FetchJSON(ctx, fmt.Sprintf("http://%s/cgi-bin/sysinfo.json?nodes=1", seedHost), retries)
	if !ok {
		nodesDoc, ok = f.FetchJSON(ctx, fmt.Sprintf("http://%s/a/sysinfo?nodes=1", seedHost), retries)
	}
	if !ok {
		return Bundle{}, fmt.Errorf("discover: seed %s did not respond with node list", seedHost)
	}

	lqmDoc, _ := f.FetchJSON(ctx, fmt.Sprintf("http://%s/cgi-bin/sysinfo.json?lqm=1", seedHost), retries)
	linkDoc, _ := f.FetchJSON(ctx, fmt.Sprintf("http://%s/cgi-bin/sysinfo.json?link_info=1", seedHost), retries)

	seedIP := resolveSeedIP(nodesDoc)

	names := extractNodeNames(nodesDoc)
	present := false
	candidates := make([]Candidate, 0, len(names)+1)
	for _, name := range names {
		candidates = append(candidates, Candidate{IP: name, Hops: one()})
		if name == seedIP {
			present = true
		}
	}
	if !present && seedIP != "" {
		candidates = append(candidates, Candidate{IP: seedIP, Hops: one()})
	}

	seedLinks := seedLinkMap(lqmDoc, linkDoc)

	links := map[string]map[string]meshnode.LinkRecord{}
	for _, c := range candidates {
		if c.IP == seedIP {
			links[c.IP] = seedLinks
		} else {
			links[c.IP] = map[string]meshnode.LinkRecord{}
		}
	}

	return Bundle{Nodes: candidates, Links: links}, nil
}

// resolveSeedIP scans the seed's own interfaces array, preferring
// br-nomesh's 10.x address, else the first non-"none" 10.x address, else
// any non-"none" address.
func resolveSeedIP(doc map[string]interface{}) string {
	ifaces, ok := doc["interfaces"].([]interface{})
	if !ok {
		if node, ok := doc["node"].(string); ok {
			return node
		}
		return ""
	}

	var brNomesh10, any10, anyNonNone string
	for _, item := range ifaces {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		ip, _ := m["ip"].(string)
		if ip == "" || ip == "none" {
			continue
		}
		if anyNonNone == "" {
			anyNonNone = ip
		}
		if strings.HasPrefix(ip, "10.") {
			if any10 == "" {
				any10 = ip
			}
			if name == "br-nomesh" && brNomesh10 == "" {
				brNomesh10 = ip
			}
		}
	}

	switch {
	case brNomesh10 != "":
		return brNomesh10
	case any10 != "":
		return any10
	default:
		return anyNonNone
	}
}

func extractNodeNames(doc map[string]interface{}) []string {
	raw, ok := doc["nodes"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// seedLinkMap derives the seed's link map preferentially from LQM
// trackers, falling back to the plain link_info document.
func seedLinkMap(lqmDoc, linkDoc map[string]interface{}) map[string]meshnode.LinkRecord {
	if lqmDoc != nil {
		if trackers, ok := lqmDoc["trackers"].(map[string]interface{}); ok && len(trackers) > 0 {
			out := map[string]meshnode.LinkRecord{}
			for _, v := range trackers {
				t, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				destIP, _ := t["canonical_ip"].(string)
				if destIP == "" {
					destIP, _ = t["ip"].(string)
				}
				if destIP == "" {
					continue
				}
				rawType, _ := t["type"].(string)
				out[destIP] = meshnode.LinkRecord{DestIP: destIP, LinkType: normalizeTrackerType(rawType)}
			}
			if len(out) > 0 {
				return out
			}
		}
	}

	if linkDoc != nil {
		if li, ok := linkDoc["link_info"].(map[string]interface{}); ok {
			out := map[string]meshnode.LinkRecord{}
			for destIP, v := range li {
				m, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				rawType, _ := m["linkType"].(string)
				out[destIP] = meshnode.LinkRecord{DestIP: destIP, LinkType: normalizeTrackerType(rawType)}
			}
			return out
		}
	}

	return map[string]meshnode.LinkRecord{}
}

func normalizeTrackerType(raw string) meshnode.LinkType {
	switch strings.ToLower(raw) {
	case "wireguard", "tunnel", "tun":
		return meshnode.LinkTUN
	case "dtd", "dtdlink":
		return meshnode.LinkDTD
	case "rf":
		return meshnode.LinkRF
	case "":
		return meshnode.LinkUnknown
	default:
		return meshnode.LinkUnknown
	}
}
