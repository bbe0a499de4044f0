// Package firmware classifies AREDN node firmware version strings into
// {Babel, OLSR, Combo, Unknown} using the numeric and nightly-build cutoffs
// configured for the daemon.
package firmware

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Protocol is one of the four routing-protocol classifications a node's
// firmware can be bucketed into.
type Protocol string

const (
	Babel   Protocol = "Babel"
	OLSR    Protocol = "OLSR"
	Combo   Protocol = "Combo"
	Unknown Protocol = "Unknown"
)

var (
	dottedQuadRE = regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{1,2}\.\d{1,2}$`)
	nightlyRE    = regexp.MustCompile(`^\d{8}-[0-9a-fA-F]{7,8}$`)
)

// VersionToOrder parses a dotted-quad version string "a.b.c.d" (each part
// 1-2 digits) into a single sortable integer a*1e6 + b*1e4 + c*1e2 + d.
// Missing trailing parts count as 0, so "3.25.5" orders as "3.25.5.0".
// Malformed input (more than four parts, a part that is not 1-2 digits)
// returns ok=false.
func VersionToOrder(version string) (order int, ok bool) {
	if version == "" {
		return 0, false
	}
	parts := strings.Split(version, ".")
	if len(parts) > 4 {
		return 0, false
	}
	nums := make([]int, 4)
	for i := 0; i < 4; i++ {
		if i >= len(parts) {
			nums[i] = 0
			continue
		}
		p := parts[i]
		if len(p) < 1 || len(p) > 2 || p[0] < '0' || p[0] > '9' {
			return 0, false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		nums[i] = n
	}
	return nums[0]*1_000_000 + nums[1]*10_000 + nums[2]*100 + nums[3], true
}

// NightlyToOrder parses a nightly identifier "YYYYMMDD-<hex7-8>" into the
// integer date prefix. Malformed input returns ok=false.
func NightlyToOrder(nightly string) (order int, ok bool) {
	if nightly == "" || !nightlyRE.MatchString(nightly) {
		return 0, false
	}
	parts := strings.SplitN(nightly, "-", 2)
	n, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Classify reports whether version matches the named firmware kind
// ("babel", "olsr", or "combo") given the configured cutoffs.
func Classify(version, kind string, versionCutoff, nightlyCutoff int) bool {
	if version == "" {
		return false
	}
	v := strings.TrimSpace(version)

	switch kind {
	case "babel":
		return strings.HasPrefix(v, "babel-")
	case "olsr":
		if dottedQuadRE.MatchString(v) {
			order, ok := VersionToOrder(v)
			return ok && order < versionCutoff
		}
		if nightlyRE.MatchString(v) {
			order, ok := NightlyToOrder(v)
			return ok && order < nightlyCutoff
		}
		return false
	case "combo":
		if strings.HasPrefix(v, "babel-") {
			return false
		}
		if dottedQuadRE.MatchString(v) {
			order, ok := VersionToOrder(v)
			return ok && order >= versionCutoff
		}
		if nightlyRE.MatchString(v) {
			order, ok := NightlyToOrder(v)
			return ok && order >= nightlyCutoff
		}
		return false
	default:
		return false
	}
}

// DetermineProtocol classifies version using the three kinds in order
// (Babel, OLSR, Combo), returning Unknown if lastSeen is absent, stale
// beyond threshold, or no kind matches.
func DetermineProtocol(version string, lastSeen *time.Time, threshold time.Duration, versionCutoff, nightlyCutoff int) Protocol {
	if lastSeen == nil || time.Since(*lastSeen) > threshold {
		return Unknown
	}
	for _, kind := range []struct {
		name string
		p    Protocol
	}{
		{"babel", Babel},
		{"olsr", OLSR},
		{"combo", Combo},
	} {
		if Classify(version, kind.name, versionCutoff, nightlyCutoff) {
			return kind.p
		}
	}
	return Unknown
}
