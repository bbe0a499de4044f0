package artifact

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kg6wxc/aredn-meshpoller/internal/config"
	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
)

func TestBucketForPrecedence(t *testing.T) {
	cases := []struct {
		name string
		rec  meshnode.NodeRecord
		want string
	}{
		{"supernode wins", meshnode.NodeRecord{Supernode: "true", MeshRF: "off"}, "supernode"},
		{"meshrf off", meshnode.NodeRecord{MeshRF: "off", Channel: "6"}, "noRF"},
		{"channel none", meshnode.NodeRecord{MeshRF: "on", Channel: "none"}, "noRF"},
		{"900MHz board", meshnode.NodeRecord{MeshRF: "on", Channel: "5", BoardID: "0xe009"}, "900"},
		{"2ghz", meshnode.NodeRecord{MeshRF: "on", Channel: "6"}, "2ghz"},
		{"negative channel is 2ghz", meshnode.NodeRecord{MeshRF: "on", Channel: "-2"}, "2ghz"},
		{"3ghz", meshnode.NodeRecord{MeshRF: "on", Channel: "80"}, "3ghz"},
		{"5ghz low", meshnode.NodeRecord{MeshRF: "on", Channel: "40"}, "5ghz"},
		{"5ghz high", meshnode.NodeRecord{MeshRF: "on", Channel: "149"}, "5ghz"},
		{"5ghz 3000+", meshnode.NodeRecord{MeshRF: "on", Channel: "3010"}, "5ghz"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := bucketFor(c.rec); got != c.want {
				t.Errorf("bucketFor(%+v) = %q, want %q", c.rec, got, c.want)
			}
		})
	}
}

func TestBuildMapDataGroupsAndCarriesMapInfo(t *testing.T) {
	cfg := config.Config{
		MapBrowserTitle: "Test Mesh Map",
		DistanceUnits:   "miles",
		MapInitialZoom:  9,
	}
	nodes := map[string]meshnode.NodeRecord{
		"10.0.0.1": {WlanIP: "10.0.0.1", Supernode: "true"},
		"10.0.0.2": {WlanIP: "10.0.0.2", MeshRF: "on", Channel: "6"},
	}
	stats := meshnode.CycleStats{CandidateCount: 2}

	md := BuildMapData(cfg, nodes, stats)

	if md.MapInfo.BrowserTitle != "Test Mesh Map" {
		t.Fatalf("expected map info carried through, got %+v", md.MapInfo)
	}
	if len(md.AllDevices["supernode"]) != 1 || len(md.AllDevices["2ghz"]) != 1 {
		t.Fatalf("expected devices grouped into buckets, got %+v", md.AllDevices)
	}
	if len(md.AllDevices["noRF"]) != 0 {
		t.Fatalf("expected empty buckets present but empty, got %+v", md.AllDevices["noRF"])
	}
}

func TestNodeOutNormalizesTimestamp(t *testing.T) {
	rec := meshnode.NodeRecord{
		WlanIP:   "10.0.0.1",
		LastSeen: time.Date(2026, 7, 30, 12, 0, 0, 123456, time.UTC),
	}
	out := toNodeOut(rec)
	if out.LastSeen != "2026-07-30T12:00:00Z" {
		t.Fatalf("unexpected timestamp format: %q", out.LastSeen)
	}
}

func TestWriteProducesBothArtifactsAtomically(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{MapBrowserTitle: "Test"}
	nodes := map[string]meshnode.NodeRecord{
		"10.0.0.1": {WlanIP: "10.0.0.1", NodeName: "K1ABC-1"},
	}
	stats := meshnode.CycleStats{CandidateCount: 1}

	md := BuildMapData(cfg, nodes, stats)
	report := BuildNodeReport(nodes)

	if err := Write(dir, md, report, zap.NewNop()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	mapPath := filepath.Join(dir, "map_data.json")
	reportPath := filepath.Join(dir, "node_report_data.json")

	for _, p := range []string{mapPath, reportPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s to exist: %v", p, err)
		}
		if _, err := os.Stat(p + ".tmp"); err == nil {
			t.Fatalf("expected temp file %s.tmp to be gone after rename", p)
		}
	}

	var decoded MapData
	b, err := os.ReadFile(mapPath)
	if err != nil {
		t.Fatalf("read map_data.json: %v", err)
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal map_data.json: %v", err)
	}
	if decoded.MapInfo.BrowserTitle != "Test" {
		t.Fatalf("unexpected round-tripped map info: %+v", decoded.MapInfo)
	}
}
