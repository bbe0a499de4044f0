// Package artifact materialises the two downstream JSON files
// (map_data.json, node_report_data.json) from a cycle's persisted node
// set and stats row, per spec.md §4.9.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/kg6wxc/aredn-meshpoller/internal/config"
	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
	"github.com/kg6wxc/aredn-meshpoller/internal/poller"
)

const timestampLayout = "2006-01-02T15:04:05Z"

// MapInfo is the static map-rendering configuration surfaced verbatim
// in map_data.json.
type MapInfo struct {
	BrowserTitle       string   `json:"browserTitle"`
	Attribution        string   `json:"attribution"`
	Contact            string   `json:"contact"`
	CenterLat          float64  `json:"centerLat"`
	CenterLon          float64  `json:"centerLon"`
	InitialZoom        int      `json:"initialZoom"`
	DistanceUnits      string   `json:"distanceUnits"`
	TileServerPriority []string `json:"tileServerPriority"`
	DefaultTileServer  string   `json:"defaultTileServer"`
}

// MapData is the shape written to map_data.json.
type MapData struct {
	MapInfo     MapInfo             `json:"mapInfo"`
	PollingInfo meshnode.CycleStats `json:"pollingInfo"`
	AllDevices  map[string][]NodeOut `json:"allDevices"`
}

// NodeOut is the artifact projection of meshnode.NodeRecord: identical
// fields, except LastSeen is normalised to the fixed
// YYYY-MM-DDThh:mm:ssZ shape rather than Go's default RFC3339Nano with
// a numeric offset.
type NodeOut struct {
	WlanIP string `json:"wlanIp"`

	NodeName         string          `json:"nodeName"`
	Uptime           string          `json:"uptime"`
	LoadAvg          meshnode.LoadAvg `json:"loadAvg"`
	Model            string          `json:"model"`
	BoardID          string          `json:"boardId"`
	FirmwareMfg      string          `json:"firmwareMfg"`
	FirmwareVersion  string          `json:"firmwareVersion"`
	APIVersion       string          `json:"apiVersion"`
	SSID             string          `json:"ssid"`
	Channel          string          `json:"channel"`
	ChannelBandwidth string          `json:"channelBandwidth"`
	Frequency        string          `json:"frequency"`
	TunnelInstalled  string          `json:"tunnelInstalled"`
	ActiveTunnels    string          `json:"activeTunnels"`

	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	WifiMAC    string `json:"wifiMac"`
	LanIP      string `json:"lanIp"`
	GridSquare string `json:"gridSquare"`

	Services []meshnode.Service `json:"services"`

	Description string `json:"description"`

	Supernode string `json:"supernode"`
	Gateway   string `json:"gateway"`
	MeshRF    string `json:"meshRf"`

	LinkInfo map[string]meshnode.LinkRecord `json:"linkInfo"`

	HopsAway *int `json:"hopsAway,omitempty"`

	LastSeen string `json:"lastSeen"`

	AntennaGain float64 `json:"antennaGain"`
	Beamwidth   float64 `json:"beamwidth"`
	Builtin     string  `json:"builtin"`

	ResponseTimeMS float64 `json:"responseTimeMs"`
}

func toNodeOut(rec meshnode.NodeRecord) NodeOut {
	return NodeOut{
		WlanIP: rec.WlanIP, NodeName: rec.NodeName, Uptime: rec.Uptime,
		LoadAvg: rec.LoadAvg, Model: rec.Model, BoardID: rec.BoardID,
		FirmwareMfg: rec.FirmwareMfg, FirmwareVersion: rec.FirmwareVersion,
		APIVersion: rec.APIVersion, SSID: rec.SSID, Channel: rec.Channel,
		ChannelBandwidth: rec.ChannelBandwidth, Frequency: rec.Frequency,
		TunnelInstalled: rec.TunnelInstalled, ActiveTunnels: rec.ActiveTunnels,
		Lat: rec.Lat, Lon: rec.Lon, WifiMAC: rec.WifiMAC, LanIP: rec.LanIP,
		GridSquare: rec.GridSquare, Services: rec.Services,
		Description: rec.Description, Supernode: rec.Supernode,
		Gateway: rec.Gateway, MeshRF: rec.MeshRF, LinkInfo: rec.LinkInfo,
		HopsAway: rec.HopsAway, LastSeen: NormalizeTimestamp(rec.LastSeen),
		AntennaGain: rec.AntennaGain, Beamwidth: rec.Beamwidth,
		Builtin: rec.Builtin, ResponseTimeMS: rec.ResponseTimeMS,
	}
}

// boardIDs900MHz mirrors poller's set; kept independent since this
// bucketing rule is a distinct, separately documented classification
// from poller.CheckBand (it permits negative channels into the 2GHz
// bucket, which CheckBand also does, but the two are specified as
// separate operations and evolve independently).
var boardIDs900MHz = map[string]bool{
	"0xe009": true, "0xe1b9": true, "0xe239": true,
}

// bucketFor classifies a node into one of the six map buckets, per
// spec.md §4.9's precedence: supernode wins over everything; then
// no-RF; then 900MHz board IDs; then channel-based banding.
func bucketFor(rec meshnode.NodeRecord) string {
	if rec.Supernode == "true" {
		return "supernode"
	}
	if rec.MeshRF == "off" || rec.Channel == "none" {
		return "noRF"
	}
	if boardIDs900MHz[rec.BoardID] {
		return "900"
	}
	ch, ok := poller.ParseChannel(rec.Channel)
	if !ok {
		return "noRF"
	}
	switch {
	case ch <= 11:
		return "2ghz"
	case ch >= 76 && ch <= 99:
		return "3ghz"
	case (ch >= 37 && ch <= 64) || (ch >= 100 && ch <= 184) || ch >= 3000:
		return "5ghz"
	default:
		return "noRF"
	}
}

// BuildMapData groups nodes into their display buckets and pairs them
// with the cycle's stats row and static map configuration.
func BuildMapData(cfg config.Config, nodes map[string]meshnode.NodeRecord, stats meshnode.CycleStats) MapData {
	buckets := map[string][]NodeOut{
		"noRF": {}, "supernode": {}, "900": {}, "2ghz": {}, "3ghz": {}, "5ghz": {},
	}
	for _, rec := range sortedByIP(nodes) {
		b := bucketFor(rec)
		buckets[b] = append(buckets[b], toNodeOut(rec))
	}

	return MapData{
		MapInfo: MapInfo{
			BrowserTitle:       cfg.MapBrowserTitle,
			Attribution:        cfg.Attribution,
			Contact:            cfg.MapContact,
			CenterLat:          cfg.MapCenterLat,
			CenterLon:          cfg.MapCenterLon,
			InitialZoom:        cfg.MapInitialZoom,
			DistanceUnits:      cfg.DistanceUnits,
			TileServerPriority: cfg.TileServerPriority,
			DefaultTileServer:  cfg.DefaultTileServer,
		},
		PollingInfo: stats,
		AllDevices:  buckets,
	}
}

// BuildNodeReport flattens nodes into the array node_report_data.json
// expects, sorted for deterministic output.
func BuildNodeReport(nodes map[string]meshnode.NodeRecord) []NodeOut {
	sorted := sortedByIP(nodes)
	out := make([]NodeOut, len(sorted))
	for i, rec := range sorted {
		out[i] = toNodeOut(rec)
	}
	return out
}

func sortedByIP(nodes map[string]meshnode.NodeRecord) []meshnode.NodeRecord {
	out := make([]meshnode.NodeRecord, 0, len(nodes))
	for _, rec := range nodes {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WlanIP < out[j].WlanIP })
	return out
}

// Write renders both artifacts into dir, each via a temp-file-then-
// rename so a reader never observes a half-written file.
func Write(dir string, mapData MapData, nodeReport []NodeOut, logger *zap.Logger) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: create data dir: %w", err)
	}

	start := time.Now()
	mapBytes, err := json.MarshalIndent(mapData, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: marshal map_data: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, "map_data.json"), mapBytes); err != nil {
		return err
	}

	reportBytes, err := json.MarshalIndent(nodeReport, "", "  ")
	if err != nil {
		return fmt.Errorf("artifact: marshal node_report_data: %w", err)
	}
	if err := writeAtomic(filepath.Join(dir, "node_report_data.json"), reportBytes); err != nil {
		return err
	}

	logger.Info("artifacts written",
		zap.String("dir", dir),
		zap.String("map_data_size", humanize.Bytes(uint64(len(mapBytes)))),
		zap.String("node_report_size", humanize.Bytes(uint64(len(reportBytes)))),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("artifact: write temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("artifact: rename %s to %s: %w", tmp, path, err)
	}
	return nil
}

// NormalizeTimestamp formats t the way both artifacts expect.
func NormalizeTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
