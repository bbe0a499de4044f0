// Package meshnode defines the canonical persisted data model: NodeRecord,
// LinkRecord and CycleStats, plus the opaque-blob codec used to store
// structured subfields as hex-encoded text.
package meshnode

import "time"

// Service is one entry of a node's services_local descriptor list.
type Service struct {
	Name     string `json:"name"`
	Protocol string `json:"protocol,omitempty"`
	Link     string `json:"link,omitempty"`
}

// LoadAvg is the ordered 1/5/15-minute load average triple.
type LoadAvg [3]float64

// LinkType is the normalised classification of a LinkRecord.
type LinkType string

const (
	LinkRF      LinkType = "RF"
	LinkDTD     LinkType = "DTD"
	LinkTUN     LinkType = "TUN"
	LinkUnknown LinkType = "UNKNOWN"
)

// LinkRecord is one entry in a node's link_info map, keyed by destination IP.
type LinkRecord struct {
	DestIP      string   `json:"destIp"`
	LinkType    LinkType `json:"linkType"`
	Interface   string   `json:"interface,omitempty"`
	RxCost      *float64 `json:"rxCost,omitempty"`
	TxCost      *float64 `json:"txCost,omitempty"`
	RTT         *float64 `json:"rtt,omitempty"`
	Quality     *float64 `json:"quality,omitempty"`
	Distance    *float64 `json:"distance,omitempty"`
	DestHost    string   `json:"destHostname,omitempty"`
	DestLat     *float64 `json:"destLat,omitempty"`
	DestLon     *float64 `json:"destLon,omitempty"`

	// Filled in by the link enricher second pass.
	LinkLat       *float64 `json:"linkLat,omitempty"`
	LinkLon       *float64 `json:"linkLon,omitempty"`
	DistanceKM    *float64 `json:"distanceKM,omitempty"`
	DistanceMiles *float64 `json:"distanceMiles,omitempty"`
	Bearing       *float64 `json:"bearing,omitempty"`
}

// NodeRecord is the canonical per-node state, keyed by WlanIP.
type NodeRecord struct {
	WlanIP string `json:"wlanIp"`

	NodeName         string  `json:"nodeName"`
	Uptime           string  `json:"uptime"`
	LoadAvg          LoadAvg `json:"loadAvg"`
	Model            string  `json:"model"`
	BoardID          string  `json:"boardId"`
	FirmwareMfg      string  `json:"firmwareMfg"`
	FirmwareVersion  string  `json:"firmwareVersion"`
	APIVersion       string  `json:"apiVersion"`
	SSID             string  `json:"ssid"`
	Channel          string  `json:"channel"`
	ChannelBandwidth string  `json:"channelBandwidth"`
	Frequency        string  `json:"frequency"`
	TunnelInstalled  string  `json:"tunnelInstalled"` // "true"/"false"
	ActiveTunnels    string  `json:"activeTunnels"`   // integer-as-text

	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`

	WifiMAC    string `json:"wifiMac"`
	LanIP      string `json:"lanIp"`
	GridSquare string `json:"gridSquare"`

	Services []Service `json:"services"`

	Description string `json:"description"`

	Supernode string `json:"supernode"` // "true"/"false"
	Gateway   string `json:"gateway"`   // "true"/"false"
	MeshRF    string `json:"meshRf"`    // "on"/"off"

	LinkInfo map[string]LinkRecord `json:"linkInfo"`

	HopsAway *int `json:"hopsAway,omitempty"` // nil = unknown/synthesised

	LastSeen time.Time `json:"lastSeen"`

	AntennaGain float64 `json:"antennaGain"`
	Beamwidth   float64 `json:"beamwidth"`
	Builtin     string  `json:"builtin"`

	ResponseTimeMS float64 `json:"responseTimeMs"`
}

// CycleStats is the single-row per-cycle aggregate, identified by a fixed
// key ("POLLINFO") and overwritten wholesale each cycle.
type CycleStats struct {
	ID                   string `json:"id"`
	ConfiguredConcurrency int   `json:"configuredConcurrency"`
	CandidateCount       int    `json:"candidateCount"`
	CountFailed          int    `json:"countFailed"`
	MaxHopsObserved      int    `json:"maxHopsObserved"`
	CountPolled          int    `json:"countPolled"`
	CountNoLocation      int    `json:"countNoLocation"`
	MappableNodes        int    `json:"mappableNodes"`
	MappableLinks        int    `json:"mappableLinks"`
	CycleDurationSeconds float64 `json:"cycleDurationSeconds"`
	BabelCount           int    `json:"babelCount"`
	OLSRCount            int    `json:"olsrCount"`
	ComboCount           int    `json:"comboCount"`
	MinResponseTimeMS    float64 `json:"minResponseTimeMs"`
	MaxResponseTimeMS    float64 `json:"maxResponseTimeMs"`
}

// StatsRowID is the fixed primary key CycleStats is upserted under.
const StatsRowID = "POLLINFO"
