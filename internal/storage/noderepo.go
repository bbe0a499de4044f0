package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
)

// NodeRepo persists meshnode.NodeRecord rows via hand-written SQL, using
// ON CONFLICT upserts so a node's row survives across cycles even when
// a given cycle only refreshes part of it (e.g. link_info arriving from
// a later merge step than the root sysinfo fetch).
type NodeRepo struct{ db *sql.DB }

func NewNodeRepo(db *sql.DB) *NodeRepo { return &NodeRepo{db: db} }

// Upsert inserts or replaces a node row for rec.WlanIP. Every column is
// overwritten except link_info, which keeps its stored value when
// rec.LinkInfo is nil.
func (r *NodeRepo) Upsert(ctx context.Context, rec meshnode.NodeRecord) error {
	loadAvg, err := meshnode.EncodeBlob(rec.LoadAvg)
	if err != nil {
		return err
	}
	services, err := meshnode.EncodeBlob(rec.Services)
	if err != nil {
		return err
	}
	// A nil link_info is encoded as "" rather than a hex-encoded "null",
	// so the ON CONFLICT clause below can tell "this poll didn't produce
	// link data" apart from "this poll produced an empty link map" and
	// preserve the prior cycle's blob in the former case.
	var linkInfo string
	if rec.LinkInfo != nil {
		linkInfo, err = meshnode.EncodeBlob(rec.LinkInfo)
		if err != nil {
			return err
		}
	}

	lastSeen := rec.LastSeen
	if lastSeen.IsZero() {
		lastSeen = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO nodes (
		wlan_ip, node_name, uptime, load_avg, model, board_id, firmware_mfg,
		firmware_version, api_version, ssid, channel, channel_bandwidth,
		frequency, tunnel_installed, active_tunnels, lat, lon, wifi_mac,
		lan_ip, grid_square, services, description, supernode, gateway,
		mesh_rf, link_info, hops_away, last_seen, antenna_gain, beamwidth,
		builtin, response_time_ms
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(wlan_ip) DO UPDATE SET
		node_name=excluded.node_name,
		uptime=excluded.uptime,
		load_avg=excluded.load_avg,
		model=excluded.model,
		board_id=excluded.board_id,
		firmware_mfg=excluded.firmware_mfg,
		firmware_version=excluded.firmware_version,
		api_version=excluded.api_version,
		ssid=excluded.ssid,
		channel=excluded.channel,
		channel_bandwidth=excluded.channel_bandwidth,
		frequency=excluded.frequency,
		tunnel_installed=excluded.tunnel_installed,
		active_tunnels=excluded.active_tunnels,
		lat=excluded.lat,
		lon=excluded.lon,
		wifi_mac=excluded.wifi_mac,
		lan_ip=excluded.lan_ip,
		grid_square=excluded.grid_square,
		services=excluded.services,
		description=excluded.description,
		supernode=excluded.supernode,
		gateway=excluded.gateway,
		mesh_rf=excluded.mesh_rf,
		link_info=COALESCE(NULLIF(excluded.link_info, ''), nodes.link_info),
		hops_away=excluded.hops_away,
		last_seen=excluded.last_seen,
		antenna_gain=excluded.antenna_gain,
		beamwidth=excluded.beamwidth,
		builtin=excluded.builtin,
		response_time_ms=excluded.response_time_ms`,
		rec.WlanIP, rec.NodeName, rec.Uptime, loadAvg, rec.Model, rec.BoardID,
		rec.FirmwareMfg, rec.FirmwareVersion, rec.APIVersion, rec.SSID,
		rec.Channel, rec.ChannelBandwidth, rec.Frequency, rec.TunnelInstalled,
		rec.ActiveTunnels, rec.Lat, rec.Lon, rec.WifiMAC, rec.LanIP,
		rec.GridSquare, services, rec.Description, rec.Supernode, rec.Gateway,
		rec.MeshRF, linkInfo, rec.HopsAway, lastSeen, rec.AntennaGain,
		rec.Beamwidth, rec.Builtin, rec.ResponseTimeMS)
	return err
}

// UpdateLinkInfo rewrites only a node's link_info column, used by the
// enricher's second pass so it doesn't have to re-supply every field.
func (r *NodeRepo) UpdateLinkInfo(ctx context.Context, wlanIP string, links map[string]meshnode.LinkRecord) error {
	encoded, err := meshnode.EncodeBlob(links)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE nodes SET link_info = ? WHERE wlan_ip = ?`, encoded, wlanIP)
	return err
}

// MarkInactive clears the link_info of every node not present in
// seenIPs; a node absent from one cycle's discovery is never deleted or
// hidden, only left without fresh link data until it's seen again.
func (r *NodeRepo) MarkInactive(ctx context.Context, seenIPs map[string]bool) error {
	rows, err := r.db.QueryContext(ctx, `SELECT wlan_ip FROM nodes`)
	if err != nil {
		return err
	}
	var stale []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			rows.Close()
			return err
		}
		if !seenIPs[ip] {
			stale = append(stale, ip)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, ip := range stale {
		if _, err := r.db.ExecContext(ctx, `UPDATE nodes SET link_info = '' WHERE wlan_ip = ?`, ip); err != nil {
			return err
		}
	}
	return nil
}

// GetAll returns every node, keyed by WlanIP. Nodes are never deleted
// by the daemon; a node not polled in a cycle keeps its last-known data
// until it's seen again, except link_info, which MarkInactive clears.
func (r *NodeRepo) GetAll(ctx context.Context) (map[string]meshnode.NodeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT
		wlan_ip, node_name, uptime, load_avg, model, board_id, firmware_mfg,
		firmware_version, api_version, ssid, channel, channel_bandwidth,
		frequency, tunnel_installed, active_tunnels, lat, lon, wifi_mac,
		lan_ip, grid_square, services, description, supernode, gateway,
		mesh_rf, link_info, hops_away, last_seen, antenna_gain, beamwidth,
		builtin, response_time_ms
		FROM nodes`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]meshnode.NodeRecord{}
	for rows.Next() {
		var rec meshnode.NodeRecord
		var loadAvg, services, linkInfo string
		var hopsAway sql.NullInt64
		if err := rows.Scan(
			&rec.WlanIP, &rec.NodeName, &rec.Uptime, &loadAvg, &rec.Model, &rec.BoardID,
			&rec.FirmwareMfg, &rec.FirmwareVersion, &rec.APIVersion, &rec.SSID,
			&rec.Channel, &rec.ChannelBandwidth, &rec.Frequency, &rec.TunnelInstalled,
			&rec.ActiveTunnels, &rec.Lat, &rec.Lon, &rec.WifiMAC, &rec.LanIP,
			&rec.GridSquare, &services, &rec.Description, &rec.Supernode, &rec.Gateway,
			&rec.MeshRF, &linkInfo, &hopsAway, &rec.LastSeen, &rec.AntennaGain,
			&rec.Beamwidth, &rec.Builtin, &rec.ResponseTimeMS,
		); err != nil {
			return nil, err
		}

		if hopsAway.Valid {
			h := int(hopsAway.Int64)
			rec.HopsAway = &h
		}
		if err := meshnode.DecodeBlob(loadAvg, &rec.LoadAvg); err != nil {
			rec.LoadAvg = meshnode.LoadAvg{}
		}
		if err := meshnode.DecodeBlob(services, &rec.Services); err != nil {
			rec.Services = nil
		}
		if err := meshnode.DecodeBlob(linkInfo, &rec.LinkInfo); err != nil {
			rec.LinkInfo = nil
		}

		out[rec.WlanIP] = rec
	}
	return out, rows.Err()
}
