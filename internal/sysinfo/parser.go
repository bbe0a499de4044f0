// Package sysinfo normalises an AREDN node's schema-flexible self
// description document (two schema generations, a legacy node_details
// fallback) into the canonical meshnode.NodeRecord shape.
package sysinfo

import (
	"math"
	"strconv"
	"strings"

	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
)

// wlan0/wlan1 take priority over the legacy interface names; order here
// is the spec's documented fallback chain.
var wlanInterfaceNames = []string{"wlan0", "wlan1"}
var fallbackInterfaceNames = []string{"eth1.3975", "eth0.3975", "br-nomesh", "br0"}

// Parse normalises doc (a decoded sysinfo JSON document) into a
// NodeRecord. callerIP is the IP the document was fetched from; if the
// document's own interfaces reveal a different canonical IP, that one
// is used instead and returned as usedIP so the caller can re-key
// persistence by it.
func Parse(doc map[string]interface{}, callerIP string) (rec meshnode.NodeRecord, usedIP string) {
	top := doc
	details, _ := asMap(doc["node_details"])

	get := func(key string) string {
		if v, ok := str(top[key]); ok && v != "" {
			return v
		}
		if details != nil {
			if v, ok := str(details[key]); ok {
				return v
			}
		}
		return ""
	}

	rec.NodeName = get("node")
	rec.APIVersion = get("api_version")
	rec.GridSquare = get("grid_square")
	rec.Model = get("model")
	rec.BoardID = get("board_id")
	rec.FirmwareVersion = get("firmware_version")
	rec.FirmwareMfg = get("firmware_mfg")
	rec.Description = strings.ReplaceAll(get("description"), "<br>", " ")
	rec.Supernode = boolish(get("mesh_supernode"))
	rec.Gateway = boolish(get("mesh_gateway"))

	rec.Lat = toFloat(top["lat"])
	if rec.Lat == 0 {
		rec.Lat = toFloat(detailsVal(details, "lat"))
	}
	rec.Lon = toFloat(top["lon"])
	if rec.Lon == 0 {
		rec.Lon = toFloat(detailsVal(details, "lon"))
	}
	rec.Lat = round7(rec.Lat)
	rec.Lon = round7(rec.Lon)

	if sysinfoNode, ok := asMap(top["sysinfo"]); ok {
		if rec.Uptime == "" {
			rec.Uptime, _ = str(sysinfoNode["uptime"])
		}
		if loads, ok := sysinfoNode["loads"]; ok {
			rec.LoadAvg = parseLoads(loads)
		}
	}
	if rec.Uptime == "" {
		rec.Uptime = get("uptime")
	}
	if loads, ok := top["loads"]; ok {
		rec.LoadAvg = parseLoads(loads)
	}

	if meshrf, ok := asMap(top["meshrf"]); ok {
		rec.SSID, _ = str(meshrf["ssid"])
		rec.Channel, _ = str(meshrf["channel"])
		rec.ChannelBandwidth, _ = str(meshrf["chanbw"])
		rec.Frequency, _ = str(meshrf["freq"])
		rec.MeshRF, _ = str(meshrf["status"])
		if rec.MeshRF == "" {
			rec.MeshRF = "off"
		}
		if antenna, ok := asMap(meshrf["antenna"]); ok {
			rec.AntennaGain = toFloat(antenna["gain"])
			rec.Beamwidth = toFloat(antenna["beamwidth"])
			rec.Builtin, _ = str(antenna["builtin"])
		}
	} else {
		rec.MeshRF = "off"
		rec.Channel = "none"
	}

	if tunnels, ok := asMap(top["tunnels"]); ok {
		rec.TunnelInstalled = boolish(firstString(tunnels, "active_tunnel_count", "installed"))
		rec.ActiveTunnels, _ = str(tunnels["active_tunnel_count"])
	}

	rec.WlanIP, rec.WifiMAC, rec.LanIP = resolveInterfaces(top["interfaces"], callerIP)

	if services, ok := top["services_local"]; ok {
		rec.Services = parseServices(services)
	}

	if linkInfo, ok := asMap(top["link_info"]); ok {
		rec.LinkInfo = parseLinkInfo(linkInfo)
	}

	usedIP = rec.WlanIP
	if usedIP == "" {
		usedIP = callerIP
		rec.WlanIP = callerIP
	}
	return rec, usedIP
}

// round7 rounds a coordinate to 7 decimal places, per spec.md §3; at the
// equator one step is about 1.1 cm, well past GPS noise floor.
func round7(v float64) float64 {
	const mult = 1e7
	return math.Round(v*mult) / mult
}

// ValidLat reports whether lat falls within the valid latitude
// interval. Out-of-range coordinates are logged by the caller and
// stored as given, never rejected outright (a bad GPS fix shouldn't
// cost the node its whole record).
func ValidLat(lat float64) bool { return lat >= -90 && lat <= 90 }

// ValidLon reports whether lon falls within the valid longitude
// interval.
func ValidLon(lon float64) bool { return lon >= -180 && lon <= 180 }

func detailsVal(details map[string]interface{}, key string) interface{} {
	if details == nil {
		return nil
	}
	return details[key]
}

// resolveInterfaces applies the order-sensitive interface IP selection
// rule: wlan0/wlan1 first, else one of the legacy 10.x-bearing names,
// with br-lan supplying lan_ip and the wlan MAC supplying wifi_mac.
func resolveInterfaces(raw interface{}, fallbackIP string) (wlanIP, wifiMAC, lanIP string) {
	arr, ok := raw.([]interface{})
	if !ok {
		return "", "", ""
	}

	byName := map[string]map[string]interface{}{}
	for _, item := range arr {
		iface, ok := asMap(item)
		if !ok {
			continue
		}
		name, _ := str(iface["name"])
		if name != "" {
			byName[name] = iface
		}
	}

	for _, name := range wlanInterfaceNames {
		if iface, ok := byName[name]; ok {
			if ip, ok := str(iface["ip"]); ok && ip != "" && ip != "none" {
				wlanIP = ip
			}
			if mac, ok := str(iface["mac"]); ok {
				wifiMAC = mac
			}
			break
		}
	}

	if wlanIP == "" {
		for _, name := range fallbackInterfaceNames {
			iface, ok := byName[name]
			if !ok {
				continue
			}
			ip, ok := str(iface["ip"])
			if !ok || ip == "" || ip == "none" {
				continue
			}
			if strings.HasPrefix(ip, "10.") {
				wlanIP = ip
				break
			}
		}
	}

	if iface, ok := byName["br-lan"]; ok {
		if ip, ok := str(iface["ip"]); ok && ip != "none" {
			lanIP = ip
		}
	}

	return wlanIP, wifiMAC, lanIP
}

func parseLoads(raw interface{}) meshnode.LoadAvg {
	var la meshnode.LoadAvg
	arr, ok := raw.([]interface{})
	if !ok {
		return la
	}
	for i := 0; i < 3 && i < len(arr); i++ {
		la[i] = toFloat(arr[i])
	}
	return la
}

func parseServices(raw interface{}) []meshnode.Service {
	arr, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]meshnode.Service, 0, len(arr))
	for _, item := range arr {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		name, _ := str(m["name"])
		proto, _ := str(m["protocol"])
		link, _ := str(m["link"])
		out = append(out, meshnode.Service{Name: name, Protocol: proto, Link: link})
	}
	return out
}

func parseLinkInfo(raw map[string]interface{}) map[string]meshnode.LinkRecord {
	out := make(map[string]meshnode.LinkRecord, len(raw))
	for destIP, v := range raw {
		m, ok := asMap(v)
		if !ok {
			continue
		}
		lr := meshnode.LinkRecord{DestIP: destIP}
		linkType, _ := str(m["linkType"])
		lr.LinkType = normalizeLinkType(linkType)
		lr.Interface, _ = str(m["olsrInterface"])
		lr.RxCost = numPtr(m["rxCost"])
		lr.TxCost = numPtr(m["txCost"])
		lr.RTT = numPtr(m["rtt"])
		lr.Quality = numPtr(m["quality"])
		lr.Distance = numPtr(m["distance"])
		lr.DestHost, _ = str(m["hostname"])
		lr.DestLat = numPtr(m["lat"])
		lr.DestLon = numPtr(m["lon"])
		out[destIP] = lr
	}
	return out
}

// normalizeLinkType maps the variety of upstream spellings into the
// canonical {RF, DTD, TUN, UNKNOWN} set.
func normalizeLinkType(raw string) meshnode.LinkType {
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

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := str(m[k]); ok && v != "" {
			return v
		}
	}
	return ""
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

func str(v interface{}) (string, bool) {
	if v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		if t {
			return "true", true
		}
		return "false", true
	}
	return "", false
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		if t == "" {
			return 0
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func numPtr(v interface{}) *float64 {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case float64:
		f := t
		return &f
	case string:
		if t == "" {
			return nil
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	return nil
}

// boolish normalises AREDN's assorted truthy encodings ("1", 1, "true",
// true) to the text "true"/"false" the persisted model uses.
func boolish(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true":
		return "true"
	default:
		return "false"
	}
}
