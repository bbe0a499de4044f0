// Package enrich performs the second-pass link annotation: once every
// node in a cycle has been polled, each RF link's endpoint coordinates
// are resolved and stamped with distance and bearing.
package enrich

import (
	"github.com/kg6wxc/aredn-meshpoller/internal/geo"
	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
)

// Links annotates every link in nodes with its endpoint coordinates,
// using each destination's own polled coordinates when known, falling
// back to the coordinates the link itself carried from LQM/link_info.
// Distance and bearing are computed only for RF links (DTD/TUN
// endpoints have no meaningful radio path to measure); links whose
// endpoint location can't be resolved either way are left unannotated
// but still kept in the map.
func Links(nodes map[string]meshnode.NodeRecord) {
	for ip, rec := range nodes {
		if rec.LinkInfo == nil || rec.Lat == 0 && rec.Lon == 0 {
			continue
		}
		for destIP, link := range rec.LinkInfo {
			lat, lon, ok := resolveEndpoint(nodes, destIP, link)
			if !ok {
				continue
			}
			link.LinkLat = &lat
			link.LinkLon = &lon
			if link.LinkType == meshnode.LinkRF {
				km := geo.HaversineKM(rec.Lat, rec.Lon, lat, lon)
				miles := geo.KMToMiles(km)
				bearing := geo.InitialBearing(rec.Lat, rec.Lon, lat, lon)
				link.DistanceKM = &km
				link.DistanceMiles = &miles
				link.Bearing = &bearing
			}
			rec.LinkInfo[destIP] = link
		}
		nodes[ip] = rec
	}
}

// resolveEndpoint prefers the destination node's own stored location
// (freshest, from its own poll), falling back to the coordinates the
// originating link itself reported.
func resolveEndpoint(nodes map[string]meshnode.NodeRecord, destIP string, link meshnode.LinkRecord) (lat, lon float64, ok bool) {
	if dest, found := nodes[destIP]; found && (dest.Lat != 0 || dest.Lon != 0) {
		return dest.Lat, dest.Lon, true
	}
	if link.DestLat != nil && link.DestLon != nil && (*link.DestLat != 0 || *link.DestLon != 0) {
		return *link.DestLat, *link.DestLon, true
	}
	return 0, 0, false
}
