package enrich

import (
	"testing"

	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
)

func TestLinksUsesDestinationOwnCoordinates(t *testing.T) {
	nodes := map[string]meshnode.NodeRecord{
		"10.0.0.1": {
			WlanIP: "10.0.0.1",
			Lat:    40.0, Lon: -105.0,
			LinkInfo: map[string]meshnode.LinkRecord{
				"10.0.0.2": {DestIP: "10.0.0.2", LinkType: meshnode.LinkRF},
			},
		},
		"10.0.0.2": {
			WlanIP: "10.0.0.2",
			Lat:    40.01, Lon: -105.0,
		},
	}

	Links(nodes)

	link := nodes["10.0.0.1"].LinkInfo["10.0.0.2"]
	if link.DistanceKM == nil || *link.DistanceKM <= 0 {
		t.Fatalf("expected positive distance, got %+v", link)
	}
	if link.Bearing == nil {
		t.Fatalf("expected bearing set")
	}
	if link.LinkLat == nil || *link.LinkLat != 40.01 {
		t.Fatalf("expected link lat from destination node, got %+v", link.LinkLat)
	}
}

func TestLinksFallsBackToLinkOwnCoordinates(t *testing.T) {
	destLat, destLon := 41.0, -106.0
	nodes := map[string]meshnode.NodeRecord{
		"10.0.0.1": {
			WlanIP: "10.0.0.1",
			Lat:    40.0, Lon: -105.0,
			LinkInfo: map[string]meshnode.LinkRecord{
				"10.0.0.9": {DestIP: "10.0.0.9", LinkType: meshnode.LinkRF, DestLat: &destLat, DestLon: &destLon},
			},
		},
	}

	Links(nodes)

	link := nodes["10.0.0.1"].LinkInfo["10.0.0.9"]
	if link.DistanceKM == nil {
		t.Fatalf("expected distance resolved from link's own coordinates")
	}
}

func TestLinksSkipsUnresolvableAndNonRF(t *testing.T) {
	nodes := map[string]meshnode.NodeRecord{
		"10.0.0.1": {
			WlanIP: "10.0.0.1",
			Lat:    40.0, Lon: -105.0,
			LinkInfo: map[string]meshnode.LinkRecord{
				"10.0.0.5": {DestIP: "10.0.0.5", LinkType: meshnode.LinkRF},
				"10.0.0.6": {DestIP: "10.0.0.6", LinkType: meshnode.LinkDTD},
			},
		},
		"10.0.0.6": {WlanIP: "10.0.0.6", Lat: 40.02, Lon: -105.0},
	}

	Links(nodes)

	if nodes["10.0.0.1"].LinkInfo["10.0.0.5"].DistanceKM != nil {
		t.Fatalf("expected unresolvable RF link left unannotated")
	}
	dtd := nodes["10.0.0.1"].LinkInfo["10.0.0.6"]
	if dtd.DistanceKM != nil || dtd.Bearing != nil {
		t.Fatalf("expected DTD link to have no distance/bearing, got %+v", dtd)
	}
	if dtd.LinkLat == nil || *dtd.LinkLat != 40.02 {
		t.Fatalf("expected DTD link endpoint coordinates resolved, got %+v", dtd.LinkLat)
	}
}

func TestLinksSkipsNodeWithoutLocation(t *testing.T) {
	nodes := map[string]meshnode.NodeRecord{
		"10.0.0.1": {
			WlanIP: "10.0.0.1",
			LinkInfo: map[string]meshnode.LinkRecord{
				"10.0.0.2": {DestIP: "10.0.0.2", LinkType: meshnode.LinkRF},
			},
		},
		"10.0.0.2": {WlanIP: "10.0.0.2", Lat: 40.0, Lon: -105.0},
	}

	Links(nodes)

	if nodes["10.0.0.1"].LinkInfo["10.0.0.2"].DistanceKM != nil {
		t.Fatalf("expected no annotation when source node has no location")
	}
}
