package engine

import (
	"sort"
	"strings"

	"github.com/sells-group/utility-lookup/internal/model"
)

// coopAreaThresholdKM2 separates genuine municipal and co-op service areas
// (CPS Energy 1,557 km², Austin Energy 830 km²) from overgeneralized rural
// co-op polygons (Hilco 12,020 km², Trinity Valley 14,204 km²).
const coopAreaThresholdKM2 = 5000

// tduPriority ranks Texas TDUs for overlap resolution. The ranking is
// empirical, calibrated against tenant-verified addresses: TNMP's HIFLD
// polygon overlaps Oncor's by more than half, and that overlap is almost
// entirely Oncor territory.
var tduPriority = map[string]int{
	"CENTERPOINT ENERGY":                  1,
	"AEP TEXAS CENTRAL COMPANY":           2,
	"AEP TEXAS NORTH COMPANY":             2,
	"ONCOR ELECTRIC DELIVERY COMPANY LLC": 3,
	"TEXAS-NEW MEXICO POWER CO":           4,
	"CITY OF LUBBOCK - (TX)":              5,
}

// largeIOUNames are investor-owned utilities whose HIFLD polygons are drawn
// over the municipal and co-op carve-outs inside their historical footprint.
var largeIOUNames = []string{
	"DUKE ENERGY", "DUKE ENERGY CAROLINAS", "DUKE ENERGY PROGRESS",
	"DUKE ENERGY FLORIDA", "DUKE ENERGY INDIANA", "DUKE ENERGY OHIO",
	"DOMINION ENERGY", "DOMINION VIRGINIA POWER",
	"DOMINION ENERGY SOUTH CAROLINA",
	"AMERICAN ELECTRIC POWER", "AEP",
	"AEP OHIO", "AEP TEXAS", "APPALACHIAN POWER",
	"INDIANA MICHIGAN POWER", "KENTUCKY POWER",
	"SOUTHERN COMPANY", "GEORGIA POWER", "ALABAMA POWER",
	"MISSISSIPPI POWER",
	"ENTERGY", "ENTERGY ARKANSAS", "ENTERGY LOUISIANA",
	"ENTERGY MISSISSIPPI", "ENTERGY TEXAS",
	"NEXTERA ENERGY", "FLORIDA POWER & LIGHT", "FPL",
	"FLORIDA POWER AND LIGHT", "GULF POWER",
	"XCEL ENERGY", "NORTHERN STATES POWER",
	"PUBLIC SERVICE COMPANY OF COLORADO",
	"PACIFIC GAS & ELECTRIC", "PACIFIC GAS AND ELECTRIC", "PG&E",
	"CONSUMERS ENERGY",
	"EVERSOURCE", "EVERSOURCE ENERGY",
	"PPL ELECTRIC", "PPL CORPORATION",
	"LOUISVILLE GAS AND ELECTRIC", "KENTUCKY UTILITIES",
	"PACIFICORP", "ROCKY MOUNTAIN POWER", "PACIFIC POWER",
	"AMEREN", "AMEREN ILLINOIS", "AMEREN MISSOURI",
	"APS", "ARIZONA PUBLIC SERVICE",
	"IDAHO POWER",
	"TAMPA ELECTRIC", "TECO ENERGY",
}

// localUtilityKeywords mark a candidate as a municipal, co-op, or district
// utility for IOU demotion.
var localUtilityKeywords = []string{
	"COOPERATIVE", "COOP", "ELECTRIC MEMBERSHIP",
	"MUNICIPAL", "CITY OF", "TOWN OF",
	"PUBLIC UTILITIES", "UTILITIES COMMISSION",
	"PUD", "PUBLIC UTILITY DISTRICT",
	"EMC", "CPW", "REA", "REC",
}

// localUtilityNames are known local utilities whose names carry none of the
// co-op or municipal keywords.
var localUtilityNames = []string{
	"ENERGY UNITED", "BRIGHTRIDGE", "JEA",
	"GREER CPW", "GREER COMMISSION OF PUBLIC WORKS",
	"SANTEE COOPER",
	"SECO ENERGY",
	"PEDERNALES ELECTRIC", "PEDERNALES ELECTRIC COOPERATIVE",
	"NEW BRAUNFELS UTILITIES",
	"BRYAN TEXAS UTILITIES",
	"CPS ENERGY",
	"AUSTIN ENERGY",
	"EPB", "EPB CHATTANOOGA",
	"GAINESVILLE REGIONAL UTILITIES",
	"KISSIMMEE UTILITY AUTHORITY",
	"TALQUIN ELECTRIC",
	"COWETA-FAYETTE EMC", "COWETA FAYETTE EMC",
	"CANOOCHEE EMC",
	"SNAPPING SHOALS EMC",
	"WAKE EMC",
	"PIEDMONT EMC", "PIEDMONT ELECTRIC MEMBERSHIP",
	"CENTRAL EMC", "CENTRAL ELECTRIC MEMBERSHIP",
	"LUMBEE RIVER EMC",
	"PEE DEE ELECTRIC",
	"BROAD RIVER ELECTRIC",
	"MID-CAROLINA ELECTRIC", "MID CAROLINA ELECTRIC",
	"NEWBERRY ELECTRIC",
}

func isLargeIOU(name string) bool {
	upper := strings.ToUpper(name)
	for _, iou := range largeIOUNames {
		if strings.Contains(upper, iou) {
			return true
		}
	}
	return false
}

func looksLikeLocalUtility(name string) bool {
	upper := strings.ToUpper(name)
	for _, kw := range localUtilityKeywords {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	for _, n := range localUtilityNames {
		if strings.Contains(upper, n) {
			return true
		}
	}
	return false
}

func isCoopOrMunicipal(shapeType string) bool {
	upper := strings.ToUpper(shapeType)
	return strings.Contains(upper, "COOPERATIVE") || strings.Contains(upper, "MUNICIPAL")
}

// arbitrate picks the one territory a point is actually served by when
// multiple polygons contain it. Strategy dispatches on utility type, with a
// Texas-specific arbiter for the deregulated electric market.
func (e *Engine) arbitrate(polys []model.TerritoryPolygon, utility model.UtilityType, state string) model.TerritoryPolygon {
	if len(polys) == 1 {
		return polys[0]
	}
	switch utility {
	case model.UtilityElectric:
		if hasTexasPolygon(polys) {
			return arbitrateTexasElectric(polys)
		}
		return arbitrateElectricByCustomers(polys)
	case model.UtilityGas:
		return arbitrateGas(polys, state)
	default:
		// Water systems nest: city inside county inside regional board.
		// QueryPoint returns smallest first, which is the actual provider.
		return polys[0]
	}
}

func hasTexasPolygon(polys []model.TerritoryPolygon) bool {
	for _, p := range polys {
		if strings.EqualFold(p.State, "TX") {
			return true
		}
		if _, ok := tduPriority[strings.ToUpper(p.Name)]; ok {
			return true
		}
	}
	return false
}

// arbitrateTexasElectric resolves overlapping ERCOT polygons. A co-op or
// municipal polygon wins only when it is genuinely local (under the area
// threshold); otherwise the fixed TDU priority decides.
func arbitrateTexasElectric(polys []model.TerritoryPolygon) model.TerritoryPolygon {
	var coops, tdus, others []model.TerritoryPolygon
	for _, p := range polys {
		switch {
		case isCoopOrMunicipal(p.Type):
			coops = append(coops, p)
		default:
			if _, ok := tduPriority[strings.ToUpper(p.Name)]; ok {
				tdus = append(tdus, p)
			} else {
				others = append(others, p)
			}
		}
	}

	if len(coops) > 0 {
		if len(tdus) == 0 {
			return coops[0]
		}
		for _, c := range coops {
			if c.AreaKM2 > 0 && c.AreaKM2 < coopAreaThresholdKM2 {
				return c
			}
		}
		// Every co-op polygon is an overgeneralized rural artifact; the TDU
		// priority decides.
	}

	if len(tdus) > 0 {
		sort.SliceStable(tdus, func(i, j int) bool {
			return tduRank(tdus[i].Name) < tduRank(tdus[j].Name)
		})
		return tdus[0]
	}
	return polys[0]
}

func tduRank(name string) int {
	if r, ok := tduPriority[strings.ToUpper(name)]; ok {
		return r
	}
	return 99
}

// arbitrateElectricByCustomers scores overlapping non-Texas electric
// polygons. Customer counts anchor the score; area and shape type correct
// for HIFLD's overgeneralized IOU and federal-entity polygons.
func arbitrateElectricByCustomers(polys []model.TerritoryPolygon) model.TerritoryPolygon {
	// A local co-op or municipal beats any large IOU outright.
	var coops, ious []model.TerritoryPolygon
	for _, p := range polys {
		switch {
		case isCoopOrMunicipal(p.Type):
			coops = append(coops, p)
		case isLargeIOU(p.Name):
			ious = append(ious, p)
		}
	}
	if len(coops) > 0 && len(ious) > 0 {
		for _, c := range coops {
			if c.AreaKM2 > 0 && c.AreaKM2 < coopAreaThresholdKM2 {
				return c
			}
		}
	}

	best := polys[0]
	bestScore := electricScore(best, len(polys))
	for _, p := range polys[1:] {
		if s := electricScore(p, len(polys)); s > bestScore {
			best, bestScore = p, s
		}
	}
	return best
}

func electricScore(p model.TerritoryPolygon, contenders int) float64 {
	area := p.AreaKM2
	if area <= 0 {
		area = 1
	}
	ptype := strings.ToUpper(p.Type)

	var score float64
	if p.Customers == 0 {
		if area < 5000 {
			score = 10_000_000.0 / area
		} else {
			score = 100.0 / area
		}
	} else {
		score = float64(p.Customers)
	}

	// Genuine local utility: small area with real customers.
	switch {
	case area < 1000 && p.Customers > 1000:
		score *= 2.0
	case area < 5000 && p.Customers > 50000:
		score *= 1.5
	}

	// Real city utilities (Austin Energy 533K, CPS Energy 918K customers).
	if strings.Contains(ptype, "MUNICIPAL") && p.Customers > 50000 {
		score *= 1.5
	}

	if strings.Contains(ptype, "COOPERATIVE") {
		switch {
		case area < 3000:
			score *= 1.5
		case area > 10000:
			score *= 0.3
		}
	} else if strings.Contains(ptype, "NOT AVAILABLE") && area > 10000 {
		score *= 0.2
	}

	if isLargeIOU(p.Name) && contenders > 1 {
		score *= 0.5
	}

	// Federal and regional wholesale entities (WAPA spans 1.5M km²).
	switch {
	case area > 50000:
		score *= 0.1
	case area > 20000 && p.Customers < 10000:
		score *= 0.3
	}

	if strings.Contains(ptype, "POLITICAL") && p.Customers > 0 && p.Customers < 100 {
		score *= 0.1
	}
	return score
}

// arbitrateGas prefers the same-state polygon; gas utilities almost never
// serve across their listed state line. Within a state, smallest area wins.
func arbitrateGas(polys []model.TerritoryPolygon, state string) model.TerritoryPolygon {
	st := strings.ToUpper(strings.TrimSpace(state))
	if st == "" {
		return polys[0]
	}
	for _, p := range polys {
		if strings.ToUpper(p.State) == st {
			return p
		}
	}
	return polys[0]
}
