package services

import (
	"sort"
	"strconv"
	"time"

	"rental-insights/models"
)

// Chart names; artifact keys are "<chart>_<scope>"
const (
	ChartRoomTypes      = "room_types"
	ChartNeighborhoods  = "neighborhood_listings"
	ChartAgeProfile     = "active_listings_hosts_age"
	ChartListingsGained = "listings_gained_per_quarter"
)

// BuildCharts derives the chart series for "All Cities" and each city.
// Room type, neighborhood and age charts cover the current quarter's active listings.
func BuildCharts(facts []models.ListingFact, cities []string, window models.CohortWindow) models.ChartArtifact {
	out := make(models.ChartArtifact)
	for _, scope := range append([]string{models.AllCities}, cities...) {
		var inScope []*models.ListingFact
		for i := range facts {
			if scope == models.AllCities || facts[i].City == scope {
				inScope = append(inScope, &facts[i])
			}
		}
		var active []*models.ListingFact
		for _, f := range inScope {
			if !window.Current.IsZero() && window.Current.Contains(f.LastReview) {
				active = append(active, f)
			}
		}

		out[ChartRoomTypes+"_"+scope] = countBy(active, func(f *models.ListingFact) (string, bool) {
			if f.RoomType == nil {
				return "", false
			}
			return *f.RoomType, true
		})
		out[ChartNeighborhoods+"_"+scope] = countBy(active, func(f *models.ListingFact) (string, bool) {
			if f.Neighborhood == nil {
				return "", false
			}
			return *f.Neighborhood, true
		})
		out[ChartAgeProfile+"_"+scope] = ageProfile(active, window)
		out[ChartListingsGained+"_"+scope] = gainedPerQuarter(inScope)
	}
	return out
}

// countBy counts facts per label, largest first then alphabetical
func countBy(facts []*models.ListingFact, label func(*models.ListingFact) (string, bool)) []models.ChartPoint {
	counts := make(map[string]int)
	for _, f := range facts {
		if l, ok := label(f); ok {
			counts[l]++
		}
	}
	points := make([]models.ChartPoint, 0, len(counts))
	for l, n := range counts {
		points = append(points, models.ChartPoint{Label: l, Count: n})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Count != points[j].Count {
			return points[i].Count > points[j].Count
		}
		return points[i].Label < points[j].Label
	})
	return points
}

// ageProfile buckets listing age (since first review) and host age (since
// host_since) in whole years at the end of the current quarter
func ageProfile(active []*models.ListingFact, window models.CohortWindow) []models.ChartPoint {
	if window.Current.IsZero() {
		return []models.ChartPoint{}
	}
	ref := window.Current.End()
	years := func(from time.Time) int {
		y := ref.Year() - from.Year()
		if ref.Month() < from.Month() || (ref.Month() == from.Month() && ref.Day() < from.Day()) {
			y--
		}
		return max(y, 0)
	}

	type key struct {
		group string
		years int
	}
	counts := make(map[key]int)
	seenHosts := make(map[int64]bool)
	for _, f := range active {
		if f.FirstReview != nil {
			counts[key{"listings", years(*f.FirstReview)}]++
		}
		if f.HostID != nil && f.HostSince != nil && !seenHosts[*f.HostID] {
			seenHosts[*f.HostID] = true
			counts[key{"hosts", years(*f.HostSince)}]++
		}
	}

	points := make([]models.ChartPoint, 0, len(counts))
	for k, n := range counts {
		points = append(points, models.ChartPoint{Label: strconv.Itoa(k.years), Group: k.group, Count: n})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Group != points[j].Group {
			return points[i].Group < points[j].Group
		}
		a, _ := strconv.Atoi(points[i].Label)
		b, _ := strconv.Atoi(points[j].Label)
		return a < b
	})
	return points
}

// gainedPerQuarter counts first reviews per calendar quarter, oldest first
func gainedPerQuarter(facts []*models.ListingFact) []models.ChartPoint {
	counts := make(map[models.Quarter]int)
	for _, f := range facts {
		if f.FirstReview != nil {
			counts[models.QuarterOf(*f.FirstReview)]++
		}
	}
	quarters := make([]models.Quarter, 0, len(counts))
	for q := range counts {
		quarters = append(quarters, q)
	}
	sort.Slice(quarters, func(i, j int) bool { return quarters[i].Before(quarters[j]) })

	points := make([]models.ChartPoint, 0, len(quarters))
	for _, q := range quarters {
		points = append(points, models.ChartPoint{Label: q.String(), Count: counts[q]})
	}
	return points
}
