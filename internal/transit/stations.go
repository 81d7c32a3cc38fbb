package transit

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/nycdash/nyc-dashboard/internal/models"
)

var (
	lineIndicatorRe = regexp.MustCompile(`\([1-7ACBDEFGJLMNQRWZ]+\)`)
	boundRe         = regexp.MustCompile(`(Bound|bound|Uptown|Downtown|Express)`)
	multiSpaceRe    = regexp.MustCompile(`\s+`)
)

// CleanStationName strips line indicators and direction qualifiers from a
// GTFS stop name for display (e.g. "Uptown 51 St (6)" -> "51 St").
func CleanStationName(name string) string {
	name = lineIndicatorRe.ReplaceAllString(name, "")
	name = boundRe.ReplaceAllString(name, "")
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(name, " "))
}

// CoreStationID strips the N/S platform suffix from a stop id
// ("635N" -> "635", "F12S" -> "F12").
func CoreStationID(stopID string) string {
	if len(stopID) > 1 {
		switch stopID[len(stopID)-1] {
		case 'N', 'S':
			return stopID[:len(stopID)-1]
		}
	}
	return stopID
}

// DirectionFromStopID maps the N/S platform suffix to a display direction.
func DirectionFromStopID(stopID string) string {
	switch {
	case strings.HasSuffix(stopID, "N"):
		return "Northbound"
	case strings.HasSuffix(stopID, "S"):
		return "Southbound"
	default:
		return "Unknown"
	}
}

// timesSquareAlternates are fallback queries for the most-searched station,
// whose GTFS names rarely match what riders type.
var timesSquareAlternates = []string{"42 St-Times", "Times Sq", "42 St", "Port Authority"}

// SearchByName finds stations whose name contains the query,
// case-insensitively. When the query looks like Times Square and nothing
// matches, the well-known alternates are tried before giving up. Results are
// ordered by core id then direction.
func (i *StationIndex) SearchByName(ctx context.Context, query string) ([]models.Station, error) {
	bundle, err := i.Load(ctx)
	if err != nil {
		return nil, err
	}

	matches := matchByName(bundle.Stations, query)
	if len(matches) == 0 && looksLikeTimesSquare(query) {
		for _, alt := range timesSquareAlternates {
			if matches = matchByName(bundle.Stations, alt); len(matches) > 0 {
				break
			}
		}
	}
	sortStations(matches)
	return matches, nil
}

// SearchByID finds stations whose stop id contains the given fragment.
func (i *StationIndex) SearchByID(ctx context.Context, idFragment string) ([]models.Station, error) {
	bundle, err := i.Load(ctx)
	if err != nil {
		return nil, err
	}
	var matches []models.Station
	for _, s := range bundle.Stations {
		if strings.Contains(s.StopID, idFragment) {
			matches = append(matches, s)
		}
	}
	sortStations(matches)
	return matches, nil
}

// Routes returns every subway route in the static bundle.
func (i *StationIndex) Routes(ctx context.Context) ([]models.Route, error) {
	bundle, err := i.Load(ctx)
	if err != nil {
		return nil, err
	}
	return bundle.Routes, nil
}

func matchByName(stations []models.Station, query string) []models.Station {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	var matches []models.Station
	for _, s := range stations {
		if strings.Contains(strings.ToLower(s.Name), q) {
			matches = append(matches, s)
		}
	}
	return matches
}

func looksLikeTimesSquare(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(q, "times square") || strings.Contains(q, "times sq")
}

func sortStations(stations []models.Station) {
	sort.Slice(stations, func(i, j int) bool {
		if stations[i].CoreID != stations[j].CoreID {
			return stations[i].CoreID < stations[j].CoreID
		}
		return stations[i].Direction < stations[j].Direction
	})
}
