// Package transit talks to the MTA: GTFS-Realtime trip updates for arrival
// countdowns, and the static GTFS bundle for station and route lookup.
package transit

import (
	"fmt"
	"strings"
)

// DefaultFeedBaseURL is the MTA GTFS-Realtime endpoint prefix. The feed id
// from feedIDs is appended to form the full URL.
const DefaultFeedBaseURL = "https://api-endpoint.mta.info/Dataservice/mtagtfsfeeds/nyct%2F"

// DefaultStaticGTFSURL is the MTA static GTFS bundle (stops, routes, schedules).
const DefaultStaticGTFSURL = "http://web.mta.info/developers/data/nyct/subway/google_transit.zip"

// feedIDs maps groups of lines to the GTFS-Realtime feed that carries them.
var feedIDs = map[string]string{
	"123456": "gtfs",
	"7":      "gtfs-7",
	"ACE":    "gtfs-ace",
	"BDFM":   "gtfs-bdfm",
	"G":      "gtfs-g",
	"JZ":     "gtfs-jz",
	"NQRW":   "gtfs-nqrw",
	"L":      "gtfs-l",
	"SI":     "gtfs-si",
}

// FeedForLine returns the feed id carrying the given subway line. Express
// variants (6X, 7X) resolve through their base line.
func FeedForLine(line string) (string, error) {
	line = strings.ToUpper(strings.TrimSpace(line))
	base := strings.TrimSuffix(line, "X")
	if base == "" {
		return "", fmt.Errorf("no feed found for line %q", line)
	}
	for lines, feedID := range feedIDs {
		if strings.Contains(lines, base) {
			return feedID, nil
		}
	}
	return "", fmt.Errorf("no feed found for line %q", line)
}

// FeedIDs returns every known feed id. Order is not specified.
func FeedIDs() []string {
	out := make([]string, 0, len(feedIDs))
	for _, id := range feedIDs {
		out = append(out, id)
	}
	return out
}
