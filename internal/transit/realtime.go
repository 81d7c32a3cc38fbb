package transit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/nycdash/nyc-dashboard/internal/models"
	"github.com/nycdash/nyc-dashboard/internal/observability"
)

// RealtimeClient fetches and decodes MTA GTFS-Realtime feeds.
type RealtimeClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	loc     *time.Location
	breaker *feedBreaker
}

// NewRealtimeClient creates a RealtimeClient. baseURL defaults to the MTA
// endpoint when empty.
func NewRealtimeClient(baseURL string, timeout time.Duration) (*RealtimeClient, error) {
	if baseURL == "" {
		baseURL = DefaultFeedBaseURL
	}
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}
	return &RealtimeClient{
		baseURL: baseURL,
		timeout: timeout,
		loc:     loc,
		client:  &http.Client{Timeout: timeout},
		breaker: newFeedBreaker(5, 2, 30*time.Second),
	}, nil
}

// FetchFeed downloads and decodes one GTFS-Realtime feed. Repeated failures
// open a per-feed breaker and subsequent calls return ErrFeedUnavailable
// until the cooldown elapses.
func (c *RealtimeClient) FetchFeed(ctx context.Context, feedID string) (*gtfsrt.FeedMessage, error) {
	if !c.breaker.allow(feedID) {
		observability.TransitFeedFetchesTotal.WithLabelValues(feedID, "skipped").Inc()
		return nil, fmt.Errorf("feed %s: %w", feedID, ErrFeedUnavailable)
	}
	feed, err := c.fetchFeed(ctx, feedID)
	c.breaker.record(feedID, err)
	return feed, err
}

func (c *RealtimeClient) fetchFeed(ctx context.Context, feedID string) (*gtfsrt.FeedMessage, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, "GET", c.baseURL+feedID, nil)
	if err != nil {
		observability.TransitFeedFetchesTotal.WithLabelValues(feedID, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.TransitFeedFetchesTotal.WithLabelValues(feedID, "error").Inc()
		return nil, fmt.Errorf("fetch feed %s: %w", feedID, err)
	}
	defer resp.Body.Close()

	observability.TransitFeedDuration.WithLabelValues(feedID).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		observability.TransitFeedFetchesTotal.WithLabelValues(feedID, "error").Inc()
		return nil, fmt.Errorf("fetch feed %s: HTTP %d", feedID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.TransitFeedFetchesTotal.WithLabelValues(feedID, "error").Inc()
		return nil, fmt.Errorf("read feed %s: %w", feedID, err)
	}

	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		observability.TransitFeedFetchesTotal.WithLabelValues(feedID, "error").Inc()
		observability.TransitFeedDecodeErrorsTotal.Inc()
		return nil, fmt.Errorf("decode feed %s: %w", feedID, err)
	}
	observability.TransitFeedFetchesTotal.WithLabelValues(feedID, "success").Inc()
	return feed, nil
}

// UpcomingTrains returns the next trains of the given line at a station
// platform, soonest first, truncated to limit. direction is "N" or "S";
// the platform stop id is stationID+direction.
func (c *RealtimeClient) UpcomingTrains(ctx context.Context, line, stationID, direction string, limit int) ([]models.Arrival, error) {
	feedID, err := FeedForLine(line)
	if err != nil {
		return nil, err
	}
	feed, err := c.FetchFeed(ctx, feedID)
	if err != nil {
		return nil, err
	}
	return extractArrivals(feed, line, stationID, direction, limit, c.loc), nil
}

// extractArrivals filters a decoded feed down to trains of one route stopping
// at one platform. The arrival time is preferred; the departure time stands in
// when the arrival is absent (first stop of a trip). Entries without either
// are skipped.
func extractArrivals(feed *gtfsrt.FeedMessage, line, stationID, direction string, limit int, loc *time.Location) []models.Arrival {
	stopID := stationID + direction

	var arrivals []models.Arrival
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil {
			continue
		}
		routeID := tu.GetTrip().GetRouteId()
		if routeID != line {
			continue
		}
		for _, stu := range tu.GetStopTimeUpdate() {
			if stu.GetStopId() != stopID {
				continue
			}
			var ts int64
			if stu.GetArrival() != nil && stu.GetArrival().GetTime() != 0 {
				ts = stu.GetArrival().GetTime()
			} else if stu.GetDeparture() != nil && stu.GetDeparture().GetTime() != 0 {
				ts = stu.GetDeparture().GetTime()
			}
			if ts == 0 {
				continue
			}
			arrivals = append(arrivals, models.Arrival{
				RouteID:     routeID,
				TripID:      tu.GetTrip().GetTripId(),
				StopID:      stopID,
				Direction:   direction,
				ArrivalTime: time.Unix(ts, 0).In(loc),
			})
		}
	}

	sort.Slice(arrivals, func(i, j int) bool {
		return arrivals[i].ArrivalTime.Before(arrivals[j].ArrivalTime)
	})
	if limit > 0 && len(arrivals) > limit {
		arrivals = arrivals[:limit]
	}
	return arrivals
}
