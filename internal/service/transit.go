package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/nycdash/nyc-dashboard/internal/cache"
	"github.com/nycdash/nyc-dashboard/internal/health"
	"github.com/nycdash/nyc-dashboard/internal/models"
	"github.com/nycdash/nyc-dashboard/internal/observability"
)

// TrainFetcher fetches the upcoming trains of one line at one platform.
type TrainFetcher interface {
	UpcomingTrains(ctx context.Context, line, stationID, direction string, limit int) ([]models.Arrival, error)
}

// TransitService produces the arrivals board for a pinned station. Each of
// the station's lines is fetched from its realtime feed; the results are
// merged per direction, soonest first. A line whose feed fails is reported in
// FailedLines while the remaining lines still render.
type TransitService struct {
	trains   TrainFetcher
	cache    cache.Cache[models.StationArrivals]
	ttl      time.Duration
	staleMax time.Duration
	limit    int
	logger   *zap.Logger
	now      func() time.Time

	coalesce *coalescer[models.StationArrivals]
}

// NewTransitService creates a TransitService. limit caps the arrivals kept
// per direction; ttl and staleMax work as in WeatherService.
func NewTransitService(trains TrainFetcher, c cache.Cache[models.StationArrivals], ttl, staleMax time.Duration, limit int, logger *zap.Logger) *TransitService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = 5
	}
	return &TransitService{
		trains:   trains,
		cache:    c,
		ttl:      ttl,
		staleMax: staleMax,
		limit:    limit,
		logger:   logger,
		now:      time.Now,
		coalesce: newCoalescer[models.StationArrivals](10 * time.Second),
	}
}

// Arrivals returns the merged board for one station. Minutes-away values are
// recomputed against the clock on every call, so a cached board stays
// accurate as it ages; trains already departed are dropped.
func (s *TransitService) Arrivals(ctx context.Context, station models.StationConfig) (models.StationArrivals, error) {
	key := "arrivals:" + station.ID

	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		observability.CacheHitsTotal.WithLabelValues("transit").Inc()
		return s.reclock(cached), nil
	}

	board, err := s.coalesce.Do(ctx, key, func() (models.StationArrivals, error) {
		return s.fetchBoard(ctx, station)
	})
	if err != nil {
		if s.staleMax > 0 {
			if stale, ok, staleErr := s.cache.GetStale(ctx, key, s.staleMax); staleErr == nil && ok {
				observability.StaleServesTotal.WithLabelValues("transit").Inc()
				stale.Stale = true
				s.logger.Warn("arrivals fetch failed, serving stale board",
					zap.String("station", station.ID), zap.Error(err))
				return s.reclock(stale), nil
			}
		}
		return models.StationArrivals{}, err
	}

	if setErr := s.cache.Set(ctx, key, board, s.ttl); setErr != nil {
		s.logger.Warn("arrivals cache write failed", zap.String("station", station.ID), zap.Error(setErr))
	}
	return s.reclock(board), nil
}

// Board returns arrivals for every pinned station in order. Per-station
// failures produce an empty board with all lines failed rather than aborting
// the whole response.
func (s *TransitService) Board(ctx context.Context, stations []models.StationConfig) []models.StationArrivals {
	boards := make([]models.StationArrivals, 0, len(stations))
	for _, st := range stations {
		board, err := s.Arrivals(ctx, st)
		if err != nil {
			s.logger.Warn("station board unavailable", zap.String("station", st.ID), zap.Error(err))
			board = models.StationArrivals{Station: st, FailedLines: st.Lines}
		}
		boards = append(boards, board)
	}
	return boards
}

// fetchBoard queries every line of the station in both directions. It fails
// only when no line yields data.
func (s *TransitService) fetchBoard(ctx context.Context, station models.StationConfig) (models.StationArrivals, error) {
	board := models.StationArrivals{Station: station}
	succeeded := 0

	for _, line := range station.Lines {
		// Over-fetch per line so the merged board still fills after sorting.
		north, errN := s.trains.UpcomingTrains(ctx, line, station.ID, "N", s.limit*2)
		south, errS := s.trains.UpcomingTrains(ctx, line, station.ID, "S", s.limit*2)
		if errN != nil || errS != nil {
			health.RecordError(health.SourceTransit)
			board.FailedLines = append(board.FailedLines, line)
			s.logger.Warn("line fetch failed",
				zap.String("station", station.ID), zap.String("line", line),
				zap.NamedError("north", errN), zap.NamedError("south", errS))
			continue
		}
		health.RecordSuccess(health.SourceTransit)
		succeeded++
		board.Northbound = append(board.Northbound, north...)
		board.Southbound = append(board.Southbound, south...)
	}

	if succeeded == 0 {
		return models.StationArrivals{}, fmt.Errorf("fetch arrivals for %s: all lines failed", station.ID)
	}

	sortArrivals(board.Northbound)
	sortArrivals(board.Southbound)
	return board, nil
}

// reclock recomputes minutes-away against the current clock and drops trains
// that have already arrived, then applies the per-direction limit.
func (s *TransitService) reclock(board models.StationArrivals) models.StationArrivals {
	now := s.now()
	board.Northbound = s.upcoming(board.Northbound, now, board.Stale)
	board.Southbound = s.upcoming(board.Southbound, now, board.Stale)
	return board
}

func (s *TransitService) upcoming(arrivals []models.Arrival, now time.Time, stale bool) []models.Arrival {
	out := make([]models.Arrival, 0, len(arrivals))
	for _, a := range arrivals {
		if a.ArrivalTime.Before(now) {
			continue
		}
		a.MinutesAway = int(a.ArrivalTime.Sub(now) / time.Minute)
		a.Stale = stale
		out = append(out, a)
		if len(out) == s.limit {
			break
		}
	}
	return out
}

func sortArrivals(arrivals []models.Arrival) {
	sort.Slice(arrivals, func(i, j int) bool {
		return arrivals[i].ArrivalTime.Before(arrivals[j].ArrivalTime)
	})
}
