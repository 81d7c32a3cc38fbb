package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nycdash/nyc-dashboard/internal/cache"
	"github.com/nycdash/nyc-dashboard/internal/config"
	"github.com/nycdash/nyc-dashboard/internal/transit"
	"github.com/nycdash/nyc-dashboard/internal/validation"
)

func newStationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stations <query>",
		Short: "Look up subway stations by name or stop id",
		Long: "Searches the static GTFS station list. The list is served from the " +
			"local cache when fresh, so lookups work offline after the first download.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStations(cmd, strings.Join(args, " "))
		},
	}
}

func runStations(cmd *cobra.Command, rawQuery string) error {
	query, err := validation.StationQuery(rawQuery)
	if err != nil {
		return err
	}

	// Station lookup never calls the weather API, so a missing key is fine.
	cfg, err := config.Load(".")
	if err != nil && !errors.Is(err, config.ErrMissingAPIKey) {
		return err
	}

	staticCache, err := cache.NewFileCache[transit.StaticBundle](filepath.Join(cfg.CacheDir, "gtfs"))
	if err != nil {
		return err
	}
	index := transit.NewStationIndex(cfg.StaticGTFSURL, cfg.TransitTimeout, staticCache, cfg.StaticGTFSMaxAge, zap.NewNop())

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	stations, err := index.SearchByName(ctx, query)
	if err != nil {
		return err
	}
	if len(stations) == 0 && len(query) <= 4 {
		stations, err = index.SearchByID(ctx, query)
		if err != nil {
			return err
		}
	}
	if len(stations) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no stations match %q\n", query)
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-8s %-8s %-12s %s\n", "STOP", "CORE", "DIRECTION", "NAME")
	for _, s := range stations {
		fmt.Fprintf(w, "%-8s %-8s %-12s %s\n", s.StopID, s.CoreID, s.Direction, s.CleanName)
	}
	return nil
}
