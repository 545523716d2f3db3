package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/riverwatch/hydro-data-service/internal/adapter/chmi"
	"github.com/riverwatch/hydro-data-service/internal/domain"
)

// DiscoverResult summarizes a discovery + metadata refresh run.
type DiscoverResult struct {
	Skipped            bool `json:"skipped"`
	DiscoveredStations int  `json:"discovered_stations"`
	TotalInIndex       int  `json:"total_in_index"`
	StationsUpserted   int  `json:"stations_upserted"`
	RiversUpserted     int  `json:"rivers_upserted"`
}

// RunDiscoverIfNeeded runs station discovery and metadata refresh when due:
// on first run (no stations yet) or when the newest successful discover run
// is older than the freshness window. Otherwise it reports Skipped without
// touching the upstream index.
func (s *Service) RunDiscoverIfNeeded(ctx context.Context) (DiscoverResult, error) {
	due, err := s.shouldDiscover(ctx)
	if err != nil {
		return DiscoverResult{}, err
	}
	if !due {
		return DiscoverResult{Skipped: true}, nil
	}

	runID, err := s.store.StartRun(ctx, domain.RunDiscover)
	if err != nil {
		return DiscoverResult{}, err
	}
	started := domain.Clock().Now()

	result, err := s.discoverAndRefresh(ctx)
	s.finishRun(ctx, runID, domain.RunDiscover, started, result, err)
	if err != nil {
		return DiscoverResult{}, err
	}
	return result, nil
}

func (s *Service) shouldDiscover(ctx context.Context) (bool, error) {
	count, err := s.store.CountStations(ctx)
	if err != nil {
		return false, err
	}
	if count == 0 {
		return true, nil
	}

	last, err := s.store.LastSuccessfulRunStart(ctx, domain.RunDiscover)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return domain.Clock().Since(*last) > s.cfg.DiscoveryMaxAge, nil
}

func (s *Service) discoverAndRefresh(ctx context.Context) (DiscoverResult, error) {
	discovered, total, err := s.discoverStations(ctx)
	if err != nil {
		return DiscoverResult{}, err
	}

	stations, rivers, err := s.refreshMetadata(ctx)
	if err != nil {
		return DiscoverResult{}, err
	}

	result := DiscoverResult{
		DiscoveredStations: discovered,
		TotalInIndex:       total,
		StationsUpserted:   stations,
		RiversUpserted:     rivers,
	}
	s.logger.Info("discovery done",
		"discovered", discovered,
		"total_in_index", total,
		"stations_upserted", stations,
		"rivers_upserted", rivers,
	)
	return result, nil
}

// discoverStations lists the now-data index and inserts unknown external ids
// as placeholder stations. Known stations are never modified here.
func (s *Service) discoverStations(ctx context.Context) (discovered, total int, err error) {
	files, err := s.fetcher.FetchIndex(ctx, s.cfg.NowIndexURL)
	if err != nil {
		return 0, 0, fmt.Errorf("now index: %w", err)
	}

	ids := chmi.ExternalIDsFromIndex(files)
	if len(ids) == 0 {
		return 0, 0, nil
	}

	if s.cfg.DryRun {
		s.logger.Info("dry-run: skipping placeholder insert", "candidates", len(ids))
		return 0, len(ids), nil
	}

	inserted, err := s.store.InsertPlaceholderStations(ctx, ids)
	if err != nil {
		return 0, 0, err
	}
	s.metrics.StationsDiscovered.Add(float64(inserted))
	return inserted, len(ids), nil
}

// refreshMetadata fetches the metadata table and upserts rivers and stations
// for every valid row, optionally restricted by the allow-list.
func (s *Service) refreshMetadata(ctx context.Context) (stationsUpserted, riversUpserted int, err error) {
	rows, err := s.fetcher.FetchMetadata(ctx, s.cfg.MetadataURL)
	if err != nil {
		return 0, 0, fmt.Errorf("metadata table: %w", err)
	}

	only := s.cfg.OnlyStationsSet()

	for _, row := range rows {
		meta := domain.ExtractStationMeta(row)
		if meta == nil {
			continue
		}
		if only != nil {
			if _, ok := only[meta.ExternalID]; !ok {
				continue
			}
		}
		if s.cfg.DryRun {
			stationsUpserted++
			continue
		}

		var riverID *int64
		if meta.RiverName != nil {
			id, err := s.store.UpsertRiver(ctx, strings.TrimSpace(*meta.RiverName))
			if err != nil {
				return stationsUpserted, riversUpserted, err
			}
			riverID = &id
			riversUpserted++
		}

		if err := s.store.UpsertStation(ctx, *meta, riverID); err != nil {
			return stationsUpserted, riversUpserted, err
		}
		stationsUpserted++
	}

	s.metrics.StationsRefreshed.Add(float64(stationsUpserted))
	return stationsUpserted, riversUpserted, nil
}
