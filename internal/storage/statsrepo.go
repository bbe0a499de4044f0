package storage

import (
	"context"
	"database/sql"

	"github.com/kg6wxc/aredn-meshpoller/internal/meshnode"
)

// StatsRepo persists the single per-cycle aggregate row, overwritten
// wholesale under meshnode.StatsRowID each cycle.
type StatsRepo struct{ db *sql.DB }

func NewStatsRepo(db *sql.DB) *StatsRepo { return &StatsRepo{db: db} }

// Save upserts the fixed-key stats row.
func (r *StatsRepo) Save(ctx context.Context, stats meshnode.CycleStats) error {
	stats.ID = meshnode.StatsRowID
	_, err := r.db.ExecContext(ctx, `INSERT INTO cycle_stats (
		id, configured_concurrency, candidate_count, count_failed,
		max_hops_observed, count_polled, count_no_location, mappable_nodes,
		mappable_links, cycle_duration_seconds, babel_count, olsr_count,
		combo_count, min_response_time_ms, max_response_time_ms, updated_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
		configured_concurrency=excluded.configured_concurrency,
		candidate_count=excluded.candidate_count,
		count_failed=excluded.count_failed,
		max_hops_observed=excluded.max_hops_observed,
		count_polled=excluded.count_polled,
		count_no_location=excluded.count_no_location,
		mappable_nodes=excluded.mappable_nodes,
		mappable_links=excluded.mappable_links,
		cycle_duration_seconds=excluded.cycle_duration_seconds,
		babel_count=excluded.babel_count,
		olsr_count=excluded.olsr_count,
		combo_count=excluded.combo_count,
		min_response_time_ms=excluded.min_response_time_ms,
		max_response_time_ms=excluded.max_response_time_ms,
		updated_at=CURRENT_TIMESTAMP`,
		stats.ID, stats.ConfiguredConcurrency, stats.CandidateCount, stats.CountFailed,
		stats.MaxHopsObserved, stats.CountPolled, stats.CountNoLocation, stats.MappableNodes,
		stats.MappableLinks, stats.CycleDurationSeconds, stats.BabelCount, stats.OLSRCount,
		stats.ComboCount, stats.MinResponseTimeMS, stats.MaxResponseTimeMS)
	return err
}

// Get reads back the fixed-key stats row, returning (zero value, false)
// before the first cycle has ever completed.
func (r *StatsRepo) Get(ctx context.Context) (meshnode.CycleStats, bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT
		id, configured_concurrency, candidate_count, count_failed,
		max_hops_observed, count_polled, count_no_location, mappable_nodes,
		mappable_links, cycle_duration_seconds, babel_count, olsr_count,
		combo_count, min_response_time_ms, max_response_time_ms
		FROM cycle_stats WHERE id = ?`, meshnode.StatsRowID)

	var s meshnode.CycleStats
	err := row.Scan(&s.ID, &s.ConfiguredConcurrency, &s.CandidateCount, &s.CountFailed,
		&s.MaxHopsObserved, &s.CountPolled, &s.CountNoLocation, &s.MappableNodes,
		&s.MappableLinks, &s.CycleDurationSeconds, &s.BabelCount, &s.OLSRCount,
		&s.ComboCount, &s.MinResponseTimeMS, &s.MaxResponseTimeMS)
	if err == sql.ErrNoRows {
		return meshnode.CycleStats{}, false, nil
	}
	if err != nil {
		return meshnode.CycleStats{}, false, err
	}
	return s, true, nil
}
