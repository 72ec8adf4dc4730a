package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/mcp-element-config/pkg/audit"
)

// defaultMetricsWindow is the default lookback when no time range is specified.
const defaultMetricsWindow = 24 * time.Hour

// defaultBreakdownLimit is the default number of breakdown entries returned.
const defaultBreakdownLimit = 10

// maxBreakdownLimit caps the number of breakdown entries.
const maxBreakdownLimit = 100

// clampBreakdownLimit applies default and max bounds to a breakdown limit.
func clampBreakdownLimit(limit int) int {
	if limit <= 0 {
		return defaultBreakdownLimit
	}
	if limit > maxBreakdownLimit {
		return maxBreakdownLimit
	}
	return limit
}

// Breakdown returns event counts grouped by a dimension.
func (s *Store) Breakdown(ctx context.Context, filter audit.BreakdownFilter) ([]audit.BreakdownEntry, error) {
	if !audit.ValidBreakdownDimensions[filter.GroupBy] {
		return nil, fmt.Errorf("invalid breakdown dimension: %q", filter.GroupBy)
	}

	start, end := defaultTimeRange(filter.StartTime, filter.EndTime)
	limit := clampBreakdownLimit(filter.Limit)

	// GroupBy is validated against ValidBreakdownDimensions.
	dimensionExpr := fmt.Sprintf("COALESCE(%s, '') AS dimension", string(filter.GroupBy))

	qb := psq.Select(
		dimensionExpr,
		"COUNT(*) AS count",
	).From("config_events").
		Where(sq.GtOrEq{"timestamp": start}).
		Where(sq.LtOrEq{"timestamp": end}).
		GroupBy("dimension").
		OrderBy("count DESC", "dimension").
		Limit(uint64(limit)) // #nosec G115 -- limit is clamped to [1, 100] by clampBreakdownLimit

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building breakdown query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying breakdown: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []audit.BreakdownEntry
	for rows.Next() {
		var entry audit.BreakdownEntry
		if err := rows.Scan(&entry.Dimension, &entry.Count); err != nil {
			return nil, fmt.Errorf("scanning breakdown row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating breakdown rows: %w", err)
	}

	if entries == nil {
		entries = []audit.BreakdownEntry{}
	}
	return entries, nil
}

// defaultTimeRange fills missing bounds with the default metrics window ending now.
func defaultTimeRange(start, end *time.Time) (startTime, endTime time.Time) {
	now := time.Now()
	startTime = now.Add(-defaultMetricsWindow)
	endTime = now
	if start != nil {
		startTime = *start
	}
	if end != nil {
		endTime = *end
	}
	return startTime, endTime
}
