// Package postgres provides PostgreSQL storage for configuration events.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/mcp-element-config/pkg/audit"
)

const (
	defaultRetentionDays = 90
	defaultQueryCapacity = 100
	maxQueryCapacity     = 10000
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// eventColumns lists columns returned by event SELECT queries.
var eventColumns = []string{
	"id", "timestamp", "event_type", "element_id", "element_name",
	"series_name", "revision_id", "state", "content_type", "creator",
	"created", "count",
}

// Store implements audit.Logger using PostgreSQL.
type Store struct {
	db            *sql.DB
	retentionDays int
	cancel        context.CancelFunc
	done          chan struct{}
}

// Config configures the PostgreSQL audit store.
type Config struct {
	RetentionDays int
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB, cfg Config) *Store {
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = defaultRetentionDays
	}
	return &Store{
		db:            db,
		retentionDays: cfg.RetentionDays,
	}
}

// Log records a configuration event.
func (s *Store) Log(ctx context.Context, event audit.Event) error {
	query := `
		INSERT INTO config_events
		(id, timestamp, event_type, element_id, element_name, series_name, revision_id, state, content_type, creator, created, count, created_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		string(event.Type),
		event.ElementID,
		event.ElementName,
		event.Series,
		event.RevisionID,
		event.State,
		event.ContentType,
		event.Creator,
		event.Created,
		event.Count,
		event.Timestamp.Format("2006-01-02"),
	)
	if err != nil {
		return fmt.Errorf("inserting config event: %w", err)
	}

	return nil
}

// applyEventFilter adds filter conditions to a SELECT builder.
func applyEventFilter(qb sq.SelectBuilder, filter audit.QueryFilter) sq.SelectBuilder {
	if filter.StartTime != nil {
		qb = qb.Where(sq.GtOrEq{"timestamp": *filter.StartTime})
	}
	if filter.EndTime != nil {
		qb = qb.Where(sq.LtOrEq{"timestamp": *filter.EndTime})
	}
	if filter.ElementID != "" {
		qb = qb.Where(sq.Eq{"element_id": filter.ElementID})
	}
	if filter.Series != "" {
		qb = qb.Where(sq.Eq{"series_name": filter.Series})
	}
	if filter.Type != "" {
		qb = qb.Where(sq.Eq{"event_type": string(filter.Type)})
	}
	return qb
}

// Query retrieves configuration events matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	qb := applyEventFilter(psq.Select(eventColumns...).From("config_events"), filter)
	qb = qb.OrderBy("timestamp DESC")
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		qb = qb.Offset(uint64(filter.Offset))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building event query: %w", err)
	}

	return s.executeQuery(ctx, query, args, filter.Limit)
}

// Count returns the number of events matching the filter.
func (s *Store) Count(ctx context.Context, filter audit.QueryFilter) (int, error) {
	qb := applyEventFilter(psq.Select("COUNT(*)").From("config_events"), filter)

	query, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting config events: %w", err)
	}
	return count, nil
}

func (s *Store) executeQuery(ctx context.Context, query string, args []any, limit int) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying config events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	allocCap := defaultQueryCapacity
	if limit > 0 && limit <= maxQueryCapacity {
		allocCap = limit
	}
	events := make([]audit.Event, 0, allocCap)

	for rows.Next() {
		var event audit.Event
		var eventType string
		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&eventType,
			&event.ElementID,
			&event.ElementName,
			&event.Series,
			&event.RevisionID,
			&event.State,
			&event.ContentType,
			&event.Creator,
			&event.Created,
			&event.Count,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning config event row: %w", err)
		}
		event.Type = audit.EventType(eventType)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating config event rows: %w", err)
	}

	return events, nil
}

// Close cancels the cleanup goroutine and waits for it to exit.
// It is safe to call Close even if StartCleanupRoutine was never called.
func (s *Store) Close() error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	return nil
}

// Cleanup removes events older than the retention period.
func (s *Store) Cleanup(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	query := `DELETE FROM config_events WHERE timestamp < $1`
	_, err := s.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return fmt.Errorf("cleaning up config events: %w", err)
	}
	return nil
}

// StartCleanupRoutine starts a background goroutine that periodically deletes
// old events. The goroutine is stopped when Close is called.
func (s *Store) StartCleanupRoutine(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Cleanup(ctx)
			}
		}
	}()
}

// Verify interface compliance.
var _ audit.Logger = (*Store)(nil)
