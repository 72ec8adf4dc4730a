// Package postgres provides a PostgreSQL-backed configuration revision store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/txn2/mcp-element-config/pkg/configstore"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// revisionColumns lists columns returned by revision SELECT queries.
var revisionColumns = []string{
	"revision_id", "element_id", "series_name", "state", "content_type",
	"content_hash", "content", "comment", "creator", "modified_at", "modified_seq",
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store implements configstore.Repository using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL revision store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Series loads the current history of key.
func (s *Store) Series(ctx context.Context, key configstore.SeriesKey) (*configstore.Series, error) {
	revs, err := s.seriesRevisions(ctx, s.db, key, false)
	if err != nil {
		return nil, err
	}
	return configstore.NewSeries(key, revs), nil
}

// UpdateSeries runs fn in a transaction holding the advisory lock of key and
// writes the changes fn made to the series.
func (s *Store) UpdateSeries(ctx context.Context, key configstore.SeriesKey, fn func(*configstore.Series) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.String()); err != nil {
		return classify("locking series "+key.String(), err)
	}

	revs, err := s.seriesRevisions(ctx, tx, key, true)
	if err != nil {
		return err
	}
	series := configstore.NewSeries(key, revs)
	if err := fn(series); err != nil {
		return err
	}

	changes := series.Changes()
	if changes.Empty() {
		return nil
	}
	if err := applyChanges(ctx, tx, changes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return classify("committing series "+key.String(), err)
	}
	return nil
}

func applyChanges(ctx context.Context, tx *sql.Tx, c configstore.Changes) error {
	if len(c.Deleted) > 0 {
		ids := make([]string, len(c.Deleted))
		for i, id := range c.Deleted {
			ids[i] = string(id)
		}
		query, args, err := psq.Delete("element_config").Where(sq.Eq{"revision_id": ids}).ToSql()
		if err != nil {
			return fmt.Errorf("building revision delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return classify("deleting revisions", err)
		}
	}

	for _, r := range c.Updated {
		query, args, err := psq.Update("element_config").
			Set("state", string(r.State)).
			Set("content_type", r.ContentType).
			Set("comment", r.Comment).
			Set("creator", r.Creator).
			Set("modified_at", r.ModifiedAt).
			Set("modified_seq", r.Sequence).
			Where(sq.Eq{"revision_id": string(r.ID)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("building revision update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return classify("updating revision "+string(r.ID), err)
		}
	}

	for _, r := range c.Inserted {
		query, args, err := psq.Insert("element_config").
			Columns(revisionColumns...).
			Values(string(r.ID), r.ElementID, string(r.Series), string(r.State), r.ContentType,
				r.ContentHash, r.Content, r.Comment, r.Creator, r.ModifiedAt, r.Sequence).
			ToSql()
		if err != nil {
			return fmt.Errorf("building revision insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return classify("inserting revision "+string(r.ID), err)
		}
	}
	return nil
}

func (*Store) seriesRevisions(ctx context.Context, q querier, key configstore.SeriesKey, lock bool) ([]configstore.Revision, error) {
	qb := psq.Select(revisionColumns...).
		From("element_config").
		Where(sq.Eq{"element_id": key.ElementID, "series_name": string(key.Name)}).
		OrderBy("modified_seq DESC")
	if lock {
		qb = qb.Suffix("FOR UPDATE")
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building series query: %w", err)
	}
	return queryRevisions(ctx, q, query, args)
}

// Revision returns a revision of the element by id.
func (s *Store) Revision(ctx context.Context, elementID uuid.UUID, id configstore.RevisionID) (configstore.Revision, error) {
	if _, err := uuid.Parse(string(id)); err != nil {
		return configstore.Revision{}, fmt.Errorf("%w: revision %s", configstore.ErrNotFound, id)
	}
	query, args, err := psq.Select(revisionColumns...).
		From("element_config").
		Where(sq.Eq{"revision_id": string(id), "element_id": elementID}).
		ToSql()
	if err != nil {
		return configstore.Revision{}, fmt.Errorf("building revision query: %w", err)
	}
	revs, err := queryRevisions(ctx, s.db, query, args)
	if err != nil {
		return configstore.Revision{}, err
	}
	if len(revs) == 0 {
		return configstore.Revision{}, fmt.Errorf("%w: revision %s", configstore.ErrNotFound, id)
	}
	return revs[0], nil
}

// LatestRevisions returns the most recent revision of every series of the element.
func (s *Store) LatestRevisions(ctx context.Context, elementID uuid.UUID) ([]configstore.Revision, error) {
	query, args, err := psq.Select(revisionColumns...).
		Options("DISTINCT ON (series_name)").
		From("element_config").
		Where(sq.Eq{"element_id": elementID}).
		OrderBy("series_name", "modified_seq DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building latest revisions query: %w", err)
	}
	return queryRevisions(ctx, s.db, query, args)
}

// SeriesNames lists the series of the element in name order.
func (s *Store) SeriesNames(ctx context.Context, elementID uuid.UUID) ([]configstore.SeriesName, error) {
	query, args, err := psq.Select("DISTINCT series_name").
		From("element_config").
		Where(sq.Eq{"element_id": elementID}).
		OrderBy("series_name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building series names query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying series names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []configstore.SeriesName
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning series name: %w", err)
		}
		names = append(names, configstore.SeriesName(name))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating series names: %w", err)
	}
	return names, nil
}

func queryRevisions(ctx context.Context, q querier, query string, args []any) ([]configstore.Revision, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("querying revisions", err)
	}
	defer func() { _ = rows.Close() }()

	var revs []configstore.Revision
	for rows.Next() {
		r, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revs = append(revs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating revisions: %w", err)
	}
	return revs, nil
}

func scanRevision(rows *sql.Rows) (configstore.Revision, error) {
	var (
		r                 configstore.Revision
		id, series, state string
		comment, creator  sql.NullString
	)
	err := rows.Scan(
		&id,
		&r.ElementID,
		&series,
		&state,
		&r.ContentType,
		&r.ContentHash,
		&r.Content,
		&comment,
		&creator,
		&r.ModifiedAt,
		&r.Sequence,
	)
	if err != nil {
		return r, fmt.Errorf("scanning revision row: %w", err)
	}
	r.ID = configstore.RevisionID(id)
	r.Series = configstore.SeriesName(series)
	r.State = configstore.State(state)
	r.Comment = comment.String
	r.Creator = creator.String
	return r, nil
}

// classify maps lost races reported by PostgreSQL to ErrConcurrentModification.
func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, configstore.ErrConcurrentModification, pqErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Verify interface compliance.
var _ configstore.Repository = (*Store)(nil)
