// Package postgres resolves elements stored in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/txn2/mcp-element-config/pkg/element"
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var elementColumns = []string{"id", "name", "alias", "role", "group_name"}

// Resolver implements element.Resolver on the elements table.
type Resolver struct {
	db *sql.DB
}

// New creates a resolver.
func New(db *sql.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve looks up an element by id or name.
func (r *Resolver) Resolve(ctx context.Context, ref element.Ref) (element.Element, error) {
	qb := psq.Select(elementColumns...).From("elements")
	if ref.IsID() {
		qb = qb.Where(sq.Eq{"id": ref.ID})
	} else {
		qb = qb.Where(sq.Eq{"name": ref.Name})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return element.Element{}, fmt.Errorf("building element query: %w", err)
	}

	var e element.Element
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&e.ID, &e.Name, &e.Alias, &e.Role, &e.Group)
	if errors.Is(err, sql.ErrNoRows) {
		return element.Element{}, fmt.Errorf("%w: %s", element.ErrNotFound, ref)
	}
	if err != nil {
		return element.Element{}, fmt.Errorf("resolving element %s: %w", ref, err)
	}
	return e, nil
}

// Upsert inserts or updates an element by id.
func (r *Resolver) Upsert(ctx context.Context, e element.Element) error {
	query, args, err := psq.Insert("elements").
		Columns(elementColumns...).
		Values(e.ID, e.Name, e.Alias, e.Role, e.Group).
		Suffix("ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, alias = EXCLUDED.alias, " +
			"role = EXCLUDED.role, group_name = EXCLUDED.group_name").
		ToSql()
	if err != nil {
		return fmt.Errorf("building element upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting element %s: %w", e.Name, err)
	}
	return nil
}

// Verify interface compliance.
var _ element.Resolver = (*Resolver)(nil)
