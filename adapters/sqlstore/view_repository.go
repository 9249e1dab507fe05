package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/example/cqrs-es/cqrs"
	"github.com/example/cqrs-es/persist"
)

// DefaultViewTable is used unless the repository is configured with
// UseViewTable.
const DefaultViewTable = "views"

// ViewRepository is the shared SQL implementation of
// persist.ViewRepository, storing views as JSON payloads versioned for
// optimistic locking.
type ViewRepository[V cqrs.View[E], E cqrs.DomainEvent] struct {
	db      *sql.DB
	dialect Dialect
	table   string
	newView func() V
}

// NewViewRepository creates a repository over the default "views" table.
// The newView factory must return a pointer so stored payloads can be
// unmarshaled into it.
func NewViewRepository[V cqrs.View[E], E cqrs.DomainEvent](db *sql.DB, dialect Dialect, newView func() V) *ViewRepository[V, E] {
	return UseViewTable[V, E](db, dialect, DefaultViewTable, newView)
}

// UseViewTable creates a repository with a custom view table name.
func UseViewTable[V cqrs.View[E], E cqrs.DomainEvent](db *sql.DB, dialect Dialect, table string, newView func() V) *ViewRepository[V, E] {
	return &ViewRepository[V, E]{db: db, dialect: dialect, table: table, newView: newView}
}

func (r *ViewRepository[V, E]) Load(ctx context.Context, viewID string) (V, bool, error) {
	view, _, found, err := r.LoadWithContext(ctx, viewID)
	return view, found, err
}

func (r *ViewRepository[V, E]) LoadWithContext(ctx context.Context, viewID string) (V, persist.ViewContext, bool, error) {
	query := fmt.Sprintf(`SELECT payload, version FROM %s WHERE view_id = %s`,
		r.table, r.dialect.Placeholder(1))

	var zero V
	var payload []byte
	var version int64
	err := r.db.QueryRowContext(ctx, query, viewID).Scan(&payload, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, persist.ViewContext{}, false, nil
	}
	if err != nil {
		return zero, persist.ViewContext{}, false, classify(r.dialect, err)
	}

	view := r.newView()
	if err := json.Unmarshal(payload, view); err != nil {
		return zero, persist.ViewContext{}, false, &persist.DeserializationError{Err: err}
	}
	return view, persist.NewViewContext(viewID, version), true, nil
}

// UpdateView inserts the view when the context carries version 0 and
// otherwise updates it conditioned on the loaded version. Both paths
// surface persist.ErrOptimisticLock when a concurrent writer won.
func (r *ViewRepository[V, E]) UpdateView(ctx context.Context, view V, context persist.ViewContext) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return &persist.UnknownError{Err: err}
	}

	if context.Version == 0 {
		query := fmt.Sprintf(`INSERT INTO %s (view_id, version, payload) VALUES (%s, %s, %s)`,
			r.table, r.dialect.Placeholder(1), r.dialect.Placeholder(2), r.dialect.Placeholder(3))
		if _, err := r.db.ExecContext(ctx, query, context.ViewInstanceID, context.Version+1, payload); err != nil {
			return classify(r.dialect, err)
		}
		return nil
	}

	query := fmt.Sprintf(`UPDATE %s SET version = %s, payload = %s WHERE view_id = %s AND version = %s`,
		r.table,
		r.dialect.Placeholder(1), r.dialect.Placeholder(2),
		r.dialect.Placeholder(3), r.dialect.Placeholder(4))
	result, err := r.db.ExecContext(ctx, query, context.Version+1, payload, context.ViewInstanceID, context.Version)
	if err != nil {
		return classify(r.dialect, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return classify(r.dialect, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: view %s version %d no longer current",
			persist.ErrOptimisticLock, context.ViewInstanceID, context.Version)
	}
	return nil
}
