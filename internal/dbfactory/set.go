package dbfactory

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Set is the entity set of one table inside a Context. T is the row struct;
// columns are mapped with `db` tags. The key is the column tagged `db:",key"`
// or else the column named id.
type Set[T any] struct {
	ctx  *Context
	meta *entityMeta
	err  error
}

// NewSet binds T to table within c. Mapping errors are reported by the first
// operation on the set.
func NewSet[T any](c *Context, table string) *Set[T] {
	meta, err := metaFor(reflect.TypeFor[T](), table)
	return &Set[T]{ctx: c, meta: meta, err: err}
}

// Table returns the table the set reads and writes.
func (s *Set[T]) Table() string {
	if s.meta == nil {
		return ""
	}
	return s.meta.table
}

func (s *Set[T]) check() error {
	if s.err != nil {
		return s.err
	}
	return s.ctx.usable()
}

// Add stages entity for insertion on the next SaveChanges.
func (s *Set[T]) Add(entity *T) error {
	if err := s.check(); err != nil {
		return err
	}
	if entity == nil {
		return errorf(ErrArgument, "entity must not be nil")
	}
	ptr := reflect.ValueOf(entity)
	if e := s.ctx.tracker.lookup(ptr); e != nil {
		if e.state == Deleted {
			e.state = Unchanged
		}
		return nil
	}
	s.ctx.tracker.attach(s.meta, ptr, Added)
	return nil
}

// Update marks entity as modified, attaching it when it is not tracked yet.
func (s *Set[T]) Update(entity *T) error {
	if err := s.check(); err != nil {
		return err
	}
	if entity == nil {
		return errorf(ErrArgument, "entity must not be nil")
	}
	if s.meta.key == nil {
		return errorf(ErrInvalidOperation, "table %s has no key column", s.meta.table)
	}
	ptr := reflect.ValueOf(entity)
	if e := s.ctx.tracker.lookup(ptr); e != nil {
		if e.state == Unchanged {
			e.state = Modified
		}
		return nil
	}
	s.ctx.tracker.attach(s.meta, ptr, Modified)
	return nil
}

// Remove marks entity for deletion. An entity that was only added is detached.
func (s *Set[T]) Remove(entity *T) error {
	if err := s.check(); err != nil {
		return err
	}
	if entity == nil {
		return errorf(ErrArgument, "entity must not be nil")
	}
	if s.meta.key == nil {
		return errorf(ErrInvalidOperation, "table %s has no key column", s.meta.table)
	}
	ptr := reflect.ValueOf(entity)
	if e := s.ctx.tracker.lookup(ptr); e != nil {
		if e.state == Added {
			s.ctx.tracker.detach(e)
		} else {
			e.state = Deleted
		}
		return nil
	}
	s.ctx.tracker.attach(s.meta, ptr, Deleted)
	return nil
}

// Local returns the tracked entities of the set that are not marked deleted.
func (s *Set[T]) Local() []*T {
	var out []*T
	for _, e := range s.ctx.tracker.entries {
		if e.meta == s.meta && e.state != Deleted {
			out = append(out, e.entity.Interface().(*T))
		}
	}
	return out
}

// All loads every row of the table, ordered by key when there is one.
func (s *Set[T]) All(ctx context.Context) ([]*T, error) {
	return s.Where(ctx, nil)
}

// Where loads the rows matching pred. A nil pred matches every row.
func (s *Set[T]) Where(ctx context.Context, pred sq.Sqlizer) ([]*T, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	b := sq.Select(s.meta.columnNames()...).From(s.meta.table).PlaceholderFormat(s.ctx.dialect.Placeholder)
	if pred != nil {
		b = b.Where(pred)
	}
	if s.meta.key != nil {
		b = b.OrderBy(s.meta.key.name)
	}
	return s.load(ctx, b)
}

// Find loads the row with the given key. A missing row is reported as
// sql.ErrNoRows.
func (s *Set[T]) Find(ctx context.Context, key any) (*T, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if s.meta.key == nil {
		return nil, errorf(ErrInvalidOperation, "table %s has no key column", s.meta.table)
	}
	b := sq.Select(s.meta.columnNames()...).From(s.meta.table).
		Where(sq.Eq{s.meta.key.name: key}).Limit(1).
		PlaceholderFormat(s.ctx.dialect.Placeholder)
	rows, err := s.load(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("dbfactory: find %s %v: %w", s.meta.table, key, sql.ErrNoRows)
	}
	return rows[0], nil
}

// Count returns the number of rows in the table.
func (s *Set[T]) Count(ctx context.Context) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	query, args, err := sq.Select("COUNT(*)").From(s.meta.table).
		PlaceholderFormat(s.ctx.dialect.Placeholder).ToSql()
	if err != nil {
		return 0, err
	}
	s.ctx.logStatement(ctx, query, args)
	var n int64
	if err := sqlx.GetContext(ctx, s.ctx.querier(), &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Set[T]) load(ctx context.Context, b sq.SelectBuilder) ([]*T, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	s.ctx.logStatement(ctx, query, args)
	var rows []T
	if err := sqlx.SelectContext(ctx, s.ctx.querier(), &rows, query, args...); err != nil {
		return nil, err
	}

	tracking := s.ctx.tracker.QueryTracking == TrackAll
	out := make([]*T, len(rows))
	for i := range rows {
		ptr := reflect.ValueOf(&rows[i])
		if !tracking {
			out[i] = &rows[i]
			continue
		}
		if existing, ok := s.ctx.tracker.resolve(s.meta, ptr); ok {
			out[i] = existing.Interface().(*T)
			continue
		}
		s.ctx.tracker.attach(s.meta, ptr, Unchanged)
		out[i] = &rows[i]
	}
	return out, nil
}
