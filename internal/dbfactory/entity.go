package dbfactory

import (
	"context"
	"errors"
	"reflect"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"
)

// ErrConcurrency is returned by SaveChanges when an update or delete matched no row.
var ErrConcurrency = errors.New("dbfactory: entity changed or removed since it was loaded")

var fieldMapper = reflectx.NewMapperFunc("db", sqlx.NameMapper)

type column struct {
	name  string
	index []int
}

// entityMeta is the column layout of an entity type stored in one table.
type entityMeta struct {
	table   string
	typ     reflect.Type
	columns []column
	key     *column
	// generated is set for integer keys, which the engine fills on insert
	// when left zero.
	generated bool
}

type metaKey struct {
	typ   reflect.Type
	table string
}

var metaCache sync.Map // metaKey -> *entityMeta

func metaFor(t reflect.Type, table string) (*entityMeta, error) {
	if table == "" {
		return nil, errorf(ErrArgument, "table name must not be blank")
	}
	if t.Kind() != reflect.Struct {
		return nil, errorf(ErrArgument, "entity %s is not a struct", t)
	}
	mk := metaKey{typ: t, table: table}
	if m, ok := metaCache.Load(mk); ok {
		return m.(*entityMeta), nil
	}

	m := &entityMeta{table: table, typ: t}
	var keyByTag, keyByName *column
	var walk func(fi *reflectx.FieldInfo)
	walk = func(fi *reflectx.FieldInfo) {
		for _, child := range fi.Children {
			if child == nil {
				continue
			}
			if child.Embedded {
				walk(child)
				continue
			}
			m.columns = append(m.columns, column{name: child.Name, index: child.Index})
			col := &m.columns[len(m.columns)-1]
			if _, ok := child.Options["key"]; ok && keyByTag == nil {
				keyByTag = &column{name: col.name, index: col.index}
			}
			if child.Name == "id" {
				keyByName = &column{name: col.name, index: col.index}
			}
		}
	}
	walk(fieldMapper.TypeMap(t).Tree)
	if len(m.columns) == 0 {
		return nil, errorf(ErrArgument, "entity %s has no mapped columns", t)
	}

	m.key = keyByTag
	if m.key == nil {
		m.key = keyByName
	}
	if m.key != nil {
		switch t.FieldByIndex(m.key.index).Type.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			m.generated = true
		}
	}

	actual, _ := metaCache.LoadOrStore(mk, m)
	return actual.(*entityMeta), nil
}

func (m *entityMeta) columnNames() []string {
	names := make([]string, len(m.columns))
	for i, c := range m.columns {
		names[i] = c.name
	}
	return names
}

func (m *entityMeta) keyValue(ptr reflect.Value) (any, error) {
	if m.key == nil {
		return nil, errorf(ErrInvalidOperation, "table %s has no key column", m.table)
	}
	return ptr.Elem().FieldByIndex(m.key.index).Interface(), nil
}

func (m *entityMeta) insert(ctx context.Context, c *Context, q Querier, ptr reflect.Value) (int64, error) {
	row := ptr.Elem()
	var (
		cols []string
		vals []any
	)
	fillKey := false
	for _, col := range m.columns {
		v := row.FieldByIndex(col.index)
		if m.key != nil && col.name == m.key.name && m.generated && v.IsZero() {
			fillKey = true
			continue
		}
		cols = append(cols, col.name)
		vals = append(vals, v.Interface())
	}

	b := sq.Insert(m.table).Columns(cols...).Values(vals...).PlaceholderFormat(c.dialect.Placeholder)
	if fillKey && c.dialect.Returning {
		b = b.Suffix("RETURNING " + m.key.name)
		query, args, err := b.ToSql()
		if err != nil {
			return 0, err
		}
		c.logStatement(ctx, query, args)
		keyField := row.FieldByIndex(m.key.index)
		if err := q.QueryRowxContext(ctx, query, args...).Scan(keyField.Addr().Interface()); err != nil {
			return 0, err
		}
		return 1, nil
	}

	query, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	c.logStatement(ctx, query, args)
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if fillKey {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		keyField := row.FieldByIndex(m.key.index)
		if keyField.CanInt() {
			keyField.SetInt(id)
		} else {
			keyField.SetUint(uint64(id))
		}
	}
	return res.RowsAffected()
}

func (m *entityMeta) update(ctx context.Context, c *Context, q Querier, ptr reflect.Value) (int64, error) {
	key, err := m.keyValue(ptr)
	if err != nil {
		return 0, err
	}
	row := ptr.Elem()
	set := make(map[string]any, len(m.columns))
	for _, col := range m.columns {
		if col.name == m.key.name {
			continue
		}
		set[col.name] = row.FieldByIndex(col.index).Interface()
	}
	if len(set) == 0 {
		return 0, nil
	}
	query, args, err := sq.Update(m.table).SetMap(set).Where(sq.Eq{m.key.name: key}).
		PlaceholderFormat(c.dialect.Placeholder).ToSql()
	if err != nil {
		return 0, err
	}
	return c.execAffected(ctx, q, query, args)
}

func (m *entityMeta) delete(ctx context.Context, c *Context, q Querier, ptr reflect.Value) (int64, error) {
	key, err := m.keyValue(ptr)
	if err != nil {
		return 0, err
	}
	query, args, err := sq.Delete(m.table).Where(sq.Eq{m.key.name: key}).
		PlaceholderFormat(c.dialect.Placeholder).ToSql()
	if err != nil {
		return 0, err
	}
	return c.execAffected(ctx, q, query, args)
}

// generatedKeys remembers key fields that insert fills from the database, so a
// failed save can clear them again.
type generatedKeys []reflect.Value

// unsetKeys collects the zero generated keys of the added entries.
func unsetKeys(pending []*entry) generatedKeys {
	var keys generatedKeys
	for _, e := range pending {
		if e.state != Added || e.meta.key == nil || !e.meta.generated {
			continue
		}
		f := e.entity.Elem().FieldByIndex(e.meta.key.index)
		if f.IsZero() {
			keys = append(keys, f)
		}
	}
	return keys
}

func (k generatedKeys) reset() {
	for _, f := range k {
		f.SetZero()
	}
}
