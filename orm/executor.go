package orm

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/purlinworks/purlin/internal/platform/logger"
)

// Executor is the generic query interface bound to one entity type. It is
// cheap to construct; route handlers typically build one per use:
//
//	user, err := orm.Objects[User](mgr).Get(ctx, id)
//
// Every method acquires a scoped session from the manager, performs one
// logical operation and commits or rolls back before returning. Filter
// predicates and written fields are validated against the entity's
// declared columns before any session is acquired, so a mistyped name
// fails fast instead of reaching the database.
//
// Operations run on the native engine by default; Standard switches an
// executor to the database/sql engine.
type Executor[T any] struct {
	m        *Manager
	typ      reflect.Type
	standard bool
	logger   *slog.Logger
}

// Objects returns the query executor for T, backed by the native engine.
func Objects[T any](m *Manager) *Executor[T] {
	t := reflect.TypeOf((*T)(nil)).Elem()
	return &Executor[T]{
		m:   m,
		typ: t,
		logger: m.baseLogger.With(
			slog.String("component", "orm_executor"),
			slog.String("entity", strings.ToLower(t.Name()))),
	}
}

// Standard returns a copy of the executor that runs every operation on the
// standard database/sql engine instead of the native one.
func (e *Executor[T]) Standard() *Executor[T] {
	cp := *e
	cp.standard = true
	return &cp
}

// run dispatches the unit of work to the engine this executor is bound to.
func (e *Executor[T]) run(ctx context.Context, fn SessionFn) error {
	if e.standard {
		return e.m.WithStdSession(ctx, fn)
	}
	return e.m.WithSession(ctx, fn)
}

func (e *Executor[T]) desc() (*descriptor, error) {
	return e.m.descriptorFor(e.typ)
}

// Columns returns the mapped column metadata for T.
func (e *Executor[T]) Columns() ([]ColumnInfo, error) {
	d, err := e.desc()
	if err != nil {
		return nil, err
	}
	return d.info().Columns, nil
}

// Create inserts a row built from the given column values and returns the
// persisted entity with its identity populated. Unknown keys fail with
// ErrUnknownField before any session is acquired.
func (e *Executor[T]) Create(ctx context.Context, fields Fields) (*T, error) {
	d, err := e.desc()
	if err != nil {
		return nil, err
	}
	if err := d.checkFields(fields); err != nil {
		return nil, err
	}

	cols := pickColumns(d, fields)
	args := make([]any, 0, len(cols))
	var query string
	if len(cols) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s",
			quoteIdent(d.table), d.colList)
	} else {
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = quoteIdent(c.name)
			args = append(args, fields[c.name])
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			quoteIdent(d.table), strings.Join(names, ", "),
			placeholderList(len(cols), 1), d.colList)
	}

	out, err := e.queryOne(ctx, d, "create", query, args)
	if err != nil {
		return nil, err
	}
	logger.FromContextOrDefault(ctx, e.logger).Debug("row created",
		slog.String("table", d.table),
		slog.Int64("id", d.pkValue(reflect.ValueOf(out).Elem())))
	return out, nil
}

// Get fetches one row by primary key. Absence is reported as ErrNotFound,
// never as a panic or a nil result with a nil error.
func (e *Executor[T]) Get(ctx context.Context, id int64) (*T, error) {
	d, err := e.desc()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		d.colList, quoteIdent(d.table), quoteIdent(d.pk.name))
	return e.queryOne(ctx, d, "get", query, []any{id})
}

// Update writes the given column values to the row with the given identity
// and returns the updated entity. A missing row is ErrNotFound; unknown
// keys fail with ErrUnknownField before any session is acquired. An empty
// fields map writes nothing and behaves like Get.
func (e *Executor[T]) Update(ctx context.Context, id int64, fields Fields) (*T, error) {
	d, err := e.desc()
	if err != nil {
		return nil, err
	}
	if err := d.checkFields(fields); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return e.Get(ctx, id)
	}

	cols := pickColumns(d, fields)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdent(c.name), i+1)
		args = append(args, fields[c.name])
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING %s",
		quoteIdent(d.table), strings.Join(sets, ", "),
		quoteIdent(d.pk.name), len(cols)+1, d.colList)

	return e.queryOne(ctx, d, "update", query, args)
}

// Delete removes the row with the given identity. It returns true when a
// row was removed and (false, nil) when no such row existed.
func (e *Executor[T]) Delete(ctx context.Context, id int64) (bool, error) {
	d, err := e.desc()
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		quoteIdent(d.table), quoteIdent(d.pk.name))

	var affected int64
	err = e.run(ctx, func(ctx context.Context, s Session) error {
		var err error
		affected, err = s.Exec(ctx, query, id)
		return err
	})
	if err != nil {
		return false, mapDriverError(d.table, "delete", err)
	}
	logger.FromContextOrDefault(ctx, e.logger).Debug("row deleted",
		slog.String("table", d.table),
		slog.Int64("id", id),
		slog.Bool("existed", affected > 0))
	return affected > 0, nil
}

// All returns every row of the entity's table, in storage order. No
// ordering is guaranteed.
func (e *Executor[T]) All(ctx context.Context) ([]*T, error) {
	d, err := e.desc()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s", d.colList, quoteIdent(d.table))
	return e.queryMany(ctx, d, "all", query, nil)
}

// Filter returns the rows matching every predicate. Unknown predicate keys
// fail with ErrUnknownField before any session is acquired; nil predicate
// values match SQL NULL.
func (e *Executor[T]) Filter(ctx context.Context, preds Fields) ([]*T, error) {
	d, err := e.desc()
	if err != nil {
		return nil, err
	}
	if err := d.checkFields(preds); err != nil {
		return nil, err
	}
	where, args := whereClause(d, preds, 1)
	query := fmt.Sprintf("SELECT %s FROM %s%s", d.colList, quoteIdent(d.table), where)
	return e.queryMany(ctx, d, "filter", query, args)
}

// First returns the first row matching every predicate, or ErrNotFound.
func (e *Executor[T]) First(ctx context.Context, preds Fields) (*T, error) {
	d, err := e.desc()
	if err != nil {
		return nil, err
	}
	if err := d.checkFields(preds); err != nil {
		return nil, err
	}
	where, args := whereClause(d, preds, 1)
	query := fmt.Sprintf("SELECT %s FROM %s%s LIMIT 1",
		d.colList, quoteIdent(d.table), where)
	return e.queryOne(ctx, d, "first", query, args)
}

// Count returns the number of rows in the entity's table.
func (e *Executor[T]) Count(ctx context.Context) (int64, error) {
	d, err := e.desc()
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(d.table))

	var count int64
	err = e.run(ctx, func(ctx context.Context, s Session) error {
		return s.QueryRow(ctx, query).Scan(&count)
	})
	if err != nil {
		return 0, mapDriverError(d.table, "count", err)
	}
	return count, nil
}

// Exists reports whether any row matches the predicates. It probes for a
// first matching row rather than counting, so absence is simply false.
func (e *Executor[T]) Exists(ctx context.Context, preds Fields) (bool, error) {
	d, err := e.desc()
	if err != nil {
		return false, err
	}
	if err := d.checkFields(preds); err != nil {
		return false, err
	}
	where, args := whereClause(d, preds, 1)
	query := fmt.Sprintf("SELECT %s FROM %s%s LIMIT 1",
		quoteIdent(d.pk.name), quoteIdent(d.table), where)

	var found bool
	err = e.run(ctx, func(ctx context.Context, s Session) error {
		rows, err := s.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		found = rows.Next()
		return rows.Err()
	})
	if err != nil {
		return false, mapDriverError(d.table, "exists", err)
	}
	return found, nil
}

// SelectRelated returns the first row matching the predicates with the
// named relations eagerly loaded in the same session. Unknown predicate
// keys fail with ErrUnknownField and unknown relation names with
// ErrUnknownRelation, both before any session is acquired.
func (e *Executor[T]) SelectRelated(ctx context.Context, preds Fields, relations ...string) (*T, error) {
	d, err := e.desc()
	if err != nil {
		return nil, err
	}
	if err := d.checkFields(preds); err != nil {
		return nil, err
	}
	if err := d.checkRelations(relations); err != nil {
		return nil, err
	}

	// Resolve related descriptors up front; loading fails fast when a
	// related type was never registered or its foreign key is missing.
	related := make(map[string]*descriptor, len(relations))
	for _, name := range relations {
		rel := d.rels[name]
		rd, err := e.m.descriptorFor(rel.elem)
		if err != nil {
			return nil, err
		}
		if rel.kind == relMany {
			if _, ok := rd.colNames[rel.fkColumn]; !ok {
				return nil, fmt.Errorf("%w: relation %q needs column %q on %s",
					ErrInvalidEntity, rel.name, rel.fkColumn, rd.table)
			}
		}
		related[name] = rd
	}

	where, args := whereClause(d, preds, 1)
	query := fmt.Sprintf("SELECT %s FROM %s%s LIMIT 1",
		d.colList, quoteIdent(d.table), where)

	out := new(T)
	ov := reflect.ValueOf(out).Elem()
	dests := d.scanDests(ov)

	err = e.run(ctx, func(ctx context.Context, s Session) error {
		if err := s.QueryRow(ctx, query, args...).Scan(dests...); err != nil {
			if isNoRows(err) {
				return notFound(d.table)
			}
			return err
		}
		for _, name := range relations {
			if err := loadRelation(ctx, s, d, d.rels[name], related[name], ov); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, mapDriverError(d.table, "select_related", err)
	}
	return out, nil
}

// Save persists the entity by merge: a zero identity inserts a new row,
// a set identity inserts or updates by primary key. The entity is
// refreshed in place from the row the database returns.
func (e *Executor[T]) Save(ctx context.Context, entity *T) error {
	if entity == nil {
		return fmt.Errorf("%w: nil entity", ErrInvalidEntity)
	}
	d, err := e.desc()
	if err != nil {
		return err
	}

	v := reflect.ValueOf(entity).Elem()
	id := d.pkValue(v)

	var (
		query string
		args  []any
	)
	if id == 0 {
		cols := nonPKColumns(d)
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = quoteIdent(c.name)
			args = append(args, d.fieldValue(v, c))
		}
		if len(cols) == 0 {
			query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s",
				quoteIdent(d.table), d.colList)
		} else {
			query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
				quoteIdent(d.table), strings.Join(names, ", "),
				placeholderList(len(cols), 1), d.colList)
		}
	} else {
		names := make([]string, len(d.cols))
		sets := make([]string, 0, len(d.cols))
		for i, c := range d.cols {
			names[i] = quoteIdent(c.name)
			args = append(args, d.fieldValue(v, c))
			if !c.pk {
				sets = append(sets, fmt.Sprintf("%s = excluded.%s",
					quoteIdent(c.name), quoteIdent(c.name)))
			}
		}
		if len(sets) == 0 {
			// Identity-only entity; overwrite the key with itself so the
			// statement still returns the row.
			sets = append(sets, fmt.Sprintf("%s = excluded.%s",
				quoteIdent(d.pk.name), quoteIdent(d.pk.name)))
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING %s",
			quoteIdent(d.table), strings.Join(names, ", "),
			placeholderList(len(d.cols), 1), quoteIdent(d.pk.name),
			strings.Join(sets, ", "), d.colList)
	}

	dests := d.scanDests(v)
	err = e.run(ctx, func(ctx context.Context, s Session) error {
		return s.QueryRow(ctx, query, args...).Scan(dests...)
	})
	if err != nil {
		return mapDriverError(d.table, "save", err)
	}
	return nil
}

// Raw runs a caller-built statement and scans the result rows into
// entities by column name. Every result column must be a declared column
// of T; columns the statement does not return stay zero. It is the escape
// hatch for hand-written SELECTs:
//
//	rows, err := orm.Objects[User](mgr).
//	    Raw(ctx, `SELECT "id", "name" FROM "user" WHERE "name" LIKE $1`, "a%")
func (e *Executor[T]) Raw(ctx context.Context, query string, args ...any) ([]*T, error) {
	d, err := e.desc()
	if err != nil {
		return nil, err
	}

	var out []*T
	err = e.run(ctx, func(ctx context.Context, s Session) error {
		rows, err := s.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		names, err := rows.Columns()
		if err != nil {
			return err
		}
		cols := make([]*column, len(names))
		for i, n := range names {
			c, ok := d.colNames[n]
			if !ok {
				return fmt.Errorf("%w: result column %q is not a column of %s",
					ErrUnknownField, n, d.table)
			}
			cols[i] = c
		}

		for rows.Next() {
			item := new(T)
			iv := reflect.ValueOf(item).Elem()
			dests := make([]any, len(cols))
			for i, c := range cols {
				dests[i] = iv.FieldByIndex(c.index).Addr().Interface()
			}
			if err := rows.Scan(dests...); err != nil {
				return err
			}
			out = append(out, item)
		}
		return rows.Err()
	})
	if err != nil {
		if IsAttributeError(err) {
			return nil, err
		}
		return nil, mapDriverError(d.table, "raw", err)
	}
	return out, nil
}

// queryOne runs a single-row statement and scans the result into a fresh
// entity. Row absence maps to ErrNotFound.
func (e *Executor[T]) queryOne(ctx context.Context, d *descriptor, op, query string, args []any) (*T, error) {
	out := new(T)
	dests := d.scanDests(reflect.ValueOf(out).Elem())

	err := e.run(ctx, func(ctx context.Context, s Session) error {
		if err := s.QueryRow(ctx, query, args...).Scan(dests...); err != nil {
			if isNoRows(err) {
				return notFound(d.table)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, err
		}
		return nil, mapDriverError(d.table, op, err)
	}
	return out, nil
}

// queryMany runs a multi-row statement and scans every row into a fresh
// entity.
func (e *Executor[T]) queryMany(ctx context.Context, d *descriptor, op, query string, args []any) ([]*T, error) {
	var out []*T
	err := e.run(ctx, func(ctx context.Context, s Session) error {
		rows, err := s.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			item := new(T)
			if err := rows.Scan(d.scanDests(reflect.ValueOf(item).Elem())...); err != nil {
				return err
			}
			out = append(out, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, mapDriverError(d.table, op, err)
	}
	return out, nil
}

// loadRelation populates one relation field on the owning struct value
// within the running session.
func loadRelation(ctx context.Context, s Session, d *descriptor, rel *relation, rd *descriptor, owner reflect.Value) error {
	switch rel.kind {
	case relMany:
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
			rd.colList, quoteIdent(rd.table), quoteIdent(rel.fkColumn))
		rows, err := s.Query(ctx, query, d.pkValue(owner))
		if err != nil {
			return err
		}
		defer rows.Close()

		slice := reflect.MakeSlice(owner.FieldByIndex(rel.index).Type(), 0, 0)
		for rows.Next() {
			item := reflect.New(rd.goType)
			if err := rows.Scan(rd.scanDests(item.Elem())...); err != nil {
				return err
			}
			if rel.ptrElem {
				slice = reflect.Append(slice, item)
			} else {
				slice = reflect.Append(slice, item.Elem())
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		owner.FieldByIndex(rel.index).Set(slice)
		return nil

	case relOne:
		fk := owner.FieldByIndex(d.colNames[rel.fkColumn].index)
		if fk.Kind() == reflect.Pointer {
			if fk.IsNil() {
				return nil
			}
			fk = fk.Elem()
		}
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
			rd.colList, quoteIdent(rd.table), quoteIdent(rd.pk.name))
		item := reflect.New(rd.goType)
		if err := s.QueryRow(ctx, query, fk.Interface()).Scan(rd.scanDests(item.Elem())...); err != nil {
			if isNoRows(err) {
				return notFound(rd.table)
			}
			return err
		}
		owner.FieldByIndex(rel.index).Set(item)
		return nil
	}
	return nil
}

// pickColumns selects the declared columns named by the fields map, in
// declaration order, so generated SQL is deterministic.
func pickColumns(d *descriptor, fields Fields) []*column {
	cols := make([]*column, 0, len(fields))
	for _, c := range d.cols {
		if _, ok := fields[c.name]; ok {
			cols = append(cols, c)
		}
	}
	return cols
}

// nonPKColumns returns every column except the primary key.
func nonPKColumns(d *descriptor) []*column {
	cols := make([]*column, 0, len(d.cols)-1)
	for _, c := range d.cols {
		if !c.pk {
			cols = append(cols, c)
		}
	}
	return cols
}

// whereClause renders equality predicates in column declaration order.
// Nil predicate values become IS NULL tests. The returned clause includes
// the leading " WHERE ", or is empty when there are no predicates.
func whereClause(d *descriptor, preds Fields, start int) (string, []any) {
	if len(preds) == 0 {
		return "", nil
	}
	var (
		b    strings.Builder
		args []any
		n    = start
	)
	b.WriteString(" WHERE ")
	first := true
	for _, c := range d.cols {
		v, ok := preds[c.name]
		if !ok {
			continue
		}
		if !first {
			b.WriteString(" AND ")
		}
		first = false
		if v == nil {
			fmt.Fprintf(&b, "%s IS NULL", quoteIdent(c.name))
			continue
		}
		fmt.Fprintf(&b, "%s = $%d", quoteIdent(c.name), n)
		args = append(args, v)
		n++
	}
	return b.String(), args
}

// placeholderList renders n comma-separated $k markers starting at start.
func placeholderList(n, start int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", start+i)
	}
	return b.String()
}
