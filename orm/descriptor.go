package orm

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// column describes one persisted struct field.
type column struct {
	name     string
	index    []int // reflect field index chain, embedded fields included
	goType   reflect.Type
	pk       bool
	unique   bool
	nullable bool
}

// relKind distinguishes the two relation shapes.
type relKind int

const (
	// relMany is a slice field whose foreign key lives on the related table.
	relMany relKind = iota
	// relOne is a pointer field resolved through a foreign key column on
	// the owning table.
	relOne
)

// relation describes one eager-loadable association.
type relation struct {
	name     string // lowercased field name, the key SelectRelated matches on
	kind     relKind
	fkColumn string // on the related table for relMany, on the owning table for relOne
	index    []int
	elem     reflect.Type // related struct type
	ptrElem  bool         // relMany only: slice element is a pointer
}

// descriptor is the reflection image of one registered entity type:
// table name, columns, relations and primary key.
type descriptor struct {
	table    string
	goType   reflect.Type
	cols     []*column
	colNames map[string]*column
	rels     map[string]*relation
	pk       *column
	colList  string // cached quoted projection: "id", "name", ...
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	bytesType = reflect.TypeOf([]byte(nil))
)

// buildDescriptor reflects over an entity struct type and validates its
// column and relation declarations. Columns are declared with `db` tags,
// relations with `rel` tags; untagged fields are not persisted.
func buildDescriptor(t reflect.Type) (*descriptor, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrInvalidEntity, t)
	}

	d := &descriptor{
		table:    tableName(t),
		goType:   t,
		colNames: make(map[string]*column),
		rels:     make(map[string]*relation),
	}
	if !validIdent(d.table) {
		return nil, fmt.Errorf("%w: %q is not a valid table name", ErrInvalidEntity, d.table)
	}

	for _, f := range reflect.VisibleFields(t) {
		if f.Anonymous {
			if f.Type.Kind() == reflect.Pointer {
				return nil, fmt.Errorf("%w: %s embeds a pointer type %s",
					ErrInvalidEntity, t.Name(), f.Type)
			}
			// The embedded struct itself; its fields arrive promoted.
			continue
		}
		if f.PkgPath != "" {
			continue // unexported
		}

		if tag, ok := f.Tag.Lookup("rel"); ok {
			rel, err := parseRelation(f, tag)
			if err != nil {
				return nil, fmt.Errorf("%w: field %s.%s: %v", ErrInvalidEntity, t.Name(), f.Name, err)
			}
			if _, dup := d.rels[rel.name]; dup {
				return nil, fmt.Errorf("%w: duplicate relation %q on %s", ErrInvalidEntity, rel.name, t.Name())
			}
			d.rels[rel.name] = rel
			continue
		}

		tag, ok := f.Tag.Lookup("db")
		if !ok || tag == "-" {
			continue
		}
		col, err := parseColumn(f, tag)
		if err != nil {
			return nil, fmt.Errorf("%w: field %s.%s: %v", ErrInvalidEntity, t.Name(), f.Name, err)
		}
		if _, dup := d.colNames[col.name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q on %s", ErrInvalidEntity, col.name, t.Name())
		}
		d.cols = append(d.cols, col)
		d.colNames[col.name] = col
		if col.pk {
			d.pk = col
		}
	}

	if d.pk == nil {
		return nil, fmt.Errorf("%w: %s has no id column, embed orm.Model", ErrInvalidEntity, t.Name())
	}

	// Foreign key columns of belongs-to relations must be declared columns
	// of the owning type.
	for _, rel := range d.rels {
		if rel.kind == relOne {
			if _, ok := d.colNames[rel.fkColumn]; !ok {
				return nil, fmt.Errorf("%w: relation %q on %s references undeclared column %q",
					ErrInvalidEntity, rel.name, t.Name(), rel.fkColumn)
			}
		}
	}

	names := make([]string, len(d.cols))
	for i, c := range d.cols {
		names[i] = quoteIdent(c.name)
	}
	d.colList = strings.Join(names, ", ")

	return d, nil
}

// tableName derives the table from the type name lowercased, honoring a
// TableNamer override. Two entity types whose names differ only by case
// collide; that is an accepted limitation of the convention.
func tableName(t reflect.Type) string {
	if tn, ok := reflect.New(t).Interface().(TableNamer); ok {
		return tn.TableName()
	}
	return strings.ToLower(t.Name())
}

// parseColumn reads a `db:"name[,unique][,null]"` tag.
func parseColumn(f reflect.StructField, tag string) (*column, error) {
	parts := strings.Split(tag, ",")
	name := strings.TrimSpace(parts[0])
	if !validIdent(name) {
		return nil, fmt.Errorf("invalid column name in db tag %q", tag)
	}
	if !validColumnType(f.Type) {
		return nil, fmt.Errorf("unsupported column type %s", f.Type)
	}

	col := &column{
		name:     name,
		index:    f.Index,
		goType:   f.Type,
		nullable: f.Type.Kind() == reflect.Pointer,
	}
	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "unique":
			col.unique = true
		case "null":
			col.nullable = true
		case "":
		default:
			return nil, fmt.Errorf("unknown db tag option %q", opt)
		}
	}

	if name == "id" {
		if f.Type.Kind() != reflect.Int64 {
			return nil, fmt.Errorf("id column must be int64, got %s", f.Type)
		}
		col.pk = true
		col.nullable = false
	}
	return col, nil
}

// parseRelation reads a `rel:"many,fk:<col>"` or `rel:"one,fk:<col>"` tag.
// A many relation field is a slice of the related struct (or of pointers to
// it); a one relation field is a pointer to the related struct.
func parseRelation(f reflect.StructField, tag string) (*relation, error) {
	parts := strings.Split(tag, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("rel tag %q needs a kind and an fk option", tag)
	}

	rel := &relation{
		name:  strings.ToLower(f.Name),
		index: f.Index,
	}

	switch strings.TrimSpace(parts[0]) {
	case "many":
		rel.kind = relMany
		if f.Type.Kind() != reflect.Slice {
			return nil, fmt.Errorf("many relation field must be a slice, got %s", f.Type)
		}
		elem := f.Type.Elem()
		if elem.Kind() == reflect.Pointer {
			rel.ptrElem = true
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct {
			return nil, fmt.Errorf("many relation element must be a struct, got %s", f.Type.Elem())
		}
		rel.elem = elem
	case "one":
		rel.kind = relOne
		if f.Type.Kind() != reflect.Pointer || f.Type.Elem().Kind() != reflect.Struct {
			return nil, fmt.Errorf("one relation field must be a pointer to a struct, got %s", f.Type)
		}
		rel.elem = f.Type.Elem()
	default:
		return nil, fmt.Errorf("unknown relation kind %q", parts[0])
	}

	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		if fk, ok := strings.CutPrefix(opt, "fk:"); ok {
			if !validIdent(fk) {
				return nil, fmt.Errorf("invalid fk column in rel tag %q", tag)
			}
			rel.fkColumn = fk
			continue
		}
		if opt != "" {
			return nil, fmt.Errorf("unknown rel tag option %q", opt)
		}
	}
	if rel.fkColumn == "" {
		return nil, fmt.Errorf("rel tag %q is missing the fk option", tag)
	}
	return rel, nil
}

// validColumnType reports whether a field type can be bound and scanned by
// both engines.
func validColumnType(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType || t == bytesType {
		return true
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Float32, reflect.Float64, reflect.String, reflect.Bool:
		return true
	default:
		return false
	}
}

// checkFields rejects any key that is not a declared column.
func (d *descriptor) checkFields(fields Fields) error {
	for k := range fields {
		if _, ok := d.colNames[k]; !ok {
			return fmt.Errorf("%w: %q is not a column of %s", ErrUnknownField, k, d.table)
		}
	}
	return nil
}

// checkRelations rejects any name that is not a declared relation.
func (d *descriptor) checkRelations(names []string) error {
	for _, n := range names {
		if _, ok := d.rels[n]; !ok {
			return fmt.Errorf("%w: %q is not a relation of %s", ErrUnknownRelation, n, d.table)
		}
	}
	return nil
}

// scanDests returns scan targets for every column, in declaration order.
// v must be the addressable struct value.
func (d *descriptor) scanDests(v reflect.Value) []any {
	dests := make([]any, len(d.cols))
	for i, c := range d.cols {
		dests[i] = v.FieldByIndex(c.index).Addr().Interface()
	}
	return dests
}

// fieldValue reads one column value from the struct, flattening nil
// pointers to SQL NULL.
func (d *descriptor) fieldValue(v reflect.Value, c *column) any {
	fv := v.FieldByIndex(c.index)
	if fv.Kind() == reflect.Pointer && fv.IsNil() {
		return nil
	}
	return fv.Interface()
}

// pkValue reads the primary key from the struct.
func (d *descriptor) pkValue(v reflect.Value) int64 {
	return v.FieldByIndex(d.pk.index).Int()
}

// info renders the descriptor as public introspection metadata.
func (d *descriptor) info() EntityInfo {
	cols := make([]ColumnInfo, len(d.cols))
	for i, c := range d.cols {
		cols[i] = ColumnInfo{
			Name:       c.name,
			GoType:     c.goType.String(),
			PrimaryKey: c.pk,
			Nullable:   c.nullable,
			Unique:     c.unique,
		}
	}
	rels := make([]string, 0, len(d.rels))
	for name := range d.rels {
		rels = append(rels, name)
	}
	sort.Strings(rels)
	return EntityInfo{Table: d.table, Columns: cols, Relations: rels}
}
