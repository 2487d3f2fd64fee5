package view

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/purlinworks/purlin/orm"
)

// Method names one routable operation on a View.
type Method string

const (
	MethodCreate Method = "create"
	MethodGet    Method = "get"
	MethodList   Method = "list"
	MethodUpdate Method = "update"
	MethodDelete Method = "delete"
	MethodCount  Method = "count"
)

var allMethods = []Method{
	MethodCreate, MethodGet, MethodList, MethodUpdate, MethodDelete, MethodCount,
}

type settings struct {
	methods  map[Method]bool
	validate func(orm.Fields) error
}

// Option customizes a View at construction time.
type Option func(*settings)

// WithMethods restricts the View to the given operations. The default is
// all of them.
func WithMethods(methods ...Method) Option {
	return func(s *settings) {
		s.methods = make(map[Method]bool, len(methods))
		for _, m := range methods {
			s.methods[m] = true
		}
	}
}

// WithValidate installs a hook that runs over the decoded fields before
// Create and Update touch the database. A non-nil return is reported to
// the client as a 400 with the error's message.
func WithValidate(fn func(orm.Fields) error) Option {
	return func(s *settings) {
		s.validate = fn
	}
}

// View exposes one entity type's executor operations as JSON endpoints.
type View[T any] struct {
	exec     *orm.Executor[T]
	methods  map[Method]bool
	validate func(orm.Fields) error
}

// New builds a View over the given executor.
func New[T any](exec *orm.Executor[T], opts ...Option) *View[T] {
	s := settings{methods: make(map[Method]bool, len(allMethods))}
	for _, m := range allMethods {
		s.methods[m] = true
	}
	for _, opt := range opts {
		opt(&s)
	}
	return &View[T]{exec: exec, methods: s.methods, validate: s.validate}
}

// Router returns a chi router with the View's enabled endpoints mounted
// relative to its root.
func (v *View[T]) Router() chi.Router {
	r := chi.NewRouter()
	if v.methods[MethodCount] {
		r.Get("/count", v.count)
	}
	if v.methods[MethodCreate] {
		r.Post("/", v.create)
	}
	if v.methods[MethodList] {
		r.Get("/", v.list)
	}
	if v.methods[MethodGet] {
		r.Get("/{id}", v.get)
	}
	if v.methods[MethodUpdate] {
		r.Patch("/{id}", v.update)
	}
	if v.methods[MethodDelete] {
		r.Delete("/{id}", v.remove)
	}
	return r
}

// CountResponse is the payload for GET /count.
type CountResponse struct {
	Count int64 `json:"count"`
}

func (v *View[T]) create(w http.ResponseWriter, r *http.Request) {
	fields, err := v.decodeBody(r)
	if err != nil {
		v.respondDecodeError(w, r, err)
		return
	}
	if v.validate != nil {
		if err := v.validate(fields); err != nil {
			RespondWithError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	entity, err := v.exec.Create(r.Context(), fields)
	if err != nil {
		v.respondError(w, r, "create failed", err)
		return
	}
	RespondWithJSON(w, r, http.StatusCreated, entity)
}

func (v *View[T]) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "invalid id")
		return
	}

	var entity *T
	if related := relatedNames(r); len(related) > 0 {
		entity, err = v.exec.SelectRelated(r.Context(), orm.Fields{"id": id}, related...)
	} else {
		entity, err = v.exec.Get(r.Context(), id)
	}
	if err != nil {
		v.respondError(w, r, "lookup failed", err)
		return
	}
	RespondWithJSON(w, r, http.StatusOK, entity)
}

func (v *View[T]) list(w http.ResponseWriter, r *http.Request) {
	preds, err := v.queryFilters(r)
	if err != nil {
		v.respondDecodeError(w, r, err)
		return
	}

	var rows []*T
	if len(preds) == 0 {
		rows, err = v.exec.All(r.Context())
	} else {
		rows, err = v.exec.Filter(r.Context(), preds)
	}
	if err != nil {
		v.respondError(w, r, "list failed", err)
		return
	}
	if rows == nil {
		rows = []*T{} // render [] rather than null
	}
	RespondWithJSON(w, r, http.StatusOK, rows)
}

func (v *View[T]) update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "invalid id")
		return
	}
	fields, err := v.decodeBody(r)
	if err != nil {
		v.respondDecodeError(w, r, err)
		return
	}
	if v.validate != nil {
		if err := v.validate(fields); err != nil {
			RespondWithError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	entity, err := v.exec.Update(r.Context(), id, fields)
	if err != nil {
		v.respondError(w, r, "update failed", err)
		return
	}
	RespondWithJSON(w, r, http.StatusOK, entity)
}

func (v *View[T]) remove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "invalid id")
		return
	}

	deleted, err := v.exec.Delete(r.Context(), id)
	if err != nil {
		v.respondError(w, r, "delete failed", err)
		return
	}
	if !deleted {
		RespondWithError(w, r, http.StatusNotFound, "not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (v *View[T]) count(w http.ResponseWriter, r *http.Request) {
	n, err := v.exec.Count(r.Context())
	if err != nil {
		v.respondError(w, r, "count failed", err)
		return
	}
	RespondWithJSON(w, r, http.StatusOK, CountResponse{Count: n})
}

// respondError maps executor errors to HTTP status codes. The raw error
// is logged, never returned to the client.
func (v *View[T]) respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case orm.IsAttributeError(err):
		RespondWithErrorAndLog(w, r, http.StatusBadRequest, "unknown field or relation", err)
	case orm.IsNotFound(err):
		RespondWithError(w, r, http.StatusNotFound, "not found")
	case orm.IsDuplicate(err):
		RespondWithErrorAndLog(w, r, http.StatusConflict, "duplicate value", err)
	case orm.IsConstraint(err):
		RespondWithErrorAndLog(w, r, http.StatusConflict, "constraint violation", err)
	case errors.Is(err, orm.ErrNotInitialized):
		RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "database unavailable", err)
	default:
		RespondWithErrorAndLog(w, r, http.StatusInternalServerError, msg, err)
	}
}

// respondDecodeError distinguishes metadata failures from malformed input.
func (v *View[T]) respondDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, orm.ErrNotRegistered) {
		v.respondError(w, r, "metadata lookup failed", err)
		return
	}
	RespondWithErrorAndLog(w, r, http.StatusBadRequest, "invalid request body", err)
}

// decodeBody reads the request body as a flat JSON object and converts
// numbers to the mapped column's Go type. Unknown keys pass through so the
// executor reports them as attribute errors.
func (v *View[T]) decodeBody(r *http.Request) (orm.Fields, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	byName, err := v.columnsByName()
	if err != nil {
		return nil, err
	}

	fields := make(orm.Fields, len(raw))
	for name, val := range raw {
		num, isNum := val.(json.Number)
		if !isNum {
			fields[name] = val
			continue
		}
		col, known := byName[name]
		if !known {
			fields[name] = num.String()
			continue
		}
		converted, err := convertNumber(col, num)
		if err != nil {
			return nil, err
		}
		fields[name] = converted
	}
	return fields, nil
}

// queryFilters turns the query string into equality predicates, parsing
// values according to the mapped column types.
func (v *View[T]) queryFilters(r *http.Request) (orm.Fields, error) {
	query := r.URL.Query()
	if len(query) == 0 {
		return nil, nil
	}

	byName, err := v.columnsByName()
	if err != nil {
		return nil, err
	}

	preds := make(orm.Fields, len(query))
	for name := range query {
		raw := query.Get(name)
		col, known := byName[name]
		if !known {
			// Filter rejects the unknown name with the proper error.
			preds[name] = raw
			continue
		}
		parsed, err := parseQueryValue(col, raw)
		if err != nil {
			return nil, err
		}
		preds[name] = parsed
	}
	return preds, nil
}

func (v *View[T]) columnsByName() (map[string]orm.ColumnInfo, error) {
	cols, err := v.exec.Columns()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]orm.ColumnInfo, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}
	return byName, nil
}

// convertNumber narrows a json.Number to the column's numeric shape.
// Numbers aimed at non-numeric columns keep their literal text.
func convertNumber(col orm.ColumnInfo, num json.Number) (any, error) {
	switch strings.TrimPrefix(col.GoType, "*") {
	case "int", "int16", "int32", "int64":
		n, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", col.Name, err)
		}
		return n, nil
	case "float32", "float64":
		f, err := num.Float64()
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", col.Name, err)
		}
		return f, nil
	default:
		return num.String(), nil
	}
}

// parseQueryValue parses a query-string value into the column's Go type.
func parseQueryValue(col orm.ColumnInfo, raw string) (any, error) {
	switch strings.TrimPrefix(col.GoType, "*") {
	case "int", "int16", "int32", "int64":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", col.Name, err)
		}
		return n, nil
	case "float32", "float64":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", col.Name, err)
		}
		return f, nil
	case "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", col.Name, err)
		}
		return b, nil
	default:
		return raw, nil
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// relatedNames parses the comma-separated ?related= parameter.
func relatedNames(r *http.Request) []string {
	raw := r.URL.Query().Get("related")
	if raw == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
