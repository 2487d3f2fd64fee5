// Package view mounts entity CRUD onto chi routers. A View wraps an
// orm.Executor and exposes its operations as JSON endpoints:
//
//	users := view.New(orm.Objects[User](mgr))
//	r.Mount("/api/users", users.Router())
//
// mounts POST /, GET /, GET /{id}, PATCH /{id}, DELETE /{id} and
// GET /count. WithMethods restricts the surface, WithValidate runs a
// hook over decoded fields before writes reach the database. Errors are
// rendered as JSON envelopes carrying the request trace ID assigned by
// the Trace middleware.
package view
