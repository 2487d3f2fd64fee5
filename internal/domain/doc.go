// Package domain contains the demo server's persisted entities and their
// validation rules, independent of the HTTP layer that serves them.
package domain
