// Package postgres implements the store interfaces using PostgreSQL
// through the pgx driver's database/sql adapter.
//
// All query predicates are built with bound parameters; user-supplied
// filter values are never interpolated into SQL text.
package postgres
