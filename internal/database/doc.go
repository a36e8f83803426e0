// Package database provides the PostgreSQL connection pool used by the
// envelope archiver.
package database
