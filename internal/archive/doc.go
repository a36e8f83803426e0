// Package archive persists dispatched envelopes to PostgreSQL.
//
// The archiver drains the router's archive buffer, batches rows, and
// inserts them on a size or interval trigger. Inserts are append-only.
package archive
