// Package stores provides the SQLite run journal.
//
// The journal records each run, every phase transition within it and every
// file copied into a backup snapshot. It is history only: the plain-text
// state file remains the source of truth for resumption, and a run proceeds
// when the journal cannot be written.
//
// The schema is applied with golang-migrate from embedded migrations.
package stores
