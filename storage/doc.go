// Package storage defines the document store gateway used by the ingestion
// pipeline.
//
// A store is read through SourceStore, one page of a date range at a time,
// and written through SinkStore, either one record at a time or in bulk with
// a per-record report. Drivers live in sub-packages:
//
//   - badger: embedded key-value store with a date-ordered index
//   - bleve: embedded search index with date range queries
//   - redis: remote store using sorted sets for the date index
//
// The package also holds the driver-independent pieces: field extraction
// into core.SourceDocument (FieldMapping), lazy page iteration
// (PageIterator), merge semantics for core.OpMerge records (MergeBodies),
// index pattern matching and the binary envelope used by key-value drivers.
package storage
