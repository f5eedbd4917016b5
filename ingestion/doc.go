// Package ingestion runs date-windowed annotation passes.
//
// A Scheduler partitions the requested time range into intervals and hands
// each one to an interval runner on a bounded worker pool. The Worker is the
// runner used in production. For its interval it:
//   - pages through matching source documents
//   - skips documents whose annotations are already in the sink
//   - sends the rest to the annotation service
//   - maps the results to sink records and writes them, immediately or
//     through a bulk buffer
//
// Per-document failures are logged and counted in Stats and never stop an
// interval. An interval fails only when its source pages cannot be read;
// a failed interval never stops its siblings.
package ingestion
