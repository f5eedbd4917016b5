// Package mapping turns annotation results into sink records.
//
// Four schema variants are accepted (medcat or gate-nlp, each as a
// separate index or a nested object) but they reduce to two strategies.
// The separate-index strategy writes one record per annotation entry with
// prefixed fields; the nested-object strategy writes one record per source
// document holding every entry in a list field. The vendor part of the
// variant only selects a field naming table.
package mapping
