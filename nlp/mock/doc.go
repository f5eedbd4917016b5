// Package mock provides a test double for nlp.Annotator.
//
// The default behaviour returns one deterministic entry per distinct word of
// the text, so tests can reason about cardinality without a live service:
//
//	annotator := mock.NewAnnotator()
//	result, err := annotator.Annotate(ctx, "doc-1", "fever and cough")
//	// len(result.Entries) == 3
//
// Custom behaviour is injected through AnnotateFunc.
package mock
