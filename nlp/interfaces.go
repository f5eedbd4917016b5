package nlp

import (
	"context"

	"github.com/poiesic/annotit/core"
)

// Annotator sends document text to an annotation service.
// Implementations must be safe for concurrent use.
type Annotator interface {
	// Annotate returns the annotation entries for text. Errors wrap
	// core.ErrAnnotationService once retries are exhausted.
	Annotate(ctx context.Context, docID, text string) (*core.AnnotationResult, error)

	// Close releases idle connections held by the client.
	Close() error
}
