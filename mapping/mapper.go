package mapping

import (
	"fmt"
	"strings"

	"github.com/poiesic/annotit/core"
)

// Mode is the mapping strategy.
type Mode int

const (
	// ModeSeparate writes one record per annotation entry.
	ModeSeparate Mode = iota
	// ModeNested writes one record per document with all entries embedded.
	ModeNested
)

func (m Mode) String() string {
	if m == ModeNested {
		return "nested-object"
	}
	return "separate-index"
}

// Settings configure a Mapper.
type Settings struct {
	// Variant is one of medcat-separate-index, medcat-nested-object,
	// gate-nlp-separate-index, gate-nlp-nested-object, or empty to derive
	// the mode from the flags.
	Variant string

	SameIndex        bool
	UseNestedObjects bool

	BaseIndex   string // Sink index
	SourceIndex string // Written to when SameIndex is set

	// SplitField names an entry field whose value suffixes the sink index.
	// Separate-index mode only.
	SplitField string

	DocIDField        string
	AnnotationIDField string // Default: "id"

	// JoinField overrides the record field holding the source document id.
	// Default: meta.<DocIDField>
	JoinField string
}

// Mapper converts annotation results into sink records.
type Mapper interface {
	// Map returns the records for one annotated document. Errors wrap
	// core.ErrMapping.
	Map(result *core.AnnotationResult, doc *core.SourceDocument) ([]*core.SinkRecord, error)

	// ProcessedIndex is the index or index pattern holding records of
	// already processed documents.
	ProcessedIndex() string

	// JoinField is the record field holding the source document id.
	JoinField() string

	// InPlace reports whether annotations are written back onto the
	// source document. Processed documents are then found with
	// AlreadyAnnotated instead of an existence lookup.
	InPlace() bool

	// AlreadyAnnotated reports whether the stored source body already
	// carries annotations.
	AlreadyAnnotated(doc *core.SourceDocument) bool

	Mode() Mode
	Naming() Naming
}

// New validates settings and returns the matching Mapper.
func New(s Settings) (Mapper, error) {
	naming, mode, err := parseVariant(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	if s.AnnotationIDField == "" {
		s.AnnotationIDField = "id"
	}
	if s.DocIDField == "" {
		s.DocIDField = "_id"
	}
	if s.JoinField == "" {
		s.JoinField = naming.MetaPrefix + s.DocIDField
	}

	b := base{settings: s, naming: naming}
	switch mode {
	case ModeNested:
		if s.SameIndex && s.SourceIndex == "" {
			return nil, fmt.Errorf("%w: same-index ingest needs the source index name", core.ErrConfiguration)
		}
		if !s.SameIndex && s.BaseIndex == "" {
			return nil, fmt.Errorf("%w: sink index name is required", core.ErrConfiguration)
		}
		return &nestedMapper{base: b}, nil
	default:
		if s.BaseIndex == "" {
			return nil, fmt.Errorf("%w: sink index name is required", core.ErrConfiguration)
		}
		return &separateMapper{base: b}, nil
	}
}

func parseVariant(s Settings) (Naming, Mode, error) {
	flagMode := ModeSeparate
	if s.SameIndex || s.UseNestedObjects {
		flagMode = ModeNested
	}

	variant := strings.ToLower(strings.TrimSpace(s.Variant))
	if variant == "" {
		naming, _ := namingFor("medcat")
		return naming, flagMode, nil
	}

	var mode Mode
	var vendor string
	switch {
	case strings.HasSuffix(variant, "-separate-index"):
		mode, vendor = ModeSeparate, strings.TrimSuffix(variant, "-separate-index")
	case strings.HasSuffix(variant, "-nested-object"):
		mode, vendor = ModeNested, strings.TrimSuffix(variant, "-nested-object")
	default:
		return Naming{}, 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s.Variant)
	}
	naming, ok := namingFor(vendor)
	if !ok {
		return Naming{}, 0, fmt.Errorf("%w: %q", ErrUnknownVariant, s.Variant)
	}
	if mode != flagMode {
		return Naming{}, 0, fmt.Errorf("%w: %s needs %s mode (same-index=%t, use-nested-objects=%t)",
			ErrModeMismatch, variant, mode, s.SameIndex, s.UseNestedObjects)
	}
	return naming, mode, nil
}

// base holds what both strategies share.
type base struct {
	settings Settings
	naming   Naming
}

func (b *base) JoinField() string { return b.settings.JoinField }

func (b *base) Naming() Naming { return b.naming }

func (b *base) InPlace() bool { return b.settings.SameIndex }

func (b *base) AlreadyAnnotated(doc *core.SourceDocument) bool {
	if doc == nil || doc.Source == nil {
		return false
	}
	list, ok := doc.Source[b.naming.NestedField].([]any)
	return ok && len(list) > 0
}

// commonFields returns the persisted source fields under the meta prefix
// plus the join field.
func (b *base) commonFields(doc *core.SourceDocument, extra int) map[string]any {
	body := make(map[string]any, len(doc.PersistFields)+extra+1)
	for field, v := range doc.PersistFields {
		body[b.naming.MetaPrefix+field] = v
	}
	body[b.settings.JoinField] = doc.ID
	return body
}
