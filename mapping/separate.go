package mapping

import (
	"fmt"

	"github.com/poiesic/annotit/core"
)

type separateMapper struct {
	base
}

var _ Mapper = (*separateMapper)(nil)

func (m *separateMapper) Mode() Mode { return ModeSeparate }

// ProcessedIndex covers every split index when splitting is enabled.
func (m *separateMapper) ProcessedIndex() string {
	if m.settings.SplitField != "" {
		return m.settings.BaseIndex + "*"
	}
	return m.settings.BaseIndex
}

func (m *separateMapper) Map(result *core.AnnotationResult, doc *core.SourceDocument) ([]*core.SinkRecord, error) {
	records := make([]*core.SinkRecord, 0, len(result.Entries))
	for i, entry := range result.Entries {
		annID, ok := entry.ID(m.settings.AnnotationIDField)
		if !ok {
			return nil, fmt.Errorf("%w: document %s entry %d: %w (field %q)",
				core.ErrMapping, doc.ID, i, ErrMissingAnnotationID, m.settings.AnnotationIDField)
		}

		body := m.commonFields(doc, len(entry))
		for field, v := range entry {
			body[m.naming.AnnotationPrefix+field] = v
		}

		records = append(records, &core.SinkRecord{
			IndexTarget: m.target(entry),
			ID:          fmt.Sprintf("doc-%s-ann-%s", doc.ID, annID),
			Op:          core.OpIndex,
			Body:        body,
		})
	}
	return records, nil
}

func (m *separateMapper) target(entry core.AnnotationEntry) string {
	if m.settings.SplitField == "" {
		return m.settings.BaseIndex
	}
	v, ok := entry[m.settings.SplitField]
	if !ok || v == nil {
		return m.settings.BaseIndex
	}
	suffix := SanitizeIndexName(core.FormatValue(v))
	if suffix == "" {
		return m.settings.BaseIndex
	}
	return m.settings.BaseIndex + "_" + suffix
}
