package mapping

import (
	"maps"

	"github.com/poiesic/annotit/core"
)

type nestedMapper struct {
	base
}

var _ Mapper = (*nestedMapper)(nil)

func (m *nestedMapper) Mode() Mode { return ModeNested }

func (m *nestedMapper) ProcessedIndex() string {
	if m.settings.SameIndex {
		return m.settings.SourceIndex
	}
	return m.settings.BaseIndex
}

// Map returns a single merge record carrying every entry. In same-index
// mode the record targets the source document itself and carries only the
// annotations list.
func (m *nestedMapper) Map(result *core.AnnotationResult, doc *core.SourceDocument) ([]*core.SinkRecord, error) {
	list := make([]any, len(result.Entries))
	for i, entry := range result.Entries {
		list[i] = maps.Clone(map[string]any(entry))
	}

	record := &core.SinkRecord{
		Op:        core.OpMerge,
		ListField: m.naming.NestedField,
	}
	if m.settings.SameIndex {
		record.IndexTarget = m.settings.SourceIndex
		record.ID = doc.Key
		if record.ID == "" {
			record.ID = doc.ID
		}
		record.Body = map[string]any{m.naming.NestedField: list}
	} else {
		// Without same-index the record lands in the sink index, keyed by the source id.
		record.IndexTarget = m.settings.BaseIndex
		record.ID = "doc_" + doc.ID + "_annotations"
		record.Body = m.commonFields(doc, 1)
		record.Body[m.naming.NestedField] = list
	}
	return []*core.SinkRecord{record}, nil
}
