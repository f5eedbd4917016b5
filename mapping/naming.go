package mapping

import "slices"

// Naming is the field naming of a vendor variant.
type Naming struct {
	Vendor           string
	MetaPrefix       string // Prefix of persisted source fields
	AnnotationPrefix string // Prefix of annotation entry fields
	NestedField      string // List field holding entries in nested mode
}

// Every vendor writes the same field layout; Vendor only labels the variant.
var fieldLayout = Naming{
	MetaPrefix:       "meta.",
	AnnotationPrefix: "nlp.",
	NestedField:      "annotations",
}

var vendors = []string{"medcat", "gate-nlp"}

func namingFor(vendor string) (Naming, bool) {
	if !slices.Contains(vendors, vendor) {
		return Naming{}, false
	}
	n := fieldLayout
	n.Vendor = vendor
	return n, true
}
