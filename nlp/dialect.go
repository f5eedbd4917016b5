package nlp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DialectKind tags the supported wire dialects.
type DialectKind int

const (
	// DialectDefault posts a JSON envelope and reads MedCAT-style results.
	DialectDefault DialectKind = iota
	// DialectGate posts raw text and reads GATE entity maps.
	DialectGate
)

// String returns the endpoint request mode naming the dialect.
func (k DialectKind) String() string {
	switch k {
	case DialectGate:
		return "gate-nlp"
	default:
		return "medcat"
	}
}

// Dialect describes how requests are encoded and where entries are found in
// responses.
type Dialect struct {
	Kind DialectKind

	// ContentType of the request body.
	ContentType string

	// OuterKey is the dot path of the result object in the response body;
	// empty means the whole body.
	OuterKey string

	// ResultKey is the dot path of the entries inside the result object.
	ResultKey string
}

// DialectFor returns the dialect for an endpoint request mode.
func DialectFor(mode string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "medcat", "default":
		return Dialect{
			Kind:        DialectDefault,
			ContentType: "application/json",
			OuterKey:    "result",
			ResultKey:   "annotations.entities",
		}, nil
	case "gate-nlp", "gate":
		return Dialect{
			Kind:        DialectGate,
			ContentType: "text/plain; charset=utf-8",
			OuterKey:    "",
			ResultKey:   "entities",
		}, nil
	default:
		return Dialect{}, fmt.Errorf("%w: %q", ErrUnknownDialect, mode)
	}
}

// WithKeys returns a copy of d with the non-empty keys replaced.
func (d Dialect) WithKeys(outer, result string) Dialect {
	if outer != "" {
		d.OuterKey = outer
	}
	if result != "" {
		d.ResultKey = result
	}
	return d
}

type requestContent struct {
	Text string `json:"text"`
}

type defaultRequest struct {
	Content           requestContent `json:"content"`
	ApplicationParams map[string]any `json:"application_params"`
	Footer            map[string]any `json:"footer"`
}

// Encode returns the request body for text.
func (d Dialect) Encode(text string) ([]byte, error) {
	if d.Kind == DialectGate {
		return []byte(text), nil
	}
	return json.Marshal(defaultRequest{
		Content:           requestContent{Text: text},
		ApplicationParams: map[string]any{},
		Footer:            map[string]any{},
	})
}
