package config

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// JSONSchema describes the YAML configuration file as a JSON schema.
func JSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		FieldNameTag:               "yaml",
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{Type: "string", Format: "duration", Examples: []any{"500ms", "1m30s"}}
			}
			return nil
		},
	}
	schema := r.Reflect(&Config{})
	schema.Title = "annotit configuration"
	return json.MarshalIndent(schema, "", "  ")
}
