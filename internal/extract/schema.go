package extract

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema constrains what the extraction service may return before
// anything is persisted. Kept deliberately loose on optional fields; the
// service is opaque and its row numbering is validated separately where
// chunk offsets matter.
const responseSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "row":         {"type": "integer", "minimum": 0},
          "code":        {"type": "string"},
          "description": {"type": "string", "minLength": 1},
          "unit":        {"type": "string"},
          "quantity":    {"type": "number"},
          "rate":        {"type": ["number", "null"]}
        }
      }
    }
  }
}`

var compiledResponseSchema = jsonschema.MustCompileString("extractor-response.json", responseSchema)

type responseEnvelope struct {
	Items []Item `json:"items"`
}

// DecodeResponse validates a raw service response against the schema and
// decodes its items.
func DecodeResponse(raw []byte) ([]Item, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode extractor response: %w", err)
	}
	if err := compiledResponseSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("extractor response rejected by schema: %w", err)
	}
	var env responseEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode extractor items: %w", err)
	}
	return env.Items, nil
}
