package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/davidahmann/partnergate/pkg/types"
)

var ErrInvalidEnvelope = errors.New("invalid submission envelope")

const envelopeSchemaURL = "https://partnergate.schemas.local/submission-data.schema.json"

const envelopeSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["records"],
  "additionalProperties": false,
  "properties": {
    "records": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": {
          "type": ["string", "number", "boolean", "null", "object"]
        }
      }
    },
    "metadata": {
      "type": ["object", "null"],
      "additionalProperties": false,
      "properties": {
        "source_statement": {"type": "string"},
        "method_description": {"type": "string"},
        "coverage_window": {"type": "string"},
        "license": {"type": "string"},
        "contact_info": {"type": "string"}
      }
    }
  }
}`

var compiledEnvelope = mustCompileEnvelope()

func mustCompileEnvelope() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(envelopeSchemaURL, strings.NewReader(envelopeSchema)); err != nil {
		panic(fmt.Sprintf("envelope schema load failed: %v", err))
	}
	compiled, err := c.Compile(envelopeSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("envelope schema compile failed: %v", err))
	}
	return compiled
}

// DecodeSubmissionData checks raw against the envelope schema and decodes it.
// Contract-level checks happen later in Layer 1; this only guarantees shape.
func DecodeSubmissionData(raw []byte) (types.SubmissionData, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return types.SubmissionData{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := compiledEnvelope.Validate(generic); err != nil {
		return types.SubmissionData{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	var data types.SubmissionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return types.SubmissionData{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if data.Records == nil {
		data.Records = []types.Record{}
	}
	return data, nil
}
