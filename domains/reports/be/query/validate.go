package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// specSchema is the wire contract for user-authored report specs. It is
// enforced before decoding so malformed payloads are rejected with the
// schema's own error messages instead of partial zero-value structs.
const specSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["dataSources", "selectedColumns"],
  "additionalProperties": false,
  "properties": {
    "dataSources": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "pattern": "^[A-Za-z0-9_]+$"}
    },
    "joins": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "table", "on"],
        "additionalProperties": false,
        "properties": {
          "type": {"enum": ["inner", "left", "right", "full"]},
          "table": {"type": "string", "pattern": "^[A-Za-z0-9_]+$"},
          "on": {"type": "string", "minLength": 1}
        }
      }
    },
    "selectedColumns": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["table", "column"],
        "additionalProperties": false,
        "properties": {
          "table": {"type": "string", "pattern": "^[A-Za-z0-9_]+$"},
          "column": {"type": "string", "pattern": "^[A-Za-z0-9_]+$"},
          "alias": {"type": "string", "pattern": "^[A-Za-z0-9_]+$"},
          "aggregate": {"enum": ["sum", "avg", "count", "min", "max"]}
        }
      }
    },
    "filters": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["column", "operator"],
        "additionalProperties": false,
        "properties": {
          "column": {"type": "string", "pattern": "^[A-Za-z0-9_]+$"},
          "operator": {"type": "string", "minLength": 1},
          "value": {}
        }
      }
    },
    "groupBy": {
      "type": "array",
      "items": {"type": "string", "pattern": "^[A-Za-z0-9_]+$"}
    },
    "orderBy": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["column"],
        "additionalProperties": false,
        "properties": {
          "column": {"type": "string", "pattern": "^[A-Za-z0-9_]+$"},
          "direction": {"enum": ["asc", "desc", "ASC", "DESC", ""]}
        }
      }
    }
  }
}`

var (
	compiledSpecSchema     *jsonschema.Schema
	compileSpecSchemaOnce  sync.Once
	compileSpecSchemaError error
)

func specSchemaCompiled() (*jsonschema.Schema, error) {
	compileSpecSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		const key = "memory://schemas/report-spec"
		if err := compiler.AddResource(key, bytes.NewReader([]byte(specSchema))); err != nil {
			compileSpecSchemaError = fmt.Errorf("register report spec schema: %w", err)
			return
		}
		compiledSpecSchema, compileSpecSchemaError = compiler.Compile(key)
	})
	return compiledSpecSchema, compileSpecSchemaError
}

// ValidateSpecJSON checks a raw payload against the report spec contract.
func ValidateSpecJSON(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("report spec payload is required")
	}

	compiled, err := specSchemaCompiled()
	if err != nil {
		return err
	}

	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return fmt.Errorf("decode report spec: %w", err)
	}
	if err := compiled.Validate(document); err != nil {
		return fmt.Errorf("report spec validation: %w", err)
	}
	return nil
}

// DecodeSpec validates and unmarshals a raw report spec payload.
func DecodeSpec(payload []byte) (Spec, error) {
	if err := ValidateSpecJSON(payload); err != nil {
		return Spec{}, err
	}
	var spec Spec
	if err := json.Unmarshal(payload, &spec); err != nil {
		return Spec{}, fmt.Errorf("decode report spec: %w", err)
	}
	return spec, nil
}
