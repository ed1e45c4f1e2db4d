package vegalite

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// structuralSchema is the subset of the Vega-Lite schema the service relies on:
// a known mark, an encoding object whose channel definitions use known
// measurement types, optional inline data and layers.
const structuralSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "definitions": {
    "markType": {
      "type": "string",
      "enum": ["arc","area","bar","boxplot","circle","errorband","errorbar","geoshape","image","line","point","rect","rule","square","text","tick","trail"]
    },
    "mark": {
      "oneOf": [
        {"$ref": "#/definitions/markType"},
        {"type": "object", "required": ["type"], "properties": {"type": {"$ref": "#/definitions/markType"}}}
      ]
    },
    "channel": {
      "type": ["object", "array", "null"],
      "properties": {
        "field": {"type": ["string", "object"]},
        "type": {"enum": ["quantitative", "nominal", "ordinal", "temporal", "geojson"]}
      }
    },
    "encoding": {
      "type": "object",
      "additionalProperties": {"$ref": "#/definitions/channel"}
    },
    "data": {
      "type": "object",
      "properties": {
        "values": {"type": ["array", "object", "string"]},
        "url": {"type": "string"},
        "name": {"type": "string"}
      }
    },
    "unit": {
      "type": "object",
      "required": ["mark"],
      "properties": {
        "mark": {"$ref": "#/definitions/mark"},
        "encoding": {"$ref": "#/definitions/encoding"},
        "data": {"$ref": "#/definitions/data"}
      }
    }
  },
  "properties": {
    "$schema": {"type": "string"},
    "title": {"type": ["string", "object", "array"]},
    "description": {"type": "string"},
    "data": {"$ref": "#/definitions/data"},
    "mark": {"$ref": "#/definitions/mark"},
    "encoding": {"$ref": "#/definitions/encoding"},
    "layer": {"type": "array", "minItems": 1, "items": {"$ref": "#/definitions/unit"}}
  },
  "anyOf": [
    {"required": ["mark", "encoding"]},
    {"required": ["layer"]}
  ]
}`

var compiledSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(structuralSchema))
})

// ValidationError lists every structural problem found in a Spec.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid chart specification: " + strings.Join(e.Problems, "; ")
}

// Validate checks the Spec against the structural schema.
func (s Spec) Validate() error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile chart schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewGoLoader(map[string]any(s)))
	if err != nil {
		return fmt.Errorf("validate chart: %w", err)
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return &ValidationError{Problems: problems}
}
