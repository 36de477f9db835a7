// Package schema validates the canonical record form before it is hashed.
// A validation failure here means extraction's total-function contract was
// broken upstream: it is a programming error, fatal to the session, not a
// recoverable commit failure.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const canonicalRecordSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": [
    "acreage", "audio_ipfs_cid", "chemicals_used", "crop_type",
    "current_stage", "expected_yield", "farmer_id", "language",
    "observed_issues", "price_expectation", "timestamp"
  ],
  "properties": {
    "acreage": {"type": ["number", "null"]},
    "audio_ipfs_cid": {"type": "string"},
    "chemicals_used": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["dosage", "name"],
        "properties": {
          "dosage": {"type": "string"},
          "name": {"type": "string"}
        }
      }
    },
    "crop_type": {"type": "string"},
    "current_stage": {"type": "string"},
    "expected_yield": {"type": "string"},
    "farmer_id": {"type": "string"},
    "language": {"type": "string"},
    "observed_issues": {"type": "array", "items": {"type": "string"}},
    "price_expectation": {"type": "string"},
    "timestamp": {"type": "string", "format": "date-time"}
  }
}`

// Validator checks canonical bytes against the fixed record schema.
type Validator struct {
	compiled *jsonschema.Schema
}

// NewValidator compiles the built-in canonical record schema. Compilation
// of the embedded schema cannot fail at runtime; an error here means the
// schema text itself was broken at build time.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	// Format keywords are annotation-only under 2020-12 unless asserted;
	// the timestamp's date-time check must actually run.
	c.AssertFormat = true
	const url = "https://fieldproof.schemas.local/canonical_record.schema.json"
	if err := c.AddResource(url, strings.NewReader(canonicalRecordSchema)); err != nil {
		return nil, fmt.Errorf("schema load failed: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema compile failed: %w", err)
	}
	return &Validator{compiled: compiled}, nil
}

// ValidateCanonical checks that canonical bytes have exactly the expected
// shape: the eleven fixed keys, nothing extra, chemicals reduced to
// {dosage, name}.
func (v *Validator) ValidateCanonical(canonical []byte) error {
	dec := json.NewDecoder(bytes.NewReader(canonical))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("canonical form is not valid JSON: %w", err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return fmt.Errorf("canonical form rejected: %w", err)
	}
	return nil
}
