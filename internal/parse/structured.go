// Package parse converts untrusted completion text into typed records. It is
// the only place raw completion text is interpreted.
package parse

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tenk-cli/internal/model"
)

// ErrorKind classifies a parse failure.
type ErrorKind string

// MalformedOutput marks completion text that could not be interpreted.
const MalformedOutput ErrorKind = "malformed_output"

// ParseError reports completion text that failed to parse. Raw holds the
// offending text so callers can log it.
type ParseError struct {
	Kind ErrorKind
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse: %s: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Structured performs exactly one strict JSON parse of text. On success the
// object is returned unchanged, without schema checks. On any failure it
// returns an empty, non-nil record and a *ParseError.
func Structured(text string) (model.ExtractionRecord, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return model.ExtractionRecord{}, &ParseError{Kind: MalformedOutput, Raw: text, Err: err}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return model.ExtractionRecord{}, &ParseError{
			Kind: MalformedOutput,
			Raw:  text,
			Err:  eris.Errorf("parse: expected JSON object, got %T", v),
		}
	}
	return model.ExtractionRecord(obj), nil
}
