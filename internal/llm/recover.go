package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/docparse/constants"
)

const (
	// RawPreviewLimit caps the raw model text carried in a fallback record.
	RawPreviewLimit = 1000

	// MetadataKey is the record key the pipeline attaches request metadata under.
	MetadataKey = "_metadata"

	fallbackMessage = "Failed to parse LLM response"
)

// Recovery is the outcome of turning raw model text into a record. A
// fallback is a normal result, not an error: Record then holds the
// diagnostic fields error, raw and parse_error.
type Recovery struct {
	Outcome    constants.Outcome
	Record     map[string]any
	ParseError string
}

// Parsed reports whether the model text yielded a JSON object.
func (r Recovery) Parsed() bool { return r.Outcome == constants.OutcomeParsed }

// Recover extracts a JSON object from raw model text. It never fails.
func Recover(raw string) Recovery {
	record, err := decodeObject(CleanJSON(raw))
	if err != nil {
		return Recovery{
			Outcome: constants.OutcomeFallback,
			Record: map[string]any{
				"error":       fallbackMessage,
				"raw":         truncateRunes(raw, RawPreviewLimit),
				"parse_error": err.Error(),
			},
			ParseError: err.Error(),
		}
	}
	return Recovery{Outcome: constants.OutcomeParsed, Record: record}
}

// CleanJSON strips markdown fences and any prose around the outermost braces.
// When no brace pair exists the trimmed text is returned unchanged.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = text[len("```json"):]
	case strings.HasPrefix(text, "```"):
		text = text[len("```"):]
	}
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start != -1 && end != -1 && start < end {
		text = text[start : end+1]
	}
	return text
}

// decodeObject parses s as exactly one JSON object. Numbers are kept as
// json.Number so large ids and amounts survive unchanged.
func decodeObject(s string) (map[string]any, error) {
	if s == "" {
		return nil, errors.New("empty response")
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level JSON value")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("top-level JSON value is %s, not an object", jsonKind(v))
	}
	return obj, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// MarshalRecord renders a record as compact JSON without HTML escaping.
func MarshalRecord(record map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
