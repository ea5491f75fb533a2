// Package canonical produces the deterministic JSON form used for every file
// in the store: object keys sorted lexicographically, two-space indentation,
// no HTML escaping and a single trailing newline. Two logically identical
// records always serialize to identical bytes.
package canonical

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const indent = "  "

// Marshal encodes v canonically.
//
// v is first encoded with encoding/json so struct tags apply, then decoded
// into generic maps (numbers kept verbatim) and re-encoded, which sorts every
// object's keys regardless of struct field order.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	return Format(raw)
}

// Format rewrites arbitrary JSON bytes into canonical form.
func Format(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("normalizing value: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encoding canonical value: %w", err)
	}

	// Encode terminates with exactly one newline.
	return buf.Bytes(), nil
}

// Equal reports whether a and b are the same JSON document once canonicalized.
func Equal(a, b []byte) bool {
	ca, err := Format(a)
	if err != nil {
		return false
	}
	cb, err := Format(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}
