package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Decode strictly decodes a single JSON record into v. Unknown fields and
// trailing data are rejected.
func Decode(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("decoding record: trailing data after object")
	}
	return nil
}

// New returns a pointer to a zero value of the Go type backing kind k.
func New(k Kind) (any, error) {
	switch k {
	case KindPattern:
		return &Pattern{}, nil
	case KindSource:
		return &Source{}, nil
	case KindBacklog:
		return &BacklogItem{}, nil
	case KindEvent:
		return &Event{}, nil
	case KindManifest:
		return &Manifest{}, nil
	case KindIndex:
		return &Index{}, nil
	case KindCache:
		return &CacheEntry{}, nil
	default:
		return nil, fmt.Errorf("unknown record kind %q", k)
	}
}
