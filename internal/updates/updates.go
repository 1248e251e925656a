// Package updates loads the list of Windows updates to process.
//
// The input document maps Windows versions to their cumulative updates:
//
//	{
//	  "2004": [{"updateKb": "KB5003173", "updateUrl": "https://support.microsoft.com/..."}],
//	  "20H2": [...]
//	}
//
// Versions are processed in document order, so decoding preserves key order.
package updates

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"winmanifests/internal/schema"
)

//go:embed schema/updates.schema.json
var listSchema []byte

// Update is one cumulative update of a Windows version.
type Update struct {
	KB  string `json:"updateKb"`
	URL string `json:"updateUrl"`
}

// Version groups the updates published for a Windows version.
type Version struct {
	Name    string
	Updates []Update
}

// List is the ordered input list.
type List []Version

// Len returns the total number of updates across all versions.
func (l List) Len() int {
	n := 0
	for _, v := range l {
		n += len(v.Updates)
	}
	return n
}

// Load reads and parses the list at path.
func Load(path string) (List, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read update list: %w", err)
	}
	l, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Parse validates b against the list schema and decodes it in document order.
func Parse(b []byte) (List, error) {
	if err := schema.Validate("updates", listSchema, b); err != nil {
		return nil, fmt.Errorf("invalid update list: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var (
		out  List
		seen = map[string]bool{}
	)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode update list: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("decode update list: unexpected token %v", tok)
		}
		if seen[name] {
			return nil, fmt.Errorf("decode update list: duplicate version %q", name)
		}
		seen[name] = true

		var ups []Update
		if err := dec.Decode(&ups); err != nil {
			return nil, fmt.Errorf("decode updates of %s: %w", name, err)
		}
		out = append(out, Version{Name: name, Updates: ups})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("decode update list: trailing data after document")
	}
	return out, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode update list: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("decode update list: expected %q, got %v", want, tok)
	}
	return nil
}
