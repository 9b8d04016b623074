package export

import (
	"bytes"
	"encoding/json"
	"io"
)

// Marshal renders p as indented JSON with sorted keys and a trailing
// newline. The output is a pure function of p.
func Marshal(p *Payload) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes the same bytes as Marshal to w.
func Encode(w io.Writer, p *Payload) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(p)
}
