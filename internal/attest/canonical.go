package attest

import (
	"bytes"
	"encoding/json"
)

// CanonicalJSON re-encodes a JSON document into a deterministic byte form:
// object keys sorted, no insignificant whitespace, numbers preserved
// verbatim via json.Number. Client and server hash the same request body to
// the same digest regardless of how either side serialized it.
func CanonicalJSON(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	// encoding/json sorts map keys on marshal, which is the whole trick.
	return json.Marshal(doc)
}
