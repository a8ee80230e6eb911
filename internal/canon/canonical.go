// Package canon produces deterministic, key-sorted JSON and the
// content checksums derived from it.
//
// Marshal is the ONLY serialization used for checksums, manifests and
// verification reports. Two values that are equal up to object key order
// always produce identical bytes.
//
// Canonical form follows RFC 8785 (JCS):
//  1. Object keys sorted by UTF-16 code units, recursively
//  2. Array element order preserved
//  3. No insignificant whitespace
//  4. Strings escaped per JSON; < > & are NOT HTML-escaped
//  5. Numbers in shortest round-trip (ECMAScript) form
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Marshal returns the canonical JSON encoding of v.
//
// v may be any value encoding/json accepts (structs honour their json tags,
// json.RawMessage is embedded verbatim before canonicalization).
func Marshal(v any) ([]byte, error) {
	raw, err := encodePlain(v)
	if err != nil {
		return nil, fmt.Errorf("canon: encode: %w", err)
	}

	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canon: transform: %w", err)
	}
	return out, nil
}

// String is Marshal returning a string.
func String(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// encodePlain runs encoding/json with HTML escaping disabled.
// json.Encoder appends a newline which is trimmed here.
func encodePlain(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
