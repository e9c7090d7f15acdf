package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONEncode encodes a value to JSON bytes (fail-fast).
//
// Go 1.24+: Sonic's JIT loader is not compatible with the Go runtime ABI changes,
// so the standard library is used.
func JSONEncode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json encode failed: %w", err)
	}
	return data, nil
}

// JSONDecode decodes JSON bytes to a value (fail-fast).
// Trailing data after the first value is rejected.
func JSONDecode(data []byte, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Error{Code: CodeInvalidInput, Message: "cannot decode empty data"}
	}
	if v == nil {
		return &Error{Code: CodeInvalidInput, Message: "cannot decode into nil value"}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("json decode failed: %w", err)
	}
	if dec.More() {
		return &Error{Code: CodeInvalidInput, Message: "json decode failed: trailing data"}
	}
	return nil
}
