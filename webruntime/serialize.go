package webruntime

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// Encode produces a structured-clone-style byte representation of a script
// value, for passing across the boundary between two independently owned
// goja runtimes (parent and Worker). It round-trips through Export/ToValue,
// the same boundary every other host binding in this package already
// crosses, rather than introducing a second value representation.
//
// Functions and other values that encoding/json cannot marshal make Encode
// return that error. Worker postMessage encodes through Encode, so such
// values cannot be posted across a Worker boundary.
func Encode(v goja.Value) ([]byte, error) {
	exported := v.Export()
	data, err := json.Marshal(exported)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Decode parses data (produced by Encode) back into a goja.Value owned by
// rt.
func Decode(rt *goja.Runtime, data []byte) (goja.Value, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return rt.ToValue(v), nil
}
