package webruntime_test

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/joeycumines/dtel-go/webruntime"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripsPlainValues(t *testing.T) {
	rt := goja.New()

	v, err := rt.RunString(`({name: "widget", count: 3, tags: ["a", "b"], active: true})`)
	require.NoError(t, err)

	data, err := webruntime.Encode(v)
	require.NoError(t, err)

	decoded, err := webruntime.Decode(rt, data)
	require.NoError(t, err)

	exported := decoded.Export().(map[string]interface{})
	require.Equal(t, "widget", exported["name"])
	require.Equal(t, float64(3), exported["count"])
	require.Equal(t, true, exported["active"])
	require.Equal(t, []interface{}{"a", "b"}, exported["tags"])
}

func TestEncodeDecodeAcrossTwoRuntimes(t *testing.T) {
	parentRt := goja.New()
	childRt := goja.New()

	v, err := parentRt.RunString(`({kind: "greeting", payload: "hello"})`)
	require.NoError(t, err)

	data, err := webruntime.Encode(v)
	require.NoError(t, err)

	decoded, err := webruntime.Decode(childRt, data)
	require.NoError(t, err)

	require.NoError(t, childRt.Set("received", decoded))
	result, err := childRt.RunString(`received.kind + ":" + received.payload`)
	require.NoError(t, err)
	require.Equal(t, "greeting:hello", result.Export())
}

func TestDecodeRejectsMalformedData(t *testing.T) {
	rt := goja.New()
	_, err := webruntime.Decode(rt, []byte(`{not valid json`))
	require.Error(t, err)
}
