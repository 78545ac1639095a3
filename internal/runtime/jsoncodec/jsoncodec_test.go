package jsoncodec

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameDoc struct {
	Index  int      `json:"index"`
	Charge float64  `json:"proton_charge"`
	IDs    []uint32 `json:"detector_ids"`
}

func TestMarshalRoundTrip(t *testing.T) {
	in := frameDoc{Index: 3, Charge: 1.5, IDs: []uint32{1, 2}}
	data, err := Marshal(in)
	require.NoError(t, err)

	var out frameDoc
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)

	indented, err := MarshalIndent(in, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(indented), "\n  \"index\"")
}

func TestUnmarshalStrict(t *testing.T) {
	doc := []byte(`{"index":1,"proton_charge":2,"detector_ids":[],"unexpected":true}`)

	var lenient frameDoc
	require.NoError(t, Unmarshal(doc, &lenient))

	var strictDoc frameDoc
	assert.Error(t, UnmarshalStrict(doc, &strictDoc))
}

func TestEncodeProducesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, frameDoc{Index: 1}))
	require.NoError(t, Encode(&buf, frameDoc{Index: 2}))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	dec := NewDecoder(&buf)
	var got []int
	for dec.More() {
		var doc frameDoc
		require.NoError(t, dec.Decode(&doc))
		got = append(got, doc.Index)
	}
	assert.Equal(t, []int{1, 2}, got)
}

func TestDecodeInvalid(t *testing.T) {
	var out frameDoc
	assert.Error(t, Decode(strings.NewReader("{"), &out))
}
