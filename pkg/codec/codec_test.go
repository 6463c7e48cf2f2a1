package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlassian/gokairos"
)

var now = time.Unix(1600000000, 0)

func newTestDecoder() *Decoder {
	return &Decoder{Now: func() time.Time { return now }}
}

func TestDecodeKeepsFieldOrder(t *testing.T) {
	t.Parallel()
	e, err := newTestDecoder().Decode([]byte(`{"zeta":1,"alpha":"two","mid":{"b":1,"a":2}}`))
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "alpha", "mid", gokairos.FieldTimestamp, gokairos.FieldVersion}, e.Keys())

	v, _ := e.Get("zeta")
	assert.Equal(t, json.Number("1"), v)
	v, _ = e.Get("mid")
	assert.Equal(t, map[string]interface{}{"a": json.Number("2"), "b": json.Number("1")}, v)
}

func TestDecodeTimestamp(t *testing.T) {
	t.Parallel()
	d := newTestDecoder()

	e, err := d.Decode([]byte(`{"@timestamp":"2020-09-13T12:26:40.123Z","@version":"2"}`))
	require.NoError(t, err)
	ts, _ := e.Get(gokairos.FieldTimestamp)
	assert.Equal(t, time.Date(2020, 9, 13, 12, 26, 40, 123000000, time.UTC), ts)
	version, _ := e.Get(gokairos.FieldVersion)
	assert.Equal(t, "2", version)

	e, err = d.Decode([]byte(`{"foo":"bar"}`))
	require.NoError(t, err)
	ts, _ = e.Get(gokairos.FieldTimestamp)
	assert.Equal(t, now.UTC(), ts)
	assert.EqualValues(t, 1600000000, gokairos.CoerceTimestamp(ts))

	e, err = d.Decode([]byte(`{"@timestamp":1500000000}`))
	require.NoError(t, err)
	ts, _ = e.Get(gokairos.FieldTimestamp)
	assert.Equal(t, json.Number("1500000000"), ts)

	e, err = d.Decode([]byte(`{"@timestamp":"yesterday"}`))
	require.NoError(t, err)
	ts, _ = e.Get(gokairos.FieldTimestamp)
	assert.Equal(t, "yesterday", ts)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	d := newTestDecoder()
	for _, input := range []string{``, `[]`, `"string"`, `42`, `{"a":`, `{"a":1} x`, `{"a":1}{"b":2}`} {
		input := input
		t.Run(input, func(t *testing.T) {
			_, err := d.Decode([]byte(input))
			require.Error(t, err)
		})
	}
}

func TestDecodeTrailingWhitespace(t *testing.T) {
	t.Parallel()
	_, err := newTestDecoder().Decode([]byte("{\"a\":1}  \n"))
	require.NoError(t, err)
}

func TestDecodeBatch(t *testing.T) {
	t.Parallel()
	d := newTestDecoder()

	events, err := d.DecodeBatch([]byte(`{"a":1}`))
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = d.DecodeBatch([]byte(`[{"a":1},{"b":2},{"c":[1,2]}]`))
	require.NoError(t, err)
	require.Len(t, events, 3)
	v, _ := events[2].Get("c")
	assert.Equal(t, []interface{}{json.Number("1"), json.Number("2")}, v)

	events, err = d.DecodeBatch([]byte(`[]`))
	require.NoError(t, err)
	require.Empty(t, events)

	_, err = d.DecodeBatch([]byte(`[{"a":1},2]`))
	require.Equal(t, ErrNotAnObject, err)

	_, err = d.DecodeBatch([]byte(`true`))
	require.Error(t, err)
}
