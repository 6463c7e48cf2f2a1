package gokairos

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventKeepsInsertionOrder(t *testing.T) {
	t.Parallel()
	e := NewEvent()
	e.Set("zeta", 1)
	e.Set("alpha", 2)
	e.Set("mid", 3)
	e.Set("zeta", 4)

	require.Equal(t, []string{"zeta", "alpha", "mid"}, e.Keys())
	require.Equal(t, 3, e.Len())
	v, ok := e.Get("zeta")
	require.True(t, ok)
	require.Equal(t, 4, v)

	var seen []string
	e.Each(func(name string, value interface{}) {
		seen = append(seen, name)
	})
	require.Equal(t, e.Keys(), seen)
}

func TestEventFromMapIsSorted(t *testing.T) {
	t.Parallel()
	e := NewEventFromMap(map[string]interface{}{"b": 1, "a": 2, "c": 3})
	require.Equal(t, []string{"a", "b", "c"}, e.Keys())
}

func TestEventGetFieldReference(t *testing.T) {
	t.Parallel()
	e := NewEventFromMap(map[string]interface{}{
		"custom.foo": map[string]interface{}{"a": 3},
		"nested": map[string]interface{}{
			"inner": map[string]interface{}{"leaf": "x"},
		},
		"scalar": 5,
	})

	tests := []struct {
		ref   string
		value interface{}
		ok    bool
	}{
		{"custom.foo", map[string]interface{}{"a": 3}, true},
		{"[nested][inner][leaf]", "x", true},
		{"[nested][missing]", nil, false},
		{"[scalar][deeper]", nil, false},
		{"[]", nil, false},
		{"missing", nil, false},
	}
	for _, test := range tests {
		test := test
		t.Run(test.ref, func(t *testing.T) {
			v, ok := e.Get(test.ref)
			assert.Equal(t, test.ok, ok)
			assert.Equal(t, test.value, v)
		})
	}
}

func TestEventSprintf(t *testing.T) {
	t.Parallel()
	ts := time.Date(2020, 1, 2, 3, 4, 5, 6000000, time.UTC)
	e := NewEvent()
	e.Set("foo", "fancy")
	e.Set("bar", 42)
	e.Set("ratio", 1.5)
	e.Set("whole", 2.0)
	e.Set("num", json.Number("17"))
	e.Set("list", []interface{}{1, "b", 2.5})
	e.Set("map", map[string]interface{}{"b": 1, "a": "x"})
	e.Set("when", ts)
	e.Set("nothing", nil)
	e.Set("deep", map[string]interface{}{"er": "value"})

	tests := []struct {
		template string
		expected string
	}{
		{"plain", "plain"},
		{"hurray.%{foo}", "hurray.fancy"},
		{"%{bar}", "42"},
		{"%{ratio}/%{whole}", "1.5/2.0"},
		{"%{num}", "17"},
		{"%{list}", "1,b,2.5"},
		{"%{map}", `{"a":"x","b":1}`},
		{"%{when}", "2020-01-02T03:04:05.006Z"},
		{"%{missing}.%{foo}", "%{missing}.fancy"},
		{"%{nothing}", "%{nothing}"},
		{"%{[deep][er]}", "value"},
		{"unterminated %{foo", "unterminated %{foo"},
		{"%{foo}%{foo}", "fancyfancy"},
	}
	for _, test := range tests {
		test := test
		t.Run(test.template, func(t *testing.T) {
			assert.Equal(t, test.expected, e.Sprintf(test.template))
		})
	}
}

func TestAsMappingAndIsSequence(t *testing.T) {
	t.Parallel()
	m, ok := AsMapping(map[string]int{"a": 1})
	require.True(t, ok)
	require.Equal(t, map[string]interface{}{"a": 1}, m)

	_, ok = AsMapping(map[int]int{1: 1})
	require.False(t, ok)
	_, ok = AsMapping(nil)
	require.False(t, ok)

	require.True(t, IsSequence([]interface{}{1}))
	require.True(t, IsSequence([]string{"a"}))
	require.True(t, IsSequence([2]int{1, 2}))
	require.False(t, IsSequence([]byte("abc")))
	require.False(t, IsSequence("abc"))
	require.False(t, IsSequence(nil))
}
