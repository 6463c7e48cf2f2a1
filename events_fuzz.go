//go:build gofuzz
// +build gofuzz

package gokairos

import (
	"fmt"
	"strings"
)

var fuzzEvent = func() *Event {
	e := NewEvent()
	e.Set("foo", "fancy")
	e.Set("bar", 42)
	e.Set("nested", map[string]interface{}{"a": map[string]interface{}{"b": 1.5}})
	e.Set("list", []interface{}{1, 2})
	return e
}()

// Fuzz checks that template interpolation never panics and that a template without any
// token is returned unchanged.
func Fuzz(data []byte) int {
	template := string(data)
	out := fuzzEvent.Sprintf(template)
	if !strings.Contains(template, "%{") {
		if out != template {
			panic(fmt.Errorf("template without tokens changed: %q -> %q", template, out))
		}
		return 0
	}
	return 1
}
