package extract

import (
	"github.com/atlassian/gokairos"
)

type flattenFrame struct {
	node   map[string]interface{}
	prefix string
}

// Flatten walks a nested mapping and returns its leaves keyed by the separator-joined
// path below prefix.  Sequences have no metric representation: they are left out and
// passed to skipped, which may be nil.
func Flatten(node map[string]interface{}, prefix, separator string, skipped func(key string, value interface{})) map[string]interface{} {
	result := make(map[string]interface{}, len(node))
	stack := []flattenFrame{{node: node, prefix: prefix}}
	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		keys := gokairos.SortedKeys(frame.node)
		// Children are pushed in reverse so they are popped in key order.
		var children []flattenFrame
		for _, key := range keys {
			childKey := key
			if frame.prefix != "" {
				childKey = frame.prefix + separator + key
			}
			value := frame.node[key]
			if m, ok := gokairos.AsMapping(value); ok {
				children = append(children, flattenFrame{node: m, prefix: childKey})
				continue
			}
			if gokairos.IsSequence(value) {
				if skipped != nil {
					skipped(childKey, value)
				}
				continue
			}
			result[childKey] = value
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return result
}
