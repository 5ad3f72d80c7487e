package mapping

import "strings"

// Lookup walks a decoded JSON document along a dotted path ("clocks.performance.base").
// It returns nil when a key is missing or an intermediate value is not an object.
func Lookup(doc map[string]any, path string) any {
	var current any = doc
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = obj[key]
	}
	return current
}
