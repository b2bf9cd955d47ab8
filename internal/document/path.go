package document

import "strings"

// Get resolves a dot-separated path (e.g. "general.transactionRoles.priceMaker")
// inside doc. The second return is false when any key along the path is
// absent or an intermediate value is not a mapping. Array elements are opaque
// to path lookup: a path that descends into a sequence resolves to absent.
func Get(doc Document, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	var current interface{} = doc
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(Document)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Set writes value at the dot-separated path inside doc, creating
// intermediate mappings as needed. An intermediate key that holds a
// non-mapping value is replaced by a new mapping; the previous value at
// that key is discarded.
func Set(doc Document, path string, value interface{}) {
	if path == "" {
		return
	}

	keys := strings.Split(path, ".")
	current := doc
	for _, key := range keys[:len(keys)-1] {
		next, ok := current[key].(Document)
		if !ok {
			next = Document{}
			current[key] = next
		}
		current = next
	}
	current[keys[len(keys)-1]] = value
}
