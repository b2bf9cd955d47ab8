// Package document defines the nested trade document representation and the
// structural operations shared by the store, the filter engine, and the
// validation pipeline: dotted-path access, deep copy, and deep merge.
package document

// Document is a tree-shaped mapping of string keys to scalars, sequences,
// or nested mappings. It is the decoded form of a trade's JSON body.
// Documents are never shared across package boundaries without copying;
// use Clone before handing one out or storing one in.
type Document = map[string]interface{}

// Clone returns a deep copy of v. Maps and slices are copied recursively;
// scalars are returned as-is. A nil input yields nil.
func Clone(v interface{}) interface{} {
	switch val := v.(type) {
	case Document:
		out := make(Document, len(val))
		for k, elem := range val {
			out[k] = Clone(elem)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	default:
		return v
	}
}

// CloneDocument is Clone specialized to a top-level document. A nil document
// clones to an empty one so callers can mutate the result safely.
func CloneDocument(doc Document) Document {
	if doc == nil {
		return Document{}
	}
	return Clone(doc).(Document)
}
