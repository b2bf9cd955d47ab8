package document

// Merge applies a partial update onto base and returns a new document.
// Neither input is mutated.
//
// Per key in patch:
//   - explicit null where base holds a mapping: the whole subtree is removed
//   - explicit null where base holds a scalar, a sequence, or nothing: the
//     key is kept with a null value
//   - mapping onto mapping: merged recursively
//   - anything else (scalar or sequence): replaces the base value wholesale;
//     sequences are never element-merged
//
// Keys present only in base are preserved unchanged.
func Merge(base, patch Document) Document {
	result := CloneDocument(base)

	for key, value := range patch {
		if value == nil {
			existing, ok := result[key]
			if _, isMap := existing.(Document); ok && isMap {
				// Null deletes composite values.
				delete(result, key)
			} else {
				// Null is a value for leaves and absent keys.
				result[key] = nil
			}
			continue
		}

		if patchMap, ok := value.(Document); ok {
			if baseMap, ok := result[key].(Document); ok {
				result[key] = Merge(baseMap, patchMap)
				continue
			}
		}

		result[key] = Clone(value)
	}

	return result
}
