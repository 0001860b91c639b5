package vectorstore

import "fmt"

// MetadataValueCap is the maximum byte length of any single metadata value,
// matching the store's payload constraints.
const MetadataValueCap = 1000

// SanitizeMetadata returns a copy of metadata that satisfies the vector
// store's constraints: primitive scalars, booleans and string slices pass
// through (strings truncated to the cap); nil values are dropped; anything
// else is stringified and truncated.
func SanitizeMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}

	clean := make(map[string]any, len(metadata))
	for key, value := range metadata {
		if value == nil {
			continue
		}

		switch v := value.(type) {
		case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
			clean[key] = v
		case string:
			clean[key] = truncateString(v)
		case []string:
			trimmed := make([]string, len(v))
			for i, s := range v {
				trimmed[i] = truncateString(s)
			}
			clean[key] = trimmed
		default:
			clean[key] = truncateString(fmt.Sprintf("%v", v))
		}
	}
	return clean
}

func truncateString(s string) string {
	if len(s) <= MetadataValueCap {
		return s
	}
	return s[:MetadataValueCap]
}
