package output

import (
	"encoding/json"
	"fmt"
	"sort"
)

// DecodeUsers extracts the users map from an export document. A bare map
// of entries is accepted as well.
func DecodeUsers(data []byte) (any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode import document: %w", err)
	}
	if users, ok := doc["users"]; ok {
		return users, nil
	}
	return doc, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
