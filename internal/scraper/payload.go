package scraper

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeItems parses a listing body and returns its items. The list may be
// the top-level value or sit under "data", "data.data" or "results"; any
// other shape yields no items.
func decodeItems(body []byte) ([]map[string]any, error) {
	var payload any
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("json decode: %w", err)
	}
	return itemsFrom(payload), nil
}

func itemsFrom(payload any) []map[string]any {
	switch v := payload.(type) {
	case []any:
		return objects(v)
	case map[string]any:
		if list, ok := v["data"].([]any); ok {
			return objects(list)
		}
		if inner, ok := v["data"].(map[string]any); ok {
			if list, ok := inner["data"].([]any); ok {
				return objects(list)
			}
		}
		if list, ok := v["results"].([]any); ok {
			return objects(list)
		}
	}
	return nil
}

func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, el := range list {
		if obj, ok := el.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}
