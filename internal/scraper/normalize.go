package scraper

import "strings"

// normalizeKeys folds the upstream item's mixed-case JSON keys (Title,
// downloadLink, CoverPhotoLink, ...) down to lower case so field lookup does
// not depend on the engine's casing convention.
func normalizeKeys(item map[string]any) map[string]any {
	normalized := make(map[string]any, len(item))
	for key, value := range item {
		normalized[strings.ToLower(key)] = value
	}
	return normalized
}

func stringField(item map[string]any, key string) string {
	value, ok := item[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func boolField(item map[string]any, key string) bool {
	value, ok := item[key].(bool)
	return ok && value
}

func linkMapField(item map[string]any, key string) map[string]string {
	raw, ok := item[key].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	links := make(map[string]string, len(raw))
	for label, value := range raw {
		if link, ok := value.(string); ok && link != "" {
			links[label] = link
		}
	}
	if len(links) == 0 {
		return nil
	}
	return links
}
