package language

import "strings"

// NormalizeCode returns the primary ISO 639-1 subtag (for example, "en" from
// "en-US" or "EN_us"). Returns "" when the value is blank or malformed.
func NormalizeCode(raw string) string {
	tag := normalizeTag(raw)
	if tag == "" {
		return ""
	}
	if dash := strings.IndexByte(tag, '-'); dash >= 0 {
		tag = tag[:dash]
	}
	if len(tag) != 2 {
		return ""
	}
	return tag
}

// NormalizeCountry returns a lowercase two-letter country code, or "" when
// the value is blank or not a plain ISO 3166-1 alpha-2 code.
func NormalizeCountry(raw string) string {
	code := strings.ToLower(strings.TrimSpace(raw))
	if len(code) != 2 || !isAlphaLower(code) {
		return ""
	}
	return code
}

func normalizeTag(raw string) string {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return ""
	}

	trimmed = strings.ReplaceAll(trimmed, "_", "-")
	parts := strings.Split(trimmed, "-")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !isAlphaLower(part) {
			return ""
		}
		normalized = append(normalized, part)
	}

	if len(normalized) == 0 {
		return ""
	}
	return strings.Join(normalized, "-")
}

func isAlphaLower(value string) bool {
	for _, r := range value {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}
