package llmclient

import "encoding/json"

// ParseConceptArray scans s for the first balanced `[...]` span that lies
// outside any quoted string and parses as JSON, flattening one level of
// nesting (so a response like `[["a","b"],"c"]` yields `["a","b","c"]`).
// Non-string elements are rendered with their JSON text representation.
//
// A balanced span that fails to parse — models sometimes emit bracketed
// prose like `[JSON]` ahead of the real array — is skipped, and scanning
// resumes after it. Returns ErrParse only when no balanced span in s parses
// as a JSON array.
func ParseConceptArray(s string) ([]string, error) {
	for offset := 0; offset < len(s); {
		span, end, ok := findBalancedArray(s[offset:])
		if !ok {
			break
		}

		var raw []any
		if err := json.Unmarshal([]byte(span), &raw); err == nil {
			return flattenConcepts(raw), nil
		}
		offset += end
	}
	return nil, ErrParse
}

// findBalancedArray returns the first top-level-balanced `[...]` substring of
// s, ignoring brackets that appear inside double-quoted JSON string literals,
// along with the byte offset just past it so callers can resume scanning.
func findBalancedArray(s string) (span string, end int, ok bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '[':
			if depth == 0 {
				start = i
			}
			depth++
		case ']':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return s[start : i+1], i + 1, true
				}
			}
		}
	}
	return "", 0, false
}

// flattenConcepts flattens one level of array nesting and stringifies every
// element, dropping empty strings.
func flattenConcepts(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		switch t := v.(type) {
		case string:
			if t != "" {
				out = append(out, t)
			}
		case []any:
			for _, inner := range t {
				if s, ok := inner.(string); ok && s != "" {
					out = append(out, s)
				} else if inner != nil {
					if b, err := json.Marshal(inner); err == nil {
						out = append(out, string(b))
					}
				}
			}
		case nil:
			// skip
		default:
			if b, err := json.Marshal(t); err == nil {
				out = append(out, string(b))
			}
		}
	}
	return out
}
