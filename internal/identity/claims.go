package identity

import "strings"

// NormalizeClaim converts an already-decoded claim value (list of any,
// list of strings, or CSV string) into a normalized string slice. Upstream
// issuers encode these claims either way; unknown shapes yield nil rather
// than a guess.
func NormalizeClaim(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		return normalize(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			out = append(out, s)
		}
		return normalize(out)
	case string:
		return SplitCSV(v)
	default:
		return nil
	}
}

func SplitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return normalize(strings.Split(value, ","))
}

func normalize(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
