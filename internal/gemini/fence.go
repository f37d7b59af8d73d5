package gemini

import "strings"

// stripCodeFence removes a wrapping markdown code fence the model sometimes
// adds around its output, with or without a language tag.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return s
	}

	body, ok := strings.CutPrefix(trimmed, "```")
	if !ok {
		return s
	}
	if idx := strings.Index(body, "\n"); idx >= 0 {
		// Anything on the fence line itself is a language tag.
		body = body[idx+1:]
	}
	body, ok = strings.CutSuffix(strings.TrimSpace(body), "```")
	if !ok {
		return s
	}
	return strings.TrimSpace(body)
}
