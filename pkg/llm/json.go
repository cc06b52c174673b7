package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFences removes a surrounding markdown code block, if any.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:] // language tag
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// DecodeJSON decodes the first JSON object or array found in an LLM reply.
func DecodeJSON(reply string, v any) error {
	reply = StripCodeFences(reply)
	start := strings.IndexAny(reply, "{[")
	if start < 0 {
		return fmt.Errorf("no JSON value in response: %.200s", reply)
	}
	dec := json.NewDecoder(strings.NewReader(reply[start:]))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to parse response: %w (response: %.200s)", err, reply)
	}
	return nil
}
