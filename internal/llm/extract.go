package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencedJSON matches a markdown code fence labeled json. The body is
// captured lazily so the first closing fence ends the block.
var fencedJSON = regexp.MustCompile("(?is)```json[ \\t]*\\r?\\n?(.*?)```")

// ExtractJSON pulls the structured record out of a model response. A ```json
// fenced block wins over a bare object elsewhere in the text; otherwise the
// first balanced top-level {...} is used. It returns nil when the text is
// empty, holds no complete object, or the chosen object is not valid JSON.
// Numbers are kept as json.Number so values pass through unchanged.
func ExtractJSON(text string) map[string]any {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	candidate, ok := fencedObject(text)
	if !ok {
		candidate, ok = firstObject(text)
	}
	if !ok {
		return nil
	}
	return decodeObject(candidate)
}

func fencedObject(text string) (string, bool) {
	for _, m := range fencedJSON.FindAllStringSubmatch(text, -1) {
		if obj, ok := firstObject(m[1]); ok {
			return obj, true
		}
	}
	return "", false
}

// firstObject returns the first balanced {...} in s. Braces inside JSON
// string literals do not count towards nesting.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func decodeObject(s string) map[string]any {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}
