// Package toolcall detects tool-call envelopes in model replies and renders
// them as readable text.
//
// Groq's llama models emit tool calls as a JSON payload wrapped in
// <tool_call>...</tool_call> markers instead of plain prose. Normalize turns
// that envelope into an indented listing; anything that does not parse is
// passed through untouched so a chat reply is never lost to a formatting bug.
package toolcall

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

const (
	openMarker  = "<tool_call>"
	closeMarker = "</tool_call>"
)

// payload is the envelope body: an optional id, the tool name, and a free-form
// argument mapping whose values may recursively be scalars, mappings, or
// sequences.
type payload struct {
	ID        json.RawMessage        `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Normalize reformats a tool-call reply into readable text. The whole trimmed
// reply must be the envelope; markers embedded mid-text are treated as plain
// prose. On any parse failure the raw input is returned unchanged.
func Normalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, openMarker) || !strings.HasSuffix(trimmed, closeMarker) {
		return raw
	}

	body := trimmed[len(openMarker) : len(trimmed)-len(closeMarker)]

	var p payload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return raw
	}
	if strings.TrimSpace(p.Name) == "" {
		return raw
	}

	var b strings.Builder
	b.WriteString("Tool Call\n")
	fmt.Fprintf(&b, "  Name: %s\n", p.Name)
	b.WriteString("  Arguments:\n")
	writeValue(&b, p.Arguments, 2)
	return strings.TrimRight(b.String(), "\n")
}

// writeValue renders a decoded JSON value at the given indent depth.
// Mappings become "Key:" lines with nested values, sequences become "- item"
// lines, scalars are printed as-is.
func writeValue(b *strings.Builder, v interface{}, depth int) {
	indent := strings.Repeat("  ", depth)

	switch val := v.(type) {
	case map[string]interface{}:
		// Sorted keys keep the rendering deterministic.
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if isScalar(val[k]) {
				fmt.Fprintf(b, "%s%s: %s\n", indent, titleCase(k), scalarString(val[k]))
				continue
			}
			fmt.Fprintf(b, "%s%s:\n", indent, titleCase(k))
			writeValue(b, val[k], depth+1)
		}
	case []interface{}:
		for _, item := range val {
			if isScalar(item) {
				fmt.Fprintf(b, "%s- %s\n", indent, scalarString(item))
				continue
			}
			fmt.Fprintf(b, "%s-\n", indent)
			writeValue(b, item, depth+1)
		}
	default:
		fmt.Fprintf(b, "%s%s\n", indent, scalarString(val))
	}
}

func isScalar(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return false
	default:
		return true
	}
}

func scalarString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; print integers without a fraction.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// titleCase turns a snake_case key into a spaced, capitalized label:
// "due_date" -> "Due Date".
func titleCase(key string) string {
	words := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == ' ' || r == '-'
	})
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	if len(words) == 0 {
		return key
	}
	return strings.Join(words, " ")
}
