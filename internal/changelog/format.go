package changelog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// summaryFields are rendered, in order, when present and non-empty.
var summaryFields = []string{"pk", "sk", "title", "release_date", "overview", "category", "year"}

// Format renders a change as a single audit line.
func Format(c Change) string {
	switch c.Action {
	case Insert:
		return "POST + " + formatImage(c.New)
	case Remove:
		return "DELETE " + formatImage(c.Old)
	default:
		return "MODIFY " + formatImage(c.Old) + " -> " + formatImage(c.New)
	}
}

func formatImage(img map[string]any) string {
	if img == nil {
		return "<undefined>"
	}

	var parts []string
	for _, name := range summaryFields {
		if v, ok := img[name]; ok && present(v) {
			parts = append(parts, fmt.Sprint(v))
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " | ")
	}

	b, err := json.Marshal(img)
	if err != nil {
		return fmt.Sprint(img)
	}
	return string(b)
}

// present reports whether v is worth showing. Empty strings, zero numbers, false and null
// are skipped.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case json.Number:
		f, err := x.Float64()
		return err == nil && f != 0
	default:
		return true
	}
}
