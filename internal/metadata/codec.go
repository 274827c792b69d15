package metadata

import (
	"strconv"

	"github.com/goccy/go-json"
)

// encodeTypedValue converts value to its stored string form alongside the
// value_type tag, shared by UserPreference and SystemConfig per the
// identical decoding rules §3.1 specifies for both.
func encodeTypedValue(value any) (stored string, valueType string) {
	switch v := value.(type) {
	case string:
		return v, "string"
	case bool:
		if v {
			return "true", "boolean"
		}
		return "false", "boolean"
	case int, int32, int64, float32, float64:
		b, _ := json.Marshal(v)
		return string(b), "number"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", "string"
		}
		return string(b), "json"
	}
}

// decodeTypedValue reverses encodeTypedValue. Invalid JSON degrades to an
// empty mapping; an invalid number degrades to the raw string, matching
// the spec's degrade-gracefully-at-read-time rule.
func decodeTypedValue(stored, valueType string) any {
	switch valueType {
	case "boolean":
		return stored == "true"
	case "number":
		if f, err := strconv.ParseFloat(stored, 64); err == nil {
			return f
		}
		return stored
	case "json":
		var out map[string]any
		if err := json.Unmarshal([]byte(stored), &out); err != nil {
			return map[string]any{}
		}
		return out
	default:
		return stored
	}
}
