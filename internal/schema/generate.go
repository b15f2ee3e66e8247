package schema

import (
	"encoding/json"
	"fmt"
)

// Generate infers a JSON Schema from a sample value. Arrays take their item
// schema from the first element; numbers of any kind become "number".
func Generate(data any) (string, error) {
	out, err := json.MarshalIndent(infer(data), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding schema: %w", err)
	}
	return string(out), nil
}

func infer(v any) map[string]any {
	switch val := v.(type) {
	case nil:
		return map[string]any{"type": "null"}
	case []any:
		items := map[string]any{}
		if len(val) > 0 {
			items = infer(val[0])
		}
		return map[string]any{"type": "array", "items": items}
	case map[string]any:
		properties := make(map[string]any, len(val))
		for k, child := range val {
			properties[k] = infer(child)
		}
		return map[string]any{"type": "object", "properties": properties}
	case string:
		return map[string]any{"type": "string"}
	case bool:
		return map[string]any{"type": "boolean"}
	case json.Number, float64, float32, int, int64, int32:
		return map[string]any{"type": "number"}
	default:
		return map[string]any{}
	}
}
