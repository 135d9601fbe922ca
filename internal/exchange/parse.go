package exchange

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The Backpack API wraps some payloads in {"data": ...} and reports numbers
// as strings; these helpers absorb both without per-endpoint structs.

func unwrapData(payload any) any {
	if m, ok := toMap(payload); ok {
		if inner, ok := m["data"]; ok {
			return inner
		}
	}
	return payload
}

func listFromPayload(payload any) ([]any, bool) {
	return toSlice(unwrapData(payload))
}

func toMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func toSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

func stringFromMap(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := stringFromAny(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringFromAny(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

func floatFromMap(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := floatFromAny(v); ok {
				return f
			}
		}
	}
	return 0
}

func floatFromAny(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func levelsFromAny(v any) []Level {
	raw, ok := toSlice(v)
	if !ok {
		return nil
	}
	levels := make([]Level, 0, len(raw))
	for _, entry := range raw {
		pair, ok := toSlice(entry)
		if !ok || len(pair) < 2 {
			continue
		}
		price, okP := floatFromAny(pair[0])
		size, okS := floatFromAny(pair[1])
		if !okP || !okS {
			continue
		}
		levels = append(levels, Level{Price: price, Size: size})
	}
	return levels
}
