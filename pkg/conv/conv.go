// Package conv 提供节点配置（YAML 解码后的 map[string]any）的取值工具。
package conv

// ToFloat64 将 any 转为 float64。yaml.v3 会把整数解成 int，这里统一处理。
func ToFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	default:
		return 0, false
	}
}

// ToInt 将 any 转为 int；浮点数向零截断。
func ToInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case int32:
		return int(val), true
	case uint64:
		return int(val), true
	case float64:
		return int(val), true
	case float32:
		return int(val), true
	default:
		return 0, false
	}
}

// ToStrings 将 []any / []string 转为 []string，非字符串元素被跳过。
func ToStrings(v any) ([]string, bool) {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...), true
	case []any:
		out := make([]string, 0, len(val))
		for _, x := range val {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// Float 读取浮点配置，缺失或类型不符时返回默认值。
func Float(m map[string]any, key string, def float64) float64 {
	if f, ok := ToFloat64(m[key]); ok {
		return f
	}
	return def
}

// Int 读取整数配置。
func Int(m map[string]any, key string, def int) int {
	if n, ok := ToInt(m[key]); ok {
		return n
	}
	return def
}

// String 读取字符串配置。
func String(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return def
}

// Bool 读取布尔配置。
func Bool(m map[string]any, key string, def bool) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}

// Strings 读取字符串列表配置。
func Strings(m map[string]any, key string) []string {
	s, _ := ToStrings(m[key])
	return s
}
