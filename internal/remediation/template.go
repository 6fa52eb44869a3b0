package remediation

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([a-zA-Z0-9_.\-]+)\}`)

// interpolate resolves `${a.b.c}` placeholders against the trigger context,
// recursively over strings, slices and maps. Unresolved placeholders are
// left verbatim; templating never fails an action.
func interpolate(value interface{}, ctx map[string]interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return interpolateString(v, ctx)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = interpolate(item, ctx)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = interpolateString(item, ctx)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = interpolate(item, ctx)
		}
		return out
	default:
		return value
	}
}

func interpolateString(s string, ctx map[string]interface{}) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := match[2 : len(match)-1]
		if resolved, ok := lookupPath(ctx, path); ok {
			return stringify(resolved)
		}
		return match
	})
}

// lookupPath walks a dotted path through nested string-keyed maps. This is a
// plain map walk on a fixed context shape, not an expression evaluator.
func lookupPath(ctx map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = ctx
	for _, part := range parts {
		switch node := current.(type) {
		case map[string]interface{}:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]string:
			v, ok := node[part]
			if !ok {
				return nil, false
			}
			current = v
		default:
			return nil, false
		}
	}
	return current, true
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		// Trim the ".000000" noise off integral values.
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// secretKeyFragments flags config keys whose values must never appear in
// failure notifications or logs.
var secretKeyFragments = []string{"password", "token", "secret", "apikey", "api_key"}

// sanitize returns a deep copy of the payload with secret-bearing values
// masked.
func sanitize(payload map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		if isSecretKey(k) {
			out[k] = "***"
			continue
		}
		switch nested := v.(type) {
		case map[string]interface{}:
			out[k] = sanitize(nested)
		default:
			out[k] = v
		}
	}
	return out
}

func isSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range secretKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
