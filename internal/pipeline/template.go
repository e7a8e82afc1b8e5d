package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Substitute resolves {{variable}} placeholders in value against the outputs
// produced so far. Strings that consist of a single placeholder keep the
// resolved value's type; placeholders embedded in larger strings are
// stringified in place. Unresolvable placeholders are left verbatim with a
// warning so the receiving service sees what was asked for.
func Substitute(value interface{}, outputs map[string]interface{}, logger *slog.Logger) interface{} {
	if logger == nil {
		logger = slog.Default()
	}
	switch v := value.(type) {
	case string:
		return substituteString(v, outputs, logger)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, item := range v {
			out[k] = Substitute(item, outputs, logger)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = Substitute(item, outputs, logger)
		}
		return out
	default:
		return value
	}
}

func substituteString(s string, outputs map[string]interface{}, logger *slog.Logger) interface{} {
	if m := placeholderRe.FindStringSubmatch(s); m != nil && m[0] == s {
		resolved, ok := resolvePath(m[1], outputs)
		if !ok {
			logger.Warn("unresolved placeholder", slog.String("path", m[1]))
			return s
		}
		return resolved
	}

	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]
		resolved, ok := resolvePath(path, outputs)
		if !ok {
			logger.Warn("unresolved placeholder", slog.String("path", path))
			return match
		}
		return stringify(resolved)
	})
}

// pathSegment is one accessor of a variable path: a map key or a list index.
type pathSegment struct {
	key     string
	index   int
	isIndex bool
}

func parsePath(path string) []pathSegment {
	var segments []pathSegment
	for _, part := range strings.Split(path, ".") {
		for {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				if part != "" {
					segments = append(segments, pathSegment{key: part})
				}
				break
			}
			if open > 0 {
				segments = append(segments, pathSegment{key: part[:open]})
			}
			closing := strings.IndexByte(part[open:], ']')
			if closing < 0 {
				return nil
			}
			idx, err := strconv.Atoi(part[open+1 : open+closing])
			if err != nil {
				return nil
			}
			segments = append(segments, pathSegment{index: idx, isIndex: true})
			part = part[open+closing+1:]
			if part == "" {
				break
			}
		}
	}
	return segments
}

// resolvePath walks a dotted and bracketed path through outputs. When a
// deeper path cannot be traversed but the base variable is a primitive, the
// primitive is returned as-is so templates like {{answer.text}} still work
// against services that return a bare string.
func resolvePath(path string, outputs map[string]interface{}) (interface{}, bool) {
	segments := parsePath(path)
	if len(segments) == 0 || segments[0].isIndex {
		return nil, false
	}

	base, ok := outputs[segments[0].key]
	if !ok {
		return nil, false
	}

	current := base
	for _, seg := range segments[1:] {
		next, ok := access(current, seg)
		if !ok {
			if isPrimitive(base) {
				return base, true
			}
			return nil, false
		}
		current = next
	}
	return current, true
}

func access(value interface{}, seg pathSegment) (interface{}, bool) {
	// Services often return JSON as a string; decode before giving up.
	if s, ok := value.(string); ok {
		var decoded interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			value = decoded
		}
	}

	if seg.isIndex {
		list, ok := value.([]interface{})
		if !ok || seg.index < 0 || seg.index >= len(list) {
			return nil, false
		}
		return list[seg.index], true
	}

	m, ok := value.(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := m[seg.key]
	return v, ok
}

func isPrimitive(value interface{}) bool {
	switch value.(type) {
	case string, float64, int, int64, bool, nil:
		return true
	default:
		return false
	}
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", v)
	}
}
