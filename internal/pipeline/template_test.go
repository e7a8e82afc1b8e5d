package pipeline

import (
	"reflect"
	"testing"
)

func TestSubstitute(t *testing.T) {
	outputs := map[string]interface{}{
		"name":  "ada",
		"count": float64(3),
		"report": map[string]interface{}{
			"summary": "all good",
			"items":   []interface{}{"first", "second"},
		},
		"encoded": `{"inner":{"value":42}}`,
	}

	tests := []struct {
		name  string
		value interface{}
		want  interface{}
	}{
		{"plain string untouched", "no placeholders", "no placeholders"},
		{"whole placeholder keeps type", "{{count}}", float64(3)},
		{"whole placeholder map", "{{report}}", outputs["report"]},
		{"embedded stringifies", "hello {{name}}, {{count}} items", "hello ada, 3 items"},
		{"dotted path", "{{report.summary}}", "all good"},
		{"bracket index", "{{report.items[1]}}", "second"},
		{"json string decoded", "{{encoded.inner.value}}", float64(42)},
		{"primitive fallback", "{{name.text}}", "ada"},
		{"unresolved left verbatim", "{{missing.path}}", "{{missing.path}}"},
		{"nested map", map[string]interface{}{"greeting": "hi {{name}}"}, map[string]interface{}{"greeting": "hi ada"}},
		{"nested slice", []interface{}{"{{count}}"}, []interface{}{float64(3)}},
		{"non-string passthrough", float64(7), float64(7)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Substitute(tt.value, outputs, nil)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Substitute(%v) = %#v, want %#v", tt.value, got, tt.want)
			}
		})
	}
}

func TestSubstituteEmbeddedObject(t *testing.T) {
	outputs := map[string]interface{}{
		"payload": map[string]interface{}{"n": float64(1)},
	}
	got := Substitute("data: {{payload}}", outputs, nil)
	if got != `data: {"n":1}` {
		t.Errorf("embedded object not JSON encoded: %v", got)
	}
}
