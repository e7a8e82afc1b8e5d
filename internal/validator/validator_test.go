package validator

import (
	"testing"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func TestValidateWorkflowJSON(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name    string
		payload string
		valid   bool
	}{
		{
			"string instructions",
			`{"context":"do things","instructions":["first","second"]}`,
			true,
		},
		{
			"tagged instruction",
			`{"context":"c","instructions":[{"type":"endpoint","text":"call it","endpointUrl":"http://svc","apiUrl":"http://api","method":"POST"}]}`,
			true,
		},
		{
			"conditional with branches",
			`{"context":"c","instructions":[{"text":"check","condition":{"expression":"contains YES","ifTrue":[2],"ifFalse":[3]}}]}`,
			true,
		},
		{
			"missing instructions",
			`{"context":"c"}`,
			false,
		},
		{
			"empty instruction list",
			`{"context":"c","instructions":[]}`,
			false,
		},
		{
			"unknown instruction type",
			`{"context":"c","instructions":[{"type":"teleport","text":"x"}]}`,
			false,
		},
		{
			"condition without expression",
			`{"context":"c","instructions":[{"text":"x","condition":{"ifTrue":[1]}}]}`,
			false,
		},
		{
			"not json",
			`{"context":`,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := v.ValidateWorkflowJSON([]byte(tt.payload))
			if result.Valid != tt.valid {
				t.Errorf("valid = %v, want %v (errors: %+v)", result.Valid, tt.valid, result.Errors)
			}
		})
	}
}

func TestValidatePipelineJSON(t *testing.T) {
	v := newValidator(t)

	valid := `{
		"workflow_id": "wf1",
		"steps": [{
			"step_name": "fetch",
			"usid": "aaaa0001",
			"service_url": "http://svc",
			"method": "POST",
			"outputs": ["raw"]
		}]
	}`
	if result := v.ValidatePipelineJSON([]byte(valid)); !result.Valid {
		t.Errorf("expected valid, got %+v", result.Errors)
	}

	tests := []struct {
		name    string
		payload string
	}{
		{"no steps", `{"steps":[]}`},
		{"short usid", `{"steps":[{"step_name":"a","usid":"abc","service_url":"http://x","method":"POST","outputs":["o"]}]}`},
		{"bad method", `{"steps":[{"step_name":"a","usid":"aaaa0001","service_url":"http://x","method":"TRACE","outputs":["o"]}]}`},
		{"no outputs", `{"steps":[{"step_name":"a","usid":"aaaa0001","service_url":"http://x","method":"POST","outputs":[]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := v.ValidatePipelineJSON([]byte(tt.payload)); result.Valid {
				t.Error("expected invalid")
			}
		})
	}
}
