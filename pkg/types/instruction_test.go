package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseInstructionString(t *testing.T) {
	inst, err := ParseInstruction(json.RawMessage(`"Summarize the document"`))
	if err != nil {
		t.Fatalf("ParseInstruction failed: %v", err)
	}
	if inst.Kind != KindSimple {
		t.Errorf("expected simple, got %s", inst.Kind)
	}
	if inst.Text != "Summarize the document" {
		t.Errorf("unexpected text: %q", inst.Text)
	}
}

func TestParseInstructionClassification(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want InstructionKind
	}{
		{
			name: "explicit endpoint",
			raw:  `{"type":"endpoint","endpointUrl":"https://svc/a","apiUrl":"https://api/a","method":"POST"}`,
			want: KindEndpoint,
		},
		{
			name: "explicit thread",
			raw:  `{"type":"thread","collectFromSteps":[1,2],"outputFormat":"numbered","completionCheck":"deterministic"}`,
			want: KindThread,
		},
		{
			name: "explicit router",
			raw:  `{"type":"router","evaluationPrompt":"pick","options":[{"id":"a","apiUrl":"https://a"}]}`,
			want: KindRouter,
		},
		{
			name: "explicit agent",
			raw:  `{"type":"agent","decisionPrompt":"decide","fallbackBehavior":"skip"}`,
			want: KindAgent,
		},
		{
			name: "no type with condition defaults to conditional",
			raw:  `{"instruction":"check stock","condition":{"expression":"is it in stock?","ifTrue":[0]}}`,
			want: KindConditional,
		},
		{
			name: "no type without condition defaults to simple",
			raw:  `{"instruction":"just do it"}`,
			want: KindSimple,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := ParseInstruction(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("ParseInstruction failed: %v", err)
			}
			if inst.Kind != tt.want {
				t.Errorf("expected kind %s, got %s", tt.want, inst.Kind)
			}
		})
	}
}

func TestParseInstructionUnknownType(t *testing.T) {
	_, err := ParseInstruction(json.RawMessage(`{"type":"teleport"}`))
	if err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !strings.Contains(err.Error(), "teleport") {
		t.Errorf("error should name the bad type, got: %v", err)
	}
}

func TestParseInstructionsAttributesIndex(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`"ok"`),
		json.RawMessage(`{"type":"bogus"}`),
	}
	_, err := ParseInstructions(raws)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "instruction 1") {
		t.Errorf("error should name the offending index, got: %v", err)
	}
}

func TestParseInstructionsEmpty(t *testing.T) {
	if _, err := ParseInstructions(nil); err == nil {
		t.Fatal("expected error for empty instruction array")
	}
}

func TestValidateInstructions(t *testing.T) {
	two := 2
	zero := 0

	tests := []struct {
		name    string
		insts   []Instruction
		wantErr string
	}{
		{
			name:  "valid simple chain",
			insts: []Instruction{{Kind: KindSimple, Text: "a"}, {Kind: KindSimple, Text: "b"}},
		},
		{
			name:    "missing text",
			insts:   []Instruction{{Kind: KindSimple}},
			wantErr: "instruction 0",
		},
		{
			name: "endpoint missing apiUrl",
			insts: []Instruction{{
				Kind:     KindEndpoint,
				Endpoint: &EndpointConfig{EndpointURL: "https://svc", Method: "POST"},
			}},
			wantErr: "apiUrl",
		},
		{
			name: "thread with empty collectFromSteps",
			insts: []Instruction{{
				Kind:   KindThread,
				Thread: &ThreadConfig{OutputFormat: ThreadFormatJSON, CompletionCheck: CheckDeterministic},
			}},
			wantErr: "collectFromSteps",
		},
		{
			name: "router with no options",
			insts: []Instruction{{
				Kind:   KindRouter,
				Router: &RouterConfig{EvaluationPrompt: "pick"},
			}},
			wantErr: "no options",
		},
		{
			name: "agent llm fallback without prompt",
			insts: []Instruction{{
				Kind:  KindAgent,
				Agent: &AgentConfig{DecisionPrompt: "decide", FallbackBehavior: FallbackLLM},
			}},
			wantErr: "llmFallbackPrompt",
		},
		{
			name: "branch target out of range",
			insts: []Instruction{{
				Kind: KindConditional,
				Text: "check",
				Condition: &Condition{
					Expression: "ready?",
					IfTrue:     []int{5},
				},
			}},
			wantErr: "ifTrue target 5 out of range",
		},
		{
			name: "evaluateAfterStep must be positive",
			insts: []Instruction{{
				Kind: KindConditional,
				Text: "check",
				Condition: &Condition{
					Expression:        "done?",
					EvaluateAfterStep: &zero,
				},
			}},
			wantErr: "evaluateAfterStep",
		},
		{
			name: "valid backward branch",
			insts: []Instruction{
				{Kind: KindSimple, Text: "a"},
				{Kind: KindSimple, Text: "b"},
				{
					Kind: KindConditional,
					Text: "check",
					Condition: &Condition{
						Expression:        "retry?",
						EvaluateAfterStep: &two,
						IfTrue:            []int{0},
						IfFalse:           []int{1},
					},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInstructions(tt.insts)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestBranchTargets(t *testing.T) {
	insts := []Instruction{
		{Kind: KindSimple, Text: "a"},
		{
			Kind: KindConditional,
			Text: "check",
			Condition: &Condition{
				Expression: "ok?",
				IfTrue:     []int{3},
				IfFalse:    []int{2},
			},
		},
		{Kind: KindSimple, Text: "b"},
		{Kind: KindSimple, Text: "c"},
	}

	targets := BranchTargets(insts)
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if !targets[2] || !targets[3] {
		t.Errorf("expected targets {2,3}, got %v", targets)
	}
	if targets[0] {
		t.Error("index 0 must not be a branch target")
	}
}

func TestIsSelectionDependency(t *testing.T) {
	tests := []struct {
		dep  string
		want bool
	}{
		{"selection_a1b2c3d4", true},
		{"selection_a1b2c3d", false},
		{"selection_a1b2c3d45", false},
		{"step_1_result", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSelectionDependency(tt.dep); got != tt.want {
			t.Errorf("IsSelectionDependency(%q) = %v, want %v", tt.dep, got, tt.want)
		}
	}
}
