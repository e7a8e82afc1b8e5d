package sequential

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/objspace/orchestrator/internal/gateway"
	"github.com/objspace/orchestrator/internal/steps"
	"github.com/objspace/orchestrator/pkg/types"
)

type reply struct {
	text string
	err  error
}

// scriptedOracle returns queued replies in call order.
type scriptedOracle struct {
	replies []reply
	calls   int
}

func (o *scriptedOracle) Complete(ctx context.Context, provider, model, systemPrompt, userPrompt string) (string, error) {
	o.calls++
	if len(o.replies) == 0 {
		return "", fmt.Errorf("no scripted reply for call %d", o.calls)
	}
	r := o.replies[0]
	o.replies = o.replies[1:]
	return r.text, r.err
}

type nopGateway struct{}

func (nopGateway) Invoke(ctx context.Context, req *gateway.Request) (*gateway.Result, error) {
	return &gateway.Result{Success: true, Status: 200, Body: "{}", Attempts: 1}, nil
}

func newScheduler(o *scriptedOracle) *Scheduler {
	d := steps.NewDispatcher(o, nopGateway{}, "", nil)
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	return New(d, nil, cfg, nil)
}

func simple(text string) types.Instruction {
	return types.Instruction{Kind: types.KindSimple, Text: text}
}

func TestConditionalBranchTrace(t *testing.T) {
	// Simple "A", conditional check branching to index 2 on true and 3 on
	// false, then the two branch arms.
	insts := []types.Instruction{
		simple("A"),
		{
			Kind: types.KindConditional,
			Text: "check",
			Condition: &types.Condition{
				Expression: "contains YES",
				IfTrue:     []int{2},
				IfFalse:    []int{3},
			},
		},
		simple("success"),
		simple("fail"),
	}

	o := &scriptedOracle{replies: []reply{
		{text: "did A"},
		{text: "YES"},
		{text: "true"}, // condition verdict
		{text: "succeeded"},
	}}

	result := newScheduler(o).Execute(context.Background(), &Request{
		RunID:        "run-1",
		Context:      "ctx",
		Instructions: insts,
	})

	if !result.Succeeded() {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(result.Steps))
	}

	wantIndices := []int{0, 1, 2}
	for i, step := range result.Steps {
		if step.StepNumber != i+1 {
			t.Errorf("step %d: stepNumber = %d, want %d", i, step.StepNumber, i+1)
		}
		if step.InstructionIndex != wantIndices[i] {
			t.Errorf("step %d: index = %d, want %d", i, step.InstructionIndex, wantIndices[i])
		}
	}
	if result.Steps[1].BranchTaken != types.BranchTrue {
		t.Errorf("expected branchTaken true on the conditional step, got %q", result.Steps[1].BranchTaken)
	}
	if !result.Steps[1].ConditionEvaluated || !result.Steps[1].ConditionResult {
		t.Error("condition evaluation not recorded")
	}
	if result.FinalizedAt.IsZero() {
		t.Error("finalizedAt not set")
	}
}

func TestCyclicBranchesTerminate(t *testing.T) {
	// Index 1 branches back to 0 on both verdicts. The executed set must
	// keep every index to a single execution.
	insts := []types.Instruction{
		simple("a"),
		{
			Kind: types.KindConditional,
			Text: "loop",
			Condition: &types.Condition{
				Expression: "always",
				IfTrue:     []int{0},
				IfFalse:    []int{0},
			},
		},
	}

	o := &scriptedOracle{replies: []reply{
		{text: "r0"},
		{text: "r1"},
		{text: "true"},
	}}

	result := newScheduler(o).Execute(context.Background(), &Request{
		RunID:        "run-loop",
		Instructions: insts,
	})

	if !result.Succeeded() {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(result.Steps))
	}
	seen := make(map[int]bool)
	for _, step := range result.Steps {
		if seen[step.InstructionIndex] {
			t.Fatalf("index %d executed twice", step.InstructionIndex)
		}
		seen[step.InstructionIndex] = true
	}
}

func TestBranchTargetSuppressesFallthrough(t *testing.T) {
	// Index 2 is a branch target; after executing it the scheduler must
	// not fall through to index 3.
	insts := []types.Instruction{
		{
			Kind: types.KindConditional,
			Text: "check",
			Condition: &types.Condition{
				Expression: "pick a branch",
				IfTrue:     []int{2},
				IfFalse:    []int{2},
			},
		},
		simple("skipped"),
		simple("branch arm"),
		simple("must not run"),
	}

	o := &scriptedOracle{replies: []reply{
		{text: "r0"},
		{text: "true"},
		{text: "r2"},
	}}

	result := newScheduler(o).Execute(context.Background(), &Request{
		RunID:        "run-suppress",
		Instructions: insts,
	})

	if !result.Succeeded() {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d: %+v", len(result.Steps), result.Steps)
	}
	for _, step := range result.Steps {
		if step.InstructionIndex == 1 || step.InstructionIndex == 3 {
			t.Errorf("index %d must not execute", step.InstructionIndex)
		}
	}
}

func TestEvaluateAfterStepSubject(t *testing.T) {
	two := 1
	insts := []types.Instruction{
		simple("produce"),
		{
			Kind: types.KindConditional,
			Text: "verify earlier output",
			Condition: &types.Condition{
				EvaluateAfterStep: &two,
				Expression:        "mentions widgets",
				IfTrue:            []int{2},
			},
		},
		simple("after"),
	}

	o := &scriptedOracle{replies: []reply{
		{text: "widgets ready"},
		{text: "checked"},
		{text: "true"},
		{text: "done"},
	}}

	result := newScheduler(o).Execute(context.Background(), &Request{
		RunID:        "run-subject",
		Instructions: insts,
	})
	if !result.Succeeded() {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(result.Steps))
	}
}

func TestEvaluateAfterStepMissingIsFatal(t *testing.T) {
	five := 5
	insts := []types.Instruction{
		{
			Kind: types.KindConditional,
			Text: "check",
			Condition: &types.Condition{
				EvaluateAfterStep: &five,
				Expression:        "anything",
			},
		},
		simple("unreached"),
	}

	o := &scriptedOracle{replies: []reply{{text: "r0"}}}

	result := newScheduler(o).Execute(context.Background(), &Request{
		RunID:        "run-missing-subject",
		Instructions: insts,
	})

	if result.Succeeded() {
		t.Fatal("expected failure")
	}
	if len(result.Errors) != 1 || result.Errors[0].Kind != steps.KindValidationError {
		t.Errorf("expected a validation error, got %+v", result.Errors)
	}
	// The failed step's result is retained.
	if len(result.Steps) != 1 {
		t.Errorf("expected the executed step to be retained, got %d", len(result.Steps))
	}
	if result.FinalizedAt.IsZero() {
		t.Error("finalizedAt must be set on failure")
	}
}

func TestStepRetrySucceedsAfterTransientFailure(t *testing.T) {
	insts := []types.Instruction{simple("flaky")}

	o := &scriptedOracle{replies: []reply{
		{err: fmt.Errorf("transient")},
		{text: "recovered"},
	}}

	result := newScheduler(o).Execute(context.Background(), &Request{
		RunID:        "run-retry",
		Instructions: insts,
	})

	if !result.Succeeded() {
		t.Fatalf("expected success after retry, got errors: %+v", result.Errors)
	}
	if result.Steps[0].ResultText != "recovered" {
		t.Errorf("unexpected result: %q", result.Steps[0].ResultText)
	}
	if o.calls != 2 {
		t.Errorf("expected 2 oracle calls, got %d", o.calls)
	}
}

func TestStepRetriesExhausted(t *testing.T) {
	insts := []types.Instruction{simple("doomed"), simple("unreached")}

	o := &scriptedOracle{replies: []reply{
		{err: fmt.Errorf("down")},
		{err: fmt.Errorf("down")},
		{err: fmt.Errorf("down")},
		{err: fmt.Errorf("down")},
	}}

	result := newScheduler(o).Execute(context.Background(), &Request{
		RunID:        "run-exhausted",
		Instructions: insts,
	})

	if result.Succeeded() {
		t.Fatal("expected failure")
	}
	if o.calls != 4 {
		t.Errorf("expected 4 attempts (1 + 3 retries), got %d", o.calls)
	}
	// Only the final attempt's error is kept.
	if len(result.Errors) != 1 {
		t.Errorf("expected a single recorded error, got %d", len(result.Errors))
	}
	if len(result.Steps) != 0 {
		t.Errorf("failed step must not produce a result, got %d", len(result.Steps))
	}
}

func TestValidationFailsBeforeExecution(t *testing.T) {
	insts := []types.Instruction{
		{
			Kind: types.KindConditional,
			Text: "check",
			Condition: &types.Condition{
				Expression: "x",
				IfTrue:     []int{9},
			},
		},
	}

	o := &scriptedOracle{}
	result := newScheduler(o).Execute(context.Background(), &Request{
		RunID:        "run-invalid",
		Instructions: insts,
	})

	if result.Succeeded() {
		t.Fatal("expected failure")
	}
	if o.calls != 0 {
		t.Errorf("no step may execute on invalid input, got %d oracle calls", o.calls)
	}
	if result.Errors[0].Kind != steps.KindValidationError {
		t.Errorf("expected validation error, got %q", result.Errors[0].Kind)
	}
}

func TestUnconditionedFallthroughChain(t *testing.T) {
	insts := []types.Instruction{simple("a"), simple("b"), simple("c")}

	o := &scriptedOracle{replies: []reply{
		{text: "ra"}, {text: "rb"}, {text: "rc"},
	}}

	result := newScheduler(o).Execute(context.Background(), &Request{
		RunID:        "run-chain",
		Instructions: insts,
	})

	if !result.Succeeded() {
		t.Fatalf("unexpected errors: %+v", result.Errors)
	}
	if len(result.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(result.Steps))
	}
	for i, step := range result.Steps {
		if step.BranchTaken != types.BranchSequential {
			t.Errorf("step %d: branchTaken = %q, want sequential", i+1, step.BranchTaken)
		}
	}
	if result.FinalText() != "rc" {
		t.Errorf("unexpected final text: %q", result.FinalText())
	}
}

func TestBuildEdges(t *testing.T) {
	insts := []types.Instruction{
		{
			Kind: types.KindConditional,
			Text: "cond",
			Condition: &types.Condition{
				Expression: "x",
				IfTrue:     []int{2},
			},
		},
		simple("mid"),
		simple("target"),
	}

	edges := buildEdges(insts)

	// Conditioned index: explicit true edge, fallthrough false edge.
	if len(edges[0].onTrue) != 1 || edges[0].onTrue[0] != 2 {
		t.Errorf("unexpected onTrue edges: %v", edges[0].onTrue)
	}
	if len(edges[0].onFalse) != 1 || edges[0].onFalse[0] != 1 {
		t.Errorf("empty ifFalse should fall through, got %v", edges[0].onFalse)
	}
	// Plain fallthrough.
	if len(edges[1].next) != 1 || edges[1].next[0] != 2 {
		t.Errorf("unexpected next edges: %v", edges[1].next)
	}
	// Branch target at the end of the array has no outgoing edge.
	if len(edges[2].next) != 0 {
		t.Errorf("terminal branch target must not fall through, got %v", edges[2].next)
	}
}
