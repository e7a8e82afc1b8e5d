package pipeline

import (
	"strings"
	"testing"

	"github.com/objspace/orchestrator/pkg/types"
)

func step(name, usid string, outputs []string, deps []string) types.PipelineStep {
	return types.PipelineStep{
		StepName:     name,
		USID:         usid,
		ServiceURL:   "http://svc.local/" + name,
		Method:       "POST",
		Outputs:      outputs,
		Dependencies: deps,
	}
}

func TestBuildGraphWaves(t *testing.T) {
	steps := []types.PipelineStep{
		step("fetch", "aaaa0001", []string{"raw"}, nil),
		step("clean", "aaaa0002", []string{"cleaned"}, []string{"raw"}),
		step("stats", "aaaa0003", []string{"stats"}, []string{"raw"}),
		step("merge", "aaaa0004", []string{"final_result"}, []string{"cleaned", "stats"}),
	}

	g, err := BuildGraph(steps)
	if err != nil {
		t.Fatal(err)
	}

	waves := g.Waves()
	if len(waves) != 3 {
		t.Fatalf("expected 3 waves, got %d: %v", len(waves), waves)
	}
	if len(waves[0]) != 1 || waves[0][0] != 0 {
		t.Errorf("wave 0 = %v, want [0]", waves[0])
	}
	// clean and stats are independent and sorted by index.
	if len(waves[1]) != 2 || waves[1][0] != 1 || waves[1][1] != 2 {
		t.Errorf("wave 1 = %v, want [1 2]", waves[1])
	}
	if len(waves[2]) != 1 || waves[2][0] != 3 {
		t.Errorf("wave 2 = %v, want [3]", waves[2])
	}
}

func TestBuildGraphRejectsCycle(t *testing.T) {
	steps := []types.PipelineStep{
		step("a", "aaaa0001", []string{"out_a"}, []string{"out_c"}),
		step("b", "aaaa0002", []string{"out_b"}, []string{"out_a"}),
		step("c", "aaaa0003", []string{"out_c"}, []string{"out_b"}),
	}

	_, err := BuildGraph(steps)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestBuildGraphRejectsSelfDependency(t *testing.T) {
	steps := []types.PipelineStep{
		step("loop", "aaaa0001", []string{"x"}, []string{"x"}),
	}
	if _, err := BuildGraph(steps); err == nil {
		t.Fatal("expected self-dependency error")
	}
}

func TestBuildGraphRejectsDuplicateOutputs(t *testing.T) {
	steps := []types.PipelineStep{
		step("a", "aaaa0001", []string{"shared"}, nil),
		step("b", "aaaa0002", []string{"shared"}, nil),
	}
	_, err := BuildGraph(steps)
	if err == nil || !strings.Contains(err.Error(), "shared") {
		t.Fatalf("expected duplicate output error, got %v", err)
	}
}

func TestBuildGraphSelectionDepsCreateNoEdges(t *testing.T) {
	steps := []types.PipelineStep{
		step("gated", "aaaa0001", []string{"out"}, []string{"selection_deadbeef"}),
	}
	g, err := BuildGraph(steps)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.DependsOn(0)) != 0 {
		t.Errorf("selection dependency must not create an edge: %v", g.DependsOn(0))
	}
}

func TestValidatePipeline(t *testing.T) {
	req := &types.PipelineRequest{
		Steps: []types.PipelineStep{
			{StepName: "ok", USID: "aaaa0001", ServiceURL: "http://x", Method: "POST", Outputs: []string{"a"}},
			{StepName: "bad", USID: "short", Method: "TRACE"},
			{StepName: "dup", USID: "aaaa0001", ServiceURL: "http://x", Method: "GET", Outputs: []string{"b"}},
		},
	}

	errs := ValidatePipeline(req)
	if len(errs) == 0 {
		t.Fatal("expected validation errors")
	}
	joined := strings.Join(errs, "\n")
	for _, want := range []string{
		"step 2 (bad): usid must be 8 characters",
		"step 2 (bad): service_url is required",
		`method "TRACE" is not allowed`,
		"at least one output is required",
		"usid duplicates step 1",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in:\n%s", want, joined)
		}
	}
}

func TestValidatePipelineEmpty(t *testing.T) {
	errs := ValidatePipeline(&types.PipelineRequest{})
	if len(errs) != 1 || !strings.Contains(errs[0], "no steps") {
		t.Errorf("unexpected errors: %v", errs)
	}
}
