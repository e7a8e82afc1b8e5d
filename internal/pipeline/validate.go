package pipeline

import (
	"fmt"
	"strings"

	"github.com/objspace/orchestrator/pkg/types"
)

// usidLength is the fixed length of a step's unique id.
const usidLength = 8

var allowedMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// ValidatePipeline checks the request's structural invariants and returns
// every violation found, one message per problem. Unlike instruction
// validation this accumulates instead of failing fast so a caller can fix a
// whole payload in one round trip.
func ValidatePipeline(req *types.PipelineRequest) []string {
	if len(req.Steps) == 0 {
		return []string{"pipeline has no steps"}
	}

	var errs []string
	usids := make(map[string]int, len(req.Steps))

	for i, step := range req.Steps {
		label := step.StepName
		if label == "" {
			label = step.USID
		}
		add := func(msg string) {
			errs = append(errs, fmt.Sprintf("step %d (%s): %s", i+1, label, msg))
		}

		if step.StepName == "" {
			add("step_name is required")
		}
		if step.USID == "" {
			add("usid is required")
		} else if len(step.USID) != usidLength {
			add(fmt.Sprintf("usid must be %d characters, got %d", usidLength, len(step.USID)))
		}
		if step.ServiceURL == "" {
			add("service_url is required")
		}
		if m := strings.ToUpper(step.Method); m == "" {
			add("method is required")
		} else if !allowedMethods[m] {
			add(fmt.Sprintf("method %q is not allowed", step.Method))
		}
		if len(step.Outputs) == 0 {
			add("at least one output is required")
		}
		for _, out := range step.Outputs {
			if out == "" {
				add("output names must be non-empty")
				break
			}
		}

		if step.USID != "" {
			if prev, dup := usids[step.USID]; dup {
				add(fmt.Sprintf("usid duplicates step %d", prev+1))
			} else {
				usids[step.USID] = i
			}
		}
	}

	return errs
}
