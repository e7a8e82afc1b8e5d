package steps

import (
	"context"
	"fmt"
	"strings"
)

const conditionSystemPrompt = "You are a condition evaluator. Evaluate the condition against the given " +
	"text and respond with only the single word true or false."

// EvaluateCondition asks the oracle whether expression holds for
// subjectText. subjectStep is the 1-indexed step number whose result is
// being judged, used for logging only.
func (d *Dispatcher) EvaluateCondition(ctx context.Context, ectx *ExecContext, expression, subjectText string, subjectStep int) (bool, error) {
	prompt := fmt.Sprintf("Condition: %s\n\nEvaluate against this result:\n%s", expression, subjectText)

	answer, err := d.oracle.Complete(ctx, ectx.Provider, ectx.Model, conditionSystemPrompt, prompt)
	if err != nil {
		msg := fmt.Sprintf("condition evaluation failed: %v", err)
		ectx.RecordError(subjectStep, ectx.InstructionIndex, msg, KindConditionError)
		return false, fmt.Errorf("oracle completion: %w", err)
	}

	return resolveBoolean(answer, ectx, subjectStep), nil
}

// resolveBoolean maps an oracle answer to a boolean. An answer containing
// "true" and not "false" is true; one containing "false" is false; anything
// else logs a warning and defaults to false. The conservative default keeps
// ambiguous answers from triggering branches.
func resolveBoolean(answer string, ectx *ExecContext, stepNumber int) bool {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	normalized = strings.Trim(normalized, `"'.`)

	hasTrue := strings.Contains(normalized, "true")
	hasFalse := strings.Contains(normalized, "false")

	switch {
	case hasTrue && !hasFalse:
		return true
	case hasFalse:
		return false
	default:
		ectx.Log("warn", fmt.Sprintf("condition answer %q is neither true nor false, defaulting to false", answer), stepNumber)
		return false
	}
}
