package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/objspace/orchestrator/pkg/types"
)

const completenessSystemPrompt = "You decide whether a set of collected workflow results is sufficient " +
	"to proceed. Respond with only the single word true or false."

// executeThread aggregates results of previously executed steps. Missing
// steps fail outright in deterministic mode; in llm mode the oracle decides
// whether the available results suffice.
func (d *Dispatcher) executeThread(ctx context.Context, ectx *ExecContext, cfg *types.ThreadConfig) (string, string, error) {
	instructionText := fmt.Sprintf("Thread: collect results from steps %s as %s",
		joinInts(cfg.CollectFromSteps), cfg.OutputFormat)

	var collected []types.StepResult
	var missing []int
	for _, sn := range cfg.CollectFromSteps {
		if result := ectx.ResultForStep(sn); result != nil {
			collected = append(collected, *result)
		} else {
			missing = append(missing, sn)
		}
	}

	if len(missing) > 0 {
		switch cfg.CompletionCheck {
		case types.CheckLLM:
			ok, err := d.checkCompleteness(ctx, ectx, collected, missing)
			if err != nil {
				msg := fmt.Sprintf("thread completeness check failed: %v", err)
				ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindFatalError)
				return instructionText, "", err
			}
			if !ok {
				msg := fmt.Sprintf("thread results incomplete: missing step %s", joinInts(missing))
				ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindValidationError)
				return instructionText, "", fmt.Errorf("%s", msg)
			}
			ectx.Log("warn", fmt.Sprintf("thread proceeding without step %s (completeness check passed)",
				joinInts(missing)), ectx.StepNumber)
		default:
			msg := fmt.Sprintf("thread results incomplete: missing step %s", joinInts(missing))
			ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindValidationError)
			return instructionText, "", fmt.Errorf("%s", msg)
		}
	}

	output, err := formatThread(collected, cfg.OutputFormat)
	if err != nil {
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, err.Error(), KindFatalError)
		return instructionText, "", err
	}
	return instructionText, output, nil
}

// checkCompleteness asks the oracle whether the collected results are
// sufficient despite the missing steps.
func (d *Dispatcher) checkCompleteness(ctx context.Context, ectx *ExecContext, collected []types.StepResult, missing []int) (bool, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Steps %s have not produced results. The following results are available:\n\n", joinInts(missing))
	for _, r := range collected {
		fmt.Fprintf(&prompt, "[Step %d] %s\n\n", r.StepNumber, r.ResultText)
	}
	prompt.WriteString("Are these results sufficient to proceed with aggregation?")

	answer, err := d.oracle.Complete(ctx, ectx.Provider, ectx.Model, completenessSystemPrompt, prompt.String())
	if err != nil {
		return false, fmt.Errorf("oracle completion: %w", err)
	}
	return resolveBoolean(answer, ectx, ectx.StepNumber), nil
}

// formatThread renders collected results in the configured output format.
func formatThread(collected []types.StepResult, format types.ThreadOutputFormat) (string, error) {
	switch format {
	case types.ThreadFormatJSON:
		entries := make([]map[string]interface{}, 0, len(collected))
		for _, r := range collected {
			entries = append(entries, map[string]interface{}{
				"stepNumber": r.StepNumber,
				"result":     r.ResultText,
			})
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal thread output: %w", err)
		}
		return string(data), nil

	case types.ThreadFormatMarkdown:
		var out strings.Builder
		for i, r := range collected {
			if i > 0 {
				out.WriteString("\n\n")
			}
			fmt.Fprintf(&out, "## Step %d\n\n%s", r.StepNumber, r.ResultText)
		}
		return out.String(), nil

	case types.ThreadFormatNumbered:
		var out strings.Builder
		for i, r := range collected {
			if i > 0 {
				out.WriteString("\n\n")
			}
			fmt.Fprintf(&out, "%d. [Step %d] %s", i+1, r.StepNumber, r.ResultText)
		}
		return out.String(), nil

	default:
		return "", fmt.Errorf("unknown thread output format %q", format)
	}
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ", ")
}
