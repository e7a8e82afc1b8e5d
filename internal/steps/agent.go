package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/objspace/orchestrator/pkg/types"
)

// noToolOption is the implicit choice an agent's decision prompt always
// includes alongside the configured tools.
const noToolOption = "none"

// executeAgent runs the router decision pattern with an implicit "no tool
// needed" choice. On that choice the step either passes the previous result
// through (skip) or asks the oracle to answer directly (llm).
func (d *Dispatcher) executeAgent(ctx context.Context, ectx *ExecContext, cfg *types.AgentConfig) (string, string, error) {
	instructionText := cfg.Description
	if instructionText == "" {
		instructionText = "Agent decision"
	}

	extra := fmt.Sprintf("%s: no tool is needed for this task", noToolOption)
	answer, err := d.decide(ctx, ectx, cfg.DecisionPrompt, cfg.AvailableTools, extra)
	if err != nil {
		msg := fmt.Sprintf("agent decision failed: %v", err)
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindAgentLLM)
		return instructionText, "", err
	}

	if isNoToolAnswer(answer) {
		return d.agentFallback(ctx, ectx, cfg, instructionText)
	}

	if len(cfg.AvailableTools) == 0 {
		msg := fmt.Sprintf("agent chose a tool from answer %q but no tools are configured", answer)
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindAgentNoTools)
		return instructionText, "", fmt.Errorf("%s", msg)
	}

	tool, matchedBy := resolveOption(answer, cfg.AvailableTools, "")
	ectx.Log("info", fmt.Sprintf("agent selected tool %q (%s match)", tool.ID, matchedBy), ectx.StepNumber)

	body, err := d.invokeOption(ctx, tool, cfg.Retries, cfg.RetryDelayMS, cfg.TimeoutMS, ectx.PreviousResult)
	if err != nil {
		msg := fmt.Sprintf("agent tool %q invocation failed: %v", tool.ID, err)
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindAgentEndpoint)
		return instructionText, "", err
	}

	wrapped, err := json.Marshal(routeDecision{Decision: tool.ID, MatchedBy: matchedBy, Result: body})
	if err != nil {
		return instructionText, "", fmt.Errorf("marshal decision: %w", err)
	}
	return instructionText, string(wrapped), nil
}

// agentFallback handles the "no tool needed" decision.
func (d *Dispatcher) agentFallback(ctx context.Context, ectx *ExecContext, cfg *types.AgentConfig, instructionText string) (string, string, error) {
	switch cfg.FallbackBehavior {
	case types.FallbackLLM:
		var prompt strings.Builder
		prompt.WriteString(cfg.LLMFallbackPrompt)
		if ectx.PreviousResult != "" {
			fmt.Fprintf(&prompt, "\n\nPrevious step result:\n%s", ectx.PreviousResult)
		}

		result, err := d.oracle.Complete(ctx, ectx.Provider, ectx.Model, simpleSystemPrompt, prompt.String())
		if err != nil {
			msg := fmt.Sprintf("agent llm fallback failed: %v", err)
			ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindAgentLLMFallback)
			return instructionText, "", err
		}
		ectx.Log("info", "agent answered directly (llm fallback)", ectx.StepNumber)
		return instructionText, result, nil

	default:
		// skip: pass the previous result through unchanged.
		ectx.Log("info", "agent skipped, passing previous result through", ectx.StepNumber)
		return instructionText, ectx.PreviousResult, nil
	}
}

// isNoToolAnswer reports whether the oracle declined to pick a tool.
func isNoToolAnswer(answer string) bool {
	normalized := normalizeAnswer(answer)
	if normalized == noToolOption {
		return true
	}
	return strings.Contains(normalized, "no tool") || strings.Contains(normalized, "none")
}
