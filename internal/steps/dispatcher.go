// Package steps executes individual workflow instructions and evaluates
// branching conditions.
package steps

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/objspace/orchestrator/internal/gateway"
	"github.com/objspace/orchestrator/pkg/types"
)

// Error kinds recorded on the execution context before a dispatch failure
// propagates.
const (
	KindEndpointError    = "endpoint"
	KindRouterLLM        = "router-llm"
	KindRouterSelection  = "router-selection"
	KindRouterEndpoint   = "router-endpoint"
	KindAgentLLM         = "agent-llm"
	KindAgentLLMFallback = "agent-llm-fallback"
	KindAgentEndpoint    = "agent-endpoint"
	KindAgentNoTools     = "agent-no-tools"
	KindConditionError   = "condition"
	KindValidationError  = "validation"
	KindFatalError       = "fatal"
)

// Completer is the oracle surface the dispatcher needs.
type Completer interface {
	Complete(ctx context.Context, provider, model, systemPrompt, userPrompt string) (string, error)
}

// Dispatcher executes one instruction at a time. Any failure is fatal to
// the run; there is no automatic continuation past a failed step.
type Dispatcher struct {
	oracle  Completer
	gateway gateway.Invoker
	logger  *slog.Logger

	// mockBaseURL marks same-origin targets that router and agent steps
	// call directly instead of through the gateway. Nested gateway calls
	// to the host's own mock endpoints are rejected upstream.
	mockBaseURL string
	direct      *http.Client
}

// NewDispatcher creates a step dispatcher.
func NewDispatcher(o Completer, gw gateway.Invoker, mockBaseURL string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		oracle:      o,
		gateway:     gw,
		logger:      logger,
		mockBaseURL: strings.TrimSuffix(mockBaseURL, "/"),
		direct:      &http.Client{Timeout: 2 * time.Minute},
	}
}

// Dispatch executes inst and returns the instruction text shown in results
// plus the produced result text. The error kind is recorded on ectx before
// any error returns.
func (d *Dispatcher) Dispatch(ctx context.Context, ectx *ExecContext, inst *types.Instruction) (string, string, error) {
	switch inst.Kind {
	case types.KindSimple, types.KindConditional:
		return d.executeSimple(ctx, ectx, inst)
	case types.KindEndpoint:
		return d.executeEndpoint(ctx, ectx, inst.Endpoint)
	case types.KindThread:
		return d.executeThread(ctx, ectx, inst.Thread)
	case types.KindRouter:
		return d.executeRouter(ctx, ectx, inst.Router)
	case types.KindAgent:
		return d.executeAgent(ctx, ectx, inst.Agent)
	default:
		msg := fmt.Sprintf("unknown instruction kind %q", inst.Kind)
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindValidationError)
		return "", "", fmt.Errorf("%s", msg)
	}
}

const simpleSystemPrompt = "You are a workflow execution assistant. Carry out the given instruction " +
	"and respond with the result only, without commentary."

// executeSimple builds a role prompt from the instruction text and the
// previous result, then delegates to the oracle.
func (d *Dispatcher) executeSimple(ctx context.Context, ectx *ExecContext, inst *types.Instruction) (string, string, error) {
	var prompt strings.Builder
	if ectx.FirstStep {
		if ectx.OriginalContext != "" {
			fmt.Fprintf(&prompt, "Context:\n%s\n\n", ectx.OriginalContext)
		}
	} else if ectx.PreviousResult != "" {
		fmt.Fprintf(&prompt, "Previous step result:\n%s\n\n", ectx.PreviousResult)
	}
	fmt.Fprintf(&prompt, "Instruction:\n%s", inst.Text)

	result, err := d.oracle.Complete(ctx, ectx.Provider, ectx.Model, simpleSystemPrompt, prompt.String())
	if err != nil {
		msg := fmt.Sprintf("step %d failed: %v", ectx.StepNumber, err)
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindFatalError)
		return inst.Text, "", fmt.Errorf("oracle completion: %w", err)
	}

	return inst.Text, result, nil
}
