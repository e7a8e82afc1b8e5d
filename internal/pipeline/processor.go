package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/objspace/orchestrator/internal/gateway"
	"github.com/objspace/orchestrator/pkg/types"
)

// budget is the per-step retry and timeout envelope resolved from run
// settings.
type budget struct {
	maxRetries   int
	retryDelayMS int
	timeoutMS    int
}

// processor executes one pipeline step over the call gateway and extracts
// its named outputs from the response.
type processor struct {
	gateway gateway.Invoker
	logger  *slog.Logger
}

// process invokes the step's service and returns its outputs keyed by the
// step's declared output names. The gateway handles retry classification:
// client errors are terminal, server and network errors consume the retry
// budget.
func (p *processor) process(ctx context.Context, step *types.PipelineStep, outputs map[string]interface{}, b budget) (map[string]interface{}, error) {
	payload := buildPayload(step, outputs, p.logger)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("step %q: encode payload: %w", step.StepName, err)
	}

	res, err := p.gateway.Invoke(ctx, &gateway.Request{
		URL:          step.ServiceURL,
		Method:       step.Method,
		Headers:      step.Headers,
		Body:         string(body),
		Retries:      b.maxRetries,
		RetryDelayMS: b.retryDelayMS,
		TimeoutMS:    b.timeoutMS,
	})
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", step.StepName, err)
	}
	if !res.Success {
		return nil, fmt.Errorf("step %q failed: %s", step.StepName, res.Error)
	}

	return extractOutputs(step, res.Body), nil
}

// buildPayload assembles the request body. A mapping in input_prep_config is
// substituted against the outputs so far; without one the step receives its
// data dependencies by name.
func buildPayload(step *types.PipelineStep, outputs map[string]interface{}, logger *slog.Logger) map[string]interface{} {
	if len(step.InputPrep.Mapping) > 0 {
		substituted, _ := Substitute(step.InputPrep.Mapping, outputs, logger).(map[string]interface{})
		return substituted
	}

	payload := make(map[string]interface{})
	for _, dep := range step.Dependencies {
		if types.IsSelectionDependency(dep) {
			continue
		}
		if v, ok := outputs[dep]; ok {
			payload[dep] = v
		}
	}
	return payload
}

// extractOutputs maps a service response onto the step's output names. LLM
// provider shapes are recognized directly; any other JSON object is matched
// by output name, falling back to the whole response.
func extractOutputs(step *types.PipelineStep, body string) map[string]interface{} {
	var parsed interface{}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		parsed = body
	}

	result := make(map[string]interface{}, len(step.Outputs))
	obj, _ := parsed.(map[string]interface{})

	if text, ok := anthropicText(obj); ok {
		for _, name := range step.Outputs {
			result[name] = text
		}
		return result
	}

	if content, ok := openAIContent(obj); ok {
		var structured map[string]interface{}
		if err := json.Unmarshal([]byte(content), &structured); err == nil {
			obj = structured
		} else {
			for _, name := range step.Outputs {
				result[name] = content
			}
			return result
		}
		parsed = obj
	}

	for _, name := range step.Outputs {
		if obj != nil {
			if v, ok := obj[name]; ok {
				result[name] = v
				continue
			}
		}
		result[name] = parsed
	}
	return result
}

func anthropicText(obj map[string]interface{}) (string, bool) {
	if obj == nil {
		return "", false
	}
	content, ok := obj["content"].([]interface{})
	if !ok || len(content) == 0 {
		return "", false
	}
	block, ok := content[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	text, ok := block["text"].(string)
	return text, ok
}

func openAIContent(obj map[string]interface{}) (string, bool) {
	if obj == nil {
		return "", false
	}
	choices, ok := obj["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return "", false
	}
	choice, ok := choices[0].(map[string]interface{})
	if !ok {
		return "", false
	}
	message, ok := choice["message"].(map[string]interface{})
	if !ok {
		return "", false
	}
	content, ok := message["content"].(string)
	return content, ok
}
