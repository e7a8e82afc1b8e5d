package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/objspace/orchestrator/internal/gateway"
	"github.com/objspace/orchestrator/pkg/types"
)

const routerSystemPrompt = "You are a routing assistant. Pick exactly one option from the list and " +
	"respond with only its id, nothing else."

// routeDecision records how an option was chosen.
type routeDecision struct {
	Decision  string `json:"decision"`
	MatchedBy string `json:"matchedBy"`
	Result    string `json:"result"`
}

// executeRouter asks the oracle to pick one option, resolves the answer
// against the option list, and invokes the chosen option's endpoint.
func (d *Dispatcher) executeRouter(ctx context.Context, ectx *ExecContext, cfg *types.RouterConfig) (string, string, error) {
	instructionText := cfg.Description
	if instructionText == "" {
		instructionText = "Router decision"
	}

	answer, err := d.decide(ctx, ectx, cfg.EvaluationPrompt, cfg.Options, "")
	if err != nil {
		msg := fmt.Sprintf("router decision failed: %v", err)
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindRouterLLM)
		return instructionText, "", err
	}

	option, matchedBy := resolveOption(answer, cfg.Options, cfg.DefaultOption)
	if option == nil {
		msg := fmt.Sprintf("router could not resolve option from answer %q", answer)
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindRouterSelection)
		return instructionText, "", fmt.Errorf("%s", msg)
	}
	ectx.Log("info", fmt.Sprintf("router selected option %q (%s match)", option.ID, matchedBy), ectx.StepNumber)

	body, err := d.invokeOption(ctx, option, cfg.Retries, cfg.RetryDelayMS, cfg.TimeoutMS, ectx.PreviousResult)
	if err != nil {
		msg := fmt.Sprintf("router option %q invocation failed: %v", option.ID, err)
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindRouterEndpoint)
		return instructionText, "", err
	}

	wrapped, err := json.Marshal(routeDecision{Decision: option.ID, MatchedBy: matchedBy, Result: body})
	if err != nil {
		return instructionText, "", fmt.Errorf("marshal decision: %w", err)
	}
	return instructionText, string(wrapped), nil
}

// decide prompts the oracle with the evaluation prompt, the enumerated
// options, and the previous step result. extraOption, when non-empty, is
// appended as an implicit additional choice.
func (d *Dispatcher) decide(ctx context.Context, ectx *ExecContext, evaluationPrompt string, options []types.RouterOption, extraOption string) (string, error) {
	var prompt strings.Builder
	prompt.WriteString(evaluationPrompt)
	prompt.WriteString("\n\nOptions:\n")
	for _, opt := range options {
		if opt.Description != "" {
			fmt.Fprintf(&prompt, "- %s: %s\n", opt.ID, opt.Description)
		} else {
			fmt.Fprintf(&prompt, "- %s\n", opt.ID)
		}
	}
	if extraOption != "" {
		fmt.Fprintf(&prompt, "- %s\n", extraOption)
	}
	if ectx.PreviousResult != "" {
		fmt.Fprintf(&prompt, "\nPrevious step result:\n%s", ectx.PreviousResult)
	}

	answer, err := d.oracle.Complete(ctx, ectx.Provider, ectx.Model, routerSystemPrompt, prompt.String())
	if err != nil {
		return "", fmt.Errorf("oracle completion: %w", err)
	}
	return answer, nil
}

// resolveOption maps a normalized oracle answer to an option: exact id
// match, then substring match, then the configured default, then the first
// option. Returns nil only when the option list is empty.
func resolveOption(answer string, options []types.RouterOption, defaultID string) (*types.RouterOption, string) {
	if len(options) == 0 {
		return nil, ""
	}

	normalized := normalizeAnswer(answer)

	for i := range options {
		if normalizeAnswer(options[i].ID) == normalized {
			return &options[i], "exact"
		}
	}
	for i := range options {
		if strings.Contains(normalized, normalizeAnswer(options[i].ID)) {
			return &options[i], "substring"
		}
	}
	if defaultID != "" {
		for i := range options {
			if options[i].ID == defaultID {
				return &options[i], "default"
			}
		}
	}
	return &options[0], "first"
}

func normalizeAnswer(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(s, "\"'`.")
}

// invokeOption calls the chosen option's endpoint. Targets under the
// configured mock base are called directly; the gateway host rejects nested
// calls back into itself.
func (d *Dispatcher) invokeOption(ctx context.Context, option *types.RouterOption, retries, retryDelayMS, timeoutMS int, previousResult string) (string, error) {
	body, err := stringifyBody(option.Body, "")
	if err != nil {
		return "", fmt.Errorf("option body is not serializable: %w", err)
	}
	if body == "" && previousResult != "" {
		data, merr := json.Marshal(map[string]string{"input": previousResult})
		if merr != nil {
			return "", fmt.Errorf("marshal option input: %w", merr)
		}
		body = string(data)
	}

	if d.mockBaseURL != "" && strings.HasPrefix(option.APIURL, d.mockBaseURL) {
		return d.invokeDirect(ctx, option, body)
	}

	result, err := d.gateway.Invoke(ctx, &gateway.Request{
		URL:          option.APIURL,
		Method:       option.Method,
		Headers:      option.Headers,
		Body:         body,
		Retries:      retries,
		RetryDelayMS: retryDelayMS,
		TimeoutMS:    timeoutMS,
	})
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", fmt.Errorf("%s", result.Error)
	}
	return result.Body, nil
}

// invokeDirect performs a plain HTTP call, bypassing the gateway.
func (d *Dispatcher) invokeDirect(ctx context.Context, option *types.RouterOption, body string) (string, error) {
	method := strings.ToUpper(option.Method)
	if method == "" {
		method = http.MethodPost
	}

	var reader io.Reader
	if body != "" && method != http.MethodGet {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, option.APIURL, reader)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range option.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.direct.Do(req)
	if err != nil {
		return "", fmt.Errorf("direct call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	return string(respBody), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
