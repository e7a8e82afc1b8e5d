package steps

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/objspace/orchestrator/internal/gateway"
	"github.com/objspace/orchestrator/pkg/types"
)

// executeEndpoint delegates the call to the gateway. Transport failure or an
// application-level success:false are both hard failures.
func (d *Dispatcher) executeEndpoint(ctx context.Context, ectx *ExecContext, cfg *types.EndpointConfig) (string, string, error) {
	instructionText := cfg.Description
	if instructionText == "" {
		instructionText = fmt.Sprintf("Endpoint call: %s %s", cfg.Method, cfg.EndpointURL)
	}

	body, err := stringifyBody(cfg.Body, cfg.APIURL)
	if err != nil {
		msg := fmt.Sprintf("endpoint body is not serializable: %v", err)
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindEndpointError)
		return instructionText, "", fmt.Errorf("%s", msg)
	}

	result, err := d.gateway.Invoke(ctx, &gateway.Request{
		URL:          cfg.EndpointURL,
		Method:       cfg.Method,
		Headers:      cfg.Headers,
		Body:         body,
		Retries:      cfg.Retries,
		RetryDelayMS: cfg.RetryDelayMS,
		TimeoutMS:    cfg.TimeoutMS,
	})
	if err != nil {
		msg := fmt.Sprintf("endpoint invocation failed: %v", err)
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindEndpointError)
		return instructionText, "", err
	}
	if !result.Success {
		msg := fmt.Sprintf("endpoint call failed: %s", result.Error)
		ectx.RecordError(ectx.StepNumber, ectx.InstructionIndex, msg, KindEndpointError)
		return instructionText, "", fmt.Errorf("%s", msg)
	}

	return instructionText, result.Body, nil
}

// stringifyBody renders the configured body as a string. Non-string bodies
// are JSON-encoded; object bodies additionally carry the upstream apiUrl so
// the receiving service knows its target.
func stringifyBody(body interface{}, apiURL string) (string, error) {
	switch v := body.(type) {
	case nil:
		if apiURL == "" {
			return "", nil
		}
		data, err := json.Marshal(map[string]string{"apiUrl": apiURL})
		return string(data), err
	case string:
		return v, nil
	case map[string]interface{}:
		if apiURL != "" {
			merged := make(map[string]interface{}, len(v)+1)
			for k, val := range v {
				merged[k] = val
			}
			merged["apiUrl"] = apiURL
			v = merged
		}
		data, err := json.Marshal(v)
		return string(data), err
	default:
		data, err := json.Marshal(v)
		return string(data), err
	}
}
