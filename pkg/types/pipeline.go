package types

// SelectionPrefix marks a dependency resolved against a stored selection
// list instead of a produced output. The full name is the prefix plus an
// 8-character hex id.
const SelectionPrefix = "selection_"

// IsSelectionDependency reports whether dep names a selection gate.
func IsSelectionDependency(dep string) bool {
	return len(dep) == len(SelectionPrefix)+8 && dep[:len(SelectionPrefix)] == SelectionPrefix
}

// InputPrep describes how a pipeline step builds its request payload.
// Mapping values may contain {{variable}} placeholders resolved against the
// outputs produced so far.
type InputPrep struct {
	Type    string                 `json:"type,omitempty"`
	Mapping map[string]interface{} `json:"mapping,omitempty"`
}

// PipelineStep is one node of a dependency-graph workflow. USID is an
// 8-character unique step id; Dependencies name outputs of other steps (or
// selection gates); Outputs are the names this step publishes.
type PipelineStep struct {
	StepName     string            `json:"step_name"`
	USID         string            `json:"usid"`
	ServiceURL   string            `json:"service_url"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Outputs      []string          `json:"outputs"`
	InputPrep    InputPrep         `json:"input_prep_config,omitempty"`
	Description  string            `json:"description,omitempty"`
}

// ErrorHandling holds per-run retry overrides for pipeline steps.
type ErrorHandling struct {
	MaxRetries *int `json:"max_retries,omitempty"`
	RetryDelay *int `json:"retry_delay,omitempty"`
}

// Timeouts holds per-run timeout overrides, in seconds.
type Timeouts struct {
	StepTimeout *int `json:"step_timeout,omitempty"`
}

// Notifications holds the per-run webhook target for lifecycle events.
type Notifications struct {
	WebhookURL string `json:"webhook_url,omitempty"`
}

// PipelineSettings carries optional per-run overrides of the engine
// defaults.
type PipelineSettings struct {
	ErrorHandling *ErrorHandling `json:"error_handling,omitempty"`
	Timeouts      *Timeouts      `json:"timeouts,omitempty"`
	Notifications *Notifications `json:"notifications,omitempty"`
}

// PipelineRequest is the wire payload for a dependency-graph run.
type PipelineRequest struct {
	WorkflowID    string            `json:"workflow_id,omitempty"`
	Namespace     string            `json:"namespace,omitempty"`
	WorkflowName  string            `json:"workflow_name,omitempty"`
	OriginalInput interface{}       `json:"original_input,omitempty"`
	InputData     map[string]string `json:"input_data,omitempty"`
	Steps         []PipelineStep    `json:"steps"`
	Settings      *PipelineSettings `json:"settings,omitempty"`
}

// PipelineResult is the terminal state of a dependency-graph run. On success
// FinalResult follows the final_result > result > all-outputs selection rule;
// on failure PartialOutputs preserves whatever completed steps produced.
type PipelineResult struct {
	Success        bool                   `json:"success"`
	WorkflowID     string                 `json:"workflow_id"`
	Namespace      string                 `json:"namespace"`
	ExecutionTime  float64                `json:"execution_time"`
	StepsCompleted int                    `json:"steps_completed"`
	StepsFailed    int                    `json:"steps_failed,omitempty"`
	StepsAborted   int                    `json:"steps_aborted"`
	FinalResult    interface{}            `json:"final_result,omitempty"`
	AllOutputs     map[string]interface{} `json:"all_outputs,omitempty"`
	PartialOutputs map[string]interface{} `json:"partial_outputs,omitempty"`
	Error          string                 `json:"error,omitempty"`
}
