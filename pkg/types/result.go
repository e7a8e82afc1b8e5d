package types

import "time"

// Branch labels recorded on a step result.
const (
	BranchTrue       = "true"
	BranchFalse      = "false"
	BranchSequential = "sequential"
)

// StepResult is the record of one executed step in a sequential workflow.
// StepNumber is the 1-indexed position in execution order, which is not the
// same as the instruction's index in the request when branching occurs.
type StepResult struct {
	StepNumber       int       `json:"stepNumber"`
	InstructionIndex int       `json:"instructionIndex"`
	InstructionText  string    `json:"instructionText"`
	ResultText       string    `json:"resultText"`
	ProcessedAt      time.Time `json:"processedAt"`
	DurationMS       int64     `json:"durationMs"`

	ConditionEvaluated bool   `json:"conditionEvaluated"`
	ConditionResult    bool   `json:"conditionResult,omitempty"`
	BranchTaken        string `json:"branchTaken,omitempty"`
}

// RunError is a structured execution error. Kind is one of the dispatcher's
// error kinds (endpoint, router-llm, router-selection, router-endpoint,
// agent-llm, agent-llm-fallback, agent-endpoint, agent-no-tools, condition,
// validation, fatal).
type RunError struct {
	StepNumber       int       `json:"stepNumber,omitempty"`
	InstructionIndex int       `json:"instructionIndex,omitempty"`
	Kind             string    `json:"kind"`
	Message          string    `json:"message"`
	Timestamp        time.Time `json:"timestamp"`
}

// LogEntry is one diagnostic line accumulated during a run.
type LogEntry struct {
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	StepNumber int       `json:"stepNumber,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// WorkflowResult is the terminal state of a sequential run. FinalizedAt is
// always set, including on failure; callers must inspect Errors to decide
// success.
type WorkflowResult struct {
	RunID           string       `json:"runId"`
	OriginalContext string       `json:"originalContext"`
	Provider        string       `json:"provider"`
	Model           string       `json:"model"`
	Steps           []StepResult `json:"steps"`
	Errors          []RunError   `json:"errors,omitempty"`
	Logs            []LogEntry   `json:"logs,omitempty"`
	StartedAt       time.Time    `json:"startedAt"`
	FinalizedAt     time.Time    `json:"finalizedAt"`
}

// Succeeded reports whether the run finished without recorded errors.
func (r *WorkflowResult) Succeeded() bool {
	return len(r.Errors) == 0
}

// FinalText returns the result of the last executed step, or empty when no
// step ran.
func (r *WorkflowResult) FinalText() string {
	if len(r.Steps) == 0 {
		return ""
	}
	return r.Steps[len(r.Steps)-1].ResultText
}
