package steps

import (
	"log/slog"
	"time"

	"github.com/objspace/orchestrator/pkg/types"
)

// ExecContext carries per-run execution state through the dispatcher. Each
// run owns exactly one; it is never shared across runs, so the accumulated
// logs and errors always belong to a single workflow.
type ExecContext struct {
	RunID           string
	Provider        string
	Model           string
	OriginalContext string

	// Per-step fields, updated by the scheduler before each dispatch.
	StepNumber       int
	InstructionIndex int
	FirstStep        bool
	PreviousResult   string

	// Results of all steps executed so far, in execution order.
	Results []types.StepResult

	Logs   []types.LogEntry
	Errors []types.RunError

	logger *slog.Logger
	now    func() time.Time
}

// NewExecContext creates the execution context for one run.
func NewExecContext(runID, provider, model, originalContext string, logger *slog.Logger) *ExecContext {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecContext{
		RunID:           runID,
		Provider:        provider,
		Model:           model,
		OriginalContext: originalContext,
		FirstStep:       true,
		logger:          logger,
		now:             time.Now,
	}
}

// Log appends a diagnostic entry and mirrors it to the structured logger.
func (e *ExecContext) Log(level, message string, stepNumber int) {
	e.Logs = append(e.Logs, types.LogEntry{
		Level:      level,
		Message:    message,
		StepNumber: stepNumber,
		Timestamp:  e.now().UTC(),
	})

	attrs := []any{slog.String("run_id", e.RunID)}
	if stepNumber > 0 {
		attrs = append(attrs, slog.Int("step", stepNumber))
	}
	switch level {
	case "error":
		e.logger.Error(message, attrs...)
	case "warn":
		e.logger.Warn(message, attrs...)
	default:
		e.logger.Info(message, attrs...)
	}
}

// RecordError appends a structured error. Kind is one of the dispatcher's
// error kinds and is recorded before the error propagates.
func (e *ExecContext) RecordError(stepNumber, instructionIndex int, message, kind string) {
	e.Errors = append(e.Errors, types.RunError{
		StepNumber:       stepNumber,
		InstructionIndex: instructionIndex,
		Kind:             kind,
		Message:          message,
		Timestamp:        e.now().UTC(),
	})
	e.logger.Error(message,
		slog.String("run_id", e.RunID),
		slog.String("kind", kind),
		slog.Int("step", stepNumber),
		slog.Int("instruction", instructionIndex))
}

// ResultForStep returns the result with the given 1-indexed step number, or
// nil when that step has not executed.
func (e *ExecContext) ResultForStep(stepNumber int) *types.StepResult {
	for i := range e.Results {
		if e.Results[i].StepNumber == stepNumber {
			return &e.Results[i]
		}
	}
	return nil
}

// AppendResult records a completed step and advances the previous-result
// state for the next dispatch.
func (e *ExecContext) AppendResult(result types.StepResult) {
	e.Results = append(e.Results, result)
	e.PreviousResult = result.ResultText
	e.FirstStep = false
}
