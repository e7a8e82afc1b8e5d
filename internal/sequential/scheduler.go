// Package sequential implements the queue-driven branching scheduler: a
// single-flow walk over the instruction array honoring conditional jumps,
// with cycle prevention via an executed set.
package sequential

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/objspace/orchestrator/internal/metrics"
	"github.com/objspace/orchestrator/internal/notify"
	"github.com/objspace/orchestrator/internal/steps"
	"github.com/objspace/orchestrator/pkg/types"
)

// Config holds the scheduler's per-step budgets. Endpoint, router, and
// agent steps apply their own inner retry budget on top of the step-level
// retries here, so total attempts multiply.
type Config struct {
	// StepTimeout bounds a single dispatch attempt.
	StepTimeout time.Duration

	// ConditionTimeout bounds a single condition evaluation.
	ConditionTimeout time.Duration

	// MaxRetries is the number of step-level retries after the first
	// attempt, with exponential backoff starting at RetryDelay.
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		StepTimeout:      5 * time.Minute,
		ConditionTimeout: 2 * time.Minute,
		MaxRetries:       3,
		RetryDelay:       time.Second,
	}
}

// Request describes one sequential run.
type Request struct {
	RunID        string
	Namespace    string
	Context      string
	Instructions []types.Instruction
	Provider     string
	Model        string
}

// Scheduler executes sequential runs. Safe for concurrent use; each run
// owns its execution context.
type Scheduler struct {
	dispatcher *steps.Dispatcher
	notifier   notify.Notifier
	logger     *slog.Logger
	cfg        Config
}

// New creates a sequential scheduler.
func New(dispatcher *steps.Dispatcher, notifier notify.Notifier, cfg Config, logger *slog.Logger) *Scheduler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 5 * time.Minute
	}
	if cfg.ConditionTimeout <= 0 {
		cfg.ConditionTimeout = 2 * time.Minute
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	return &Scheduler{dispatcher: dispatcher, notifier: notifier, logger: logger, cfg: cfg}
}

// Execute walks the instruction array until the queue drains or a step
// fails. The result always carries a FinalizedAt timestamp; callers must
// inspect Errors to decide success.
func (s *Scheduler) Execute(ctx context.Context, req *Request) *types.WorkflowResult {
	start := time.Now().UTC()
	ectx := steps.NewExecContext(req.RunID, req.Provider, req.Model, req.Context, s.logger)

	result := &types.WorkflowResult{
		RunID:           req.RunID,
		OriginalContext: req.Context,
		Provider:        req.Provider,
		Model:           req.Model,
		StartedAt:       start,
	}

	finalize := func() *types.WorkflowResult {
		result.Steps = ectx.Results
		result.Errors = ectx.Errors
		result.Logs = ectx.Logs
		result.FinalizedAt = time.Now().UTC()

		status := "succeeded"
		event := types.EventWorkflowCompleted
		data := map[string]interface{}{
			"status":          "completed",
			"steps_completed": len(result.Steps),
			"final_result":    notify.TruncateFinal(result.FinalText()),
		}
		if !result.Succeeded() {
			status = "failed"
			event = types.EventWorkflowFailed
			data = map[string]interface{}{
				"status":          "failed",
				"steps_completed": len(result.Steps),
				"error":           result.Errors[len(result.Errors)-1].Message,
			}
		}
		metrics.WorkflowsTotal.WithLabelValues(status).Inc()
		metrics.WorkflowDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
		s.notifier.Notify(ctx, event, req.RunID, req.Namespace, data)
		return result
	}

	metrics.WorkflowsActive.Inc()
	defer metrics.WorkflowsActive.Dec()

	// Structural validation is fail-fast: nothing executes on a malformed
	// instruction array, regardless of which entry point built the request.
	if err := types.ValidateInstructions(req.Instructions); err != nil {
		ectx.RecordError(0, 0, err.Error(), steps.KindValidationError)
		return finalize()
	}

	s.notifier.Notify(ctx, types.EventWorkflowStarted, req.RunID, req.Namespace, map[string]interface{}{
		"total_steps": len(req.Instructions),
		"status":      "running",
	})

	edges := buildEdges(req.Instructions)
	executed := make(map[int]bool)
	queue := []int{0}
	stepNumber := 0

	for len(queue) > 0 {
		index := queue[0]
		queue = queue[1:]

		if index < 0 || index >= len(req.Instructions) || executed[index] {
			continue
		}
		executed[index] = true
		stepNumber++

		inst := &req.Instructions[index]
		ectx.StepNumber = stepNumber
		ectx.InstructionIndex = index

		s.notifier.Notify(ctx, types.EventStepStarted, req.RunID, req.Namespace, map[string]interface{}{
			"step_number":       stepNumber,
			"instruction_index": index,
			"kind":              string(inst.Kind),
			"status":            "running",
		})

		stepStart := time.Now().UTC()
		instructionText, resultText, err := s.dispatchWithRetry(ctx, ectx, inst)
		stepDuration := time.Since(stepStart)
		metrics.StepDuration.WithLabelValues(string(inst.Kind)).Observe(stepDuration.Seconds())

		if err != nil {
			metrics.StepsTotal.WithLabelValues(string(inst.Kind), "failed").Inc()
			s.notifier.Notify(ctx, types.EventStepFailed, req.RunID, req.Namespace, map[string]interface{}{
				"step_number":       stepNumber,
				"instruction_index": index,
				"status":            "failed",
				"error":             err.Error(),
			})
			return finalize()
		}
		metrics.StepsTotal.WithLabelValues(string(inst.Kind), "succeeded").Inc()

		stepResult := types.StepResult{
			StepNumber:       stepNumber,
			InstructionIndex: index,
			InstructionText:  instructionText,
			ResultText:       resultText,
			ProcessedAt:      stepStart,
			DurationMS:       stepDuration.Milliseconds(),
			BranchTaken:      types.BranchSequential,
		}

		if cond := inst.Condition; cond != nil {
			verdict, ok := s.evaluateCondition(ctx, ectx, cond, &stepResult)
			if !ok {
				ectx.AppendResult(stepResult)
				return finalize()
			}

			stepResult.ConditionEvaluated = true
			stepResult.ConditionResult = verdict
			if verdict {
				stepResult.BranchTaken = types.BranchTrue
				queue = append(queue, edges[index].onTrue...)
			} else {
				stepResult.BranchTaken = types.BranchFalse
				queue = append(queue, edges[index].onFalse...)
			}
			metrics.ConditionEvaluations.WithLabelValues(fmt.Sprintf("%t", verdict)).Inc()
		} else {
			queue = append(queue, edges[index].next...)
		}

		ectx.AppendResult(stepResult)

		s.notifier.Notify(ctx, types.EventStepCompleted, req.RunID, req.Namespace, map[string]interface{}{
			"step_number":       stepNumber,
			"instruction_index": index,
			"status":            "completed",
			"branch_taken":      stepResult.BranchTaken,
			"result":            notify.TruncateOutput(resultText),
		})
	}

	return finalize()
}

// dispatchWithRetry runs one dispatch under the step budget, retrying with
// exponential backoff. Errors recorded during attempts that are later
// retried are dropped so the error list reflects only the final failure.
func (s *Scheduler) dispatchWithRetry(ctx context.Context, ectx *steps.ExecContext, inst *types.Instruction) (string, string, error) {
	delay := s.cfg.RetryDelay
	var instructionText, resultText string
	var err error

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			ectx.Log("warn", fmt.Sprintf("retrying step %d (attempt %d of %d)",
				ectx.StepNumber, attempt+1, s.cfg.MaxRetries+1), ectx.StepNumber)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return instructionText, "", ctx.Err()
			}
			delay *= 2
		}

		errorsBefore := len(ectx.Errors)

		stepCtx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
		instructionText, resultText, err = s.dispatcher.Dispatch(stepCtx, ectx, inst)
		cancel()

		if err == nil {
			return instructionText, resultText, nil
		}
		if ctx.Err() != nil {
			return instructionText, "", err
		}
		if attempt < s.cfg.MaxRetries {
			ectx.Errors = ectx.Errors[:errorsBefore]
		}
	}

	return instructionText, "", err
}

// evaluateCondition resolves the subject result and asks the evaluator for
// a verdict. Returns ok=false when the run must halt: a missing
// evaluateAfterStep reference or an oracle failure.
func (s *Scheduler) evaluateCondition(ctx context.Context, ectx *steps.ExecContext, cond *types.Condition, current *types.StepResult) (bool, bool) {
	subjectText := current.ResultText
	subjectStep := current.StepNumber

	if cond.EvaluateAfterStep != nil {
		ref := ectx.ResultForStep(*cond.EvaluateAfterStep)
		if ref == nil {
			msg := fmt.Sprintf("condition references step %d which has not executed", *cond.EvaluateAfterStep)
			ectx.RecordError(current.StepNumber, current.InstructionIndex, msg, steps.KindValidationError)
			return false, false
		}
		subjectText = ref.ResultText
		subjectStep = ref.StepNumber
	}

	condCtx, cancel := context.WithTimeout(ctx, s.cfg.ConditionTimeout)
	defer cancel()

	verdict, err := s.dispatcher.EvaluateCondition(condCtx, ectx, cond.Expression, subjectText, subjectStep)
	if err != nil {
		return false, false
	}
	return verdict, true
}
