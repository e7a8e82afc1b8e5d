// Package pipeline implements dependency-graph workflow execution: steps
// declare named outputs and dependencies, the executor orders them
// topologically and runs independent steps concurrently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/objspace/orchestrator/internal/gateway"
	"github.com/objspace/orchestrator/internal/metrics"
	"github.com/objspace/orchestrator/internal/notify"
	"github.com/objspace/orchestrator/internal/statestore"
	"github.com/objspace/orchestrator/pkg/types"
)

// Defaults applied when run settings leave a knob unset.
const (
	defaultMaxRetries     = 2
	defaultRetryDelaySec  = 3
	defaultStepTimeoutSec = 45
)

// Executor runs dependency-graph pipelines. Safe for concurrent use; each
// run owns its output map.
type Executor struct {
	gateway  gateway.Invoker
	store    statestore.Store
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewExecutor creates a pipeline executor. A nil notifier disables
// lifecycle events unless a run carries its own webhook.
func NewExecutor(gw gateway.Invoker, store statestore.Store, notifier notify.Notifier, logger *slog.Logger) *Executor {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{gateway: gw, store: store, notifier: notifier, logger: logger}
}

// Execute validates, orders, and runs the pipeline. Steps whose selection
// gate is unmet are aborted rather than failed, and their dependents abort
// in cascade; the run still succeeds. A failed step stops the run after its
// wave drains and reports partial outputs.
func (e *Executor) Execute(ctx context.Context, req *types.PipelineRequest) *types.PipelineResult {
	start := time.Now()
	if req.WorkflowID == "" {
		req.WorkflowID = uuid.NewString()
	}

	result := &types.PipelineResult{
		WorkflowID: req.WorkflowID,
		Namespace:  req.Namespace,
	}

	notifier := e.notifier
	if req.Settings != nil && req.Settings.Notifications != nil && req.Settings.Notifications.WebhookURL != "" {
		notifier = notify.NewWebhook(req.Settings.Notifications.WebhookURL, e.logger)
	}

	finish := func() *types.PipelineResult {
		result.ExecutionTime = time.Since(start).Seconds()

		status := "succeeded"
		event := types.EventWorkflowCompleted
		data := map[string]interface{}{
			"status":          "completed",
			"steps_completed": result.StepsCompleted,
			"steps_aborted":   result.StepsAborted,
			"final_result":    notify.TruncateOutput(result.FinalResult),
		}
		if !result.Success {
			status = "failed"
			event = types.EventWorkflowFailed
			data = map[string]interface{}{
				"status":          "failed",
				"steps_completed": result.StepsCompleted,
				"error":           result.Error,
			}
		}
		metrics.PipelinesTotal.WithLabelValues(status).Inc()
		metrics.PipelineDuration.WithLabelValues(status).Observe(result.ExecutionTime)
		notifier.Notify(ctx, event, req.WorkflowID, req.Namespace, data)
		return result
	}

	if errs := ValidatePipeline(req); len(errs) > 0 {
		result.Error = "invalid pipeline: " + strings.Join(errs, "; ")
		return finish()
	}

	graph, err := BuildGraph(req.Steps)
	if err != nil {
		result.Error = err.Error()
		return finish()
	}

	outputs := make(map[string]interface{})
	for k, v := range req.InputData {
		outputs[k] = v
	}
	if req.OriginalInput != nil {
		outputs["original_input"] = req.OriginalInput
	}

	b := resolveBudget(req.Settings)
	proc := &processor{gateway: e.gateway, logger: e.logger}

	notifier.Notify(ctx, types.EventWorkflowStarted, req.WorkflowID, req.Namespace, map[string]interface{}{
		"workflow_name": req.WorkflowName,
		"total_steps":   len(req.Steps),
		"status":        "running",
	})

	var mu sync.Mutex
	aborted := make(map[int]bool)
	var runErr error

waves:
	for _, wave := range graph.Waves() {
		g, wctx := errgroup.WithContext(ctx)

		for _, idx := range wave {
			step := &req.Steps[idx]

			if e.upstreamAborted(graph, idx, aborted) {
				aborted[idx] = true
				result.StepsAborted++
				metrics.PipelineStepsTotal.WithLabelValues("aborted").Inc()
				notifier.Notify(ctx, types.EventStepAborted, req.WorkflowID, req.Namespace, map[string]interface{}{
					"step_name": step.StepName,
					"usid":      step.USID,
					"reason":    "upstream step aborted",
				})
				continue
			}

			idx := idx
			g.Go(func() error {
				return e.runStep(wctx, proc, notifier, req, step, idx, b, outputs, aborted, result, &mu)
			})
		}

		if err := g.Wait(); err != nil {
			runErr = err
			break waves
		}
	}

	if runErr != nil {
		result.Success = false
		result.StepsFailed++
		result.Error = runErr.Error()
		result.PartialOutputs = outputs
		return finish()
	}

	result.Success = true
	result.AllOutputs = outputs
	result.FinalResult = selectFinalResult(outputs)
	return finish()
}

// runStep checks gates and dependencies, invokes the step, and publishes
// its outputs to the shared map and the state store.
func (e *Executor) runStep(ctx context.Context, proc *processor, notifier notify.Notifier, req *types.PipelineRequest, step *types.PipelineStep, idx int, b budget, outputs map[string]interface{}, aborted map[int]bool, result *types.PipelineResult, mu *sync.Mutex) error {
	for _, dep := range step.Dependencies {
		if !types.IsSelectionDependency(dep) {
			continue
		}
		reason, err := e.selectionAbortReason(ctx, req.WorkflowID, dep, step.USID)
		if err != nil {
			return fmt.Errorf("step %q: read selection %s: %w", step.StepName, dep, err)
		}
		if reason != "" {
			mu.Lock()
			aborted[idx] = true
			result.StepsAborted++
			mu.Unlock()
			metrics.PipelineStepsTotal.WithLabelValues("aborted").Inc()
			e.logger.Info("step aborted on unmet selection",
				slog.String("workflow_id", req.WorkflowID),
				slog.String("step", step.StepName),
				slog.String("selection", dep),
				slog.String("reason", reason))
			notifier.Notify(ctx, types.EventStepAborted, req.WorkflowID, req.Namespace, map[string]interface{}{
				"step_name": step.StepName,
				"usid":      step.USID,
				"reason":    reason,
			})
			return nil
		}
	}

	mu.Lock()
	snapshot := make(map[string]interface{}, len(outputs))
	for k, v := range outputs {
		snapshot[k] = v
	}
	mu.Unlock()

	for _, dep := range step.Dependencies {
		if types.IsSelectionDependency(dep) {
			continue
		}
		if _, ok := snapshot[dep]; !ok {
			metrics.PipelineStepsTotal.WithLabelValues("failed").Inc()
			return fmt.Errorf("step %q missing dependency %q", step.StepName, dep)
		}
	}

	notifier.Notify(ctx, types.EventStepStarted, req.WorkflowID, req.Namespace, map[string]interface{}{
		"step_name": step.StepName,
		"usid":      step.USID,
		"status":    "running",
	})

	got, err := proc.process(ctx, step, snapshot, b)
	if err != nil {
		metrics.PipelineStepsTotal.WithLabelValues("failed").Inc()
		notifier.Notify(ctx, types.EventStepFailed, req.WorkflowID, req.Namespace, map[string]interface{}{
			"step_name": step.StepName,
			"usid":      step.USID,
			"status":    "failed",
			"error":     err.Error(),
		})
		return err
	}

	mu.Lock()
	for name, value := range got {
		outputs[name] = value
	}
	result.StepsCompleted++
	mu.Unlock()
	metrics.PipelineStepsTotal.WithLabelValues("completed").Inc()

	for name, value := range got {
		key := statestore.OutputKey(req.WorkflowID, name)
		if err := e.store.Set(ctx, key, value, statestore.DefaultOutputTTL); err != nil {
			e.logger.Warn("store step output",
				slog.String("key", key),
				slog.Any("error", err))
		}
	}

	notifier.Notify(ctx, types.EventStepCompleted, req.WorkflowID, req.Namespace, map[string]interface{}{
		"step_name": step.StepName,
		"usid":      step.USID,
		"status":    "completed",
		"outputs":   notify.TruncateOutputs(got),
	})
	return nil
}

// selectionAbortReason evaluates one selection gate for the step with the
// given usid. It returns a non-empty abort reason when the gate is unmet:
// the list is missing, empty, malformed, or does not include the usid. A
// non-nil error is returned only for store failures.
func (e *Executor) selectionAbortReason(ctx context.Context, workflowID, dep, usid string) (string, error) {
	var stored interface{}
	err := e.store.Get(ctx, statestore.OutputKey(workflowID, dep), &stored)
	if errors.Is(err, statestore.ErrNotFound) {
		return fmt.Sprintf("selection %s not met", dep), nil
	}
	if err != nil {
		return "", err
	}

	list, ok := stored.([]interface{})
	if !ok {
		return fmt.Sprintf("selection %s is not a list", dep), nil
	}
	if len(list) == 0 {
		return fmt.Sprintf("selection %s is empty", dep), nil
	}
	for _, item := range list {
		if s, ok := item.(string); ok && s == usid {
			return "", nil
		}
	}
	return fmt.Sprintf("USID %s not in selection %s", usid, dep), nil
}

// upstreamAborted reports whether any producer this step depends on was
// aborted, which cascades the abort.
func (e *Executor) upstreamAborted(graph *Graph, idx int, aborted map[int]bool) bool {
	for _, p := range graph.DependsOn(idx) {
		if aborted[p] {
			return true
		}
	}
	return false
}

func resolveBudget(settings *types.PipelineSettings) budget {
	b := budget{
		maxRetries:   defaultMaxRetries,
		retryDelayMS: defaultRetryDelaySec * 1000,
		timeoutMS:    defaultStepTimeoutSec * 1000,
	}
	if settings == nil {
		return b
	}
	if eh := settings.ErrorHandling; eh != nil {
		if eh.MaxRetries != nil && *eh.MaxRetries >= 0 {
			b.maxRetries = *eh.MaxRetries
		}
		if eh.RetryDelay != nil && *eh.RetryDelay > 0 {
			b.retryDelayMS = *eh.RetryDelay * 1000
		}
	}
	if to := settings.Timeouts; to != nil && to.StepTimeout != nil && *to.StepTimeout > 0 {
		b.timeoutMS = *to.StepTimeout * 1000
	}
	return b
}

// selectFinalResult picks the run's headline output: final_result wins,
// then result, then the whole output map.
func selectFinalResult(outputs map[string]interface{}) interface{} {
	if v, ok := outputs["final_result"]; ok {
		return v
	}
	if v, ok := outputs["result"]; ok {
		return v
	}
	return outputs
}
