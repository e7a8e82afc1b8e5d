package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/objspace/orchestrator/internal/config"
	"github.com/objspace/orchestrator/internal/pipeline"
	"github.com/objspace/orchestrator/internal/sequential"
	"github.com/objspace/orchestrator/internal/statestore"
	"github.com/objspace/orchestrator/internal/validator"
	"github.com/objspace/orchestrator/pkg/types"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	store     statestore.Store
	scheduler *sequential.Scheduler
	executor  *pipeline.Executor
	validator *validator.Validator
	config    *config.Config
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store statestore.Store, sched *sequential.Scheduler, exec *pipeline.Executor, v *validator.Validator, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		store:     store,
		scheduler: sched,
		executor:  exec,
		validator: v,
		config:    cfg,
		logger:    logger,
	}
}

// --- Health Endpoints ---

// Health handles the /health and /healthz endpoints.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint, checking dependencies.
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	info, err := h.store.AdapterInfo(r.Context())
	if err != nil {
		h.respondError(w, http.StatusServiceUnavailable, "statestore unhealthy", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "ready",
		"statestore": info,
	})
}

// --- Workflow Execution ---

// workflowRequest is the wire shape of a sequential run. Instructions are
// kept raw so strings and tagged objects can coexist in one array.
type workflowRequest struct {
	Context      string            `json:"context"`
	Instructions []json.RawMessage `json:"instructions"`
	Provider     string            `json:"provider,omitempty"`
	Model        string            `json:"model,omitempty"`
	Namespace    string            `json:"namespace,omitempty"`
}

// ExecuteWorkflow handles POST /api/v1/workflows/execute. The run executes
// synchronously; the response is the full result including step outputs,
// errors, and the execution log.
func (h *Handlers) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "read request body", err)
		return
	}

	if h.validator != nil {
		if result := h.validator.ValidateWorkflowJSON(body); !result.Valid {
			h.respondValidationErrors(w, result)
			return
		}
	}

	var req workflowRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	instructions, err := types.ParseInstructions(req.Instructions)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "parse instructions", err)
		return
	}

	runID := uuid.NewString()
	h.logger.Info("workflow accepted",
		slog.String("run_id", runID),
		slog.Int("instructions", len(instructions)))

	result := h.scheduler.Execute(r.Context(), &sequential.Request{
		RunID:        runID,
		Namespace:    req.Namespace,
		Context:      req.Context,
		Instructions: instructions,
		Provider:     req.Provider,
		Model:        req.Model,
	})

	h.respondJSON(w, http.StatusOK, result)
}

// ExecutePipeline handles POST /api/v1/pipelines/execute.
func (h *Handlers) ExecutePipeline(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "read request body", err)
		return
	}

	if h.validator != nil {
		if result := h.validator.ValidatePipelineJSON(body); !result.Valid {
			h.respondValidationErrors(w, result)
			return
		}
	}

	var req types.PipelineRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	h.logger.Info("pipeline accepted",
		slog.String("workflow_id", req.WorkflowID),
		slog.Int("steps", len(req.Steps)))

	result := h.executor.Execute(r.Context(), &req)
	h.respondJSON(w, http.StatusOK, result)
}

// --- Stored Outputs ---

// GetOutput handles GET /api/v1/outputs/{workflowId}/{name}, reading a
// persisted step output or selection list.
func (h *Handlers) GetOutput(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := statestore.OutputKey(vars["workflowId"], vars["name"])

	var value interface{}
	if err := h.store.Get(r.Context(), key, &value); err != nil {
		if err == statestore.ErrNotFound {
			h.respondError(w, http.StatusNotFound, "output not found", err)
			return
		}
		h.respondError(w, http.StatusInternalServerError, "read output", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"workflow_id": vars["workflowId"],
		"name":        vars["name"],
		"value":       value,
	})
}

// SetSelection handles PUT /api/v1/outputs/{workflowId}/{name}, storing a
// selection list that gates pipeline steps.
func (h *Handlers) SetSelection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var value interface{}
	if err := json.NewDecoder(r.Body).Decode(&value); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	key := statestore.OutputKey(vars["workflowId"], vars["name"])
	if err := h.store.Set(r.Context(), key, value, statestore.DefaultOutputTTL); err != nil {
		h.respondError(w, http.StatusInternalServerError, "store output", err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "stored"})
}

// --- Response Helpers ---

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string, err error) {
	details := map[string]interface{}{}
	if err != nil {
		details["cause"] = err.Error()
	}
	writeErrorResponse(w, status, HTTPStatusToErrorCode(status), message, details)
}

func (h *Handlers) respondValidationErrors(w http.ResponseWriter, result *validator.ValidationResult) {
	details := map[string]interface{}{"errors": result.Errors}
	writeErrorResponse(w, http.StatusBadRequest, ErrCodeBadRequest, "payload failed schema validation", details)
}
