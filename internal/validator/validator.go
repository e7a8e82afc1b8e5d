// Package validator provides JSON schema validation for workflow and
// pipeline payloads.
package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates incoming execution payloads before they reach the
// engines. Schema validation catches shape errors; the engines still apply
// their own semantic checks (branch ranges, dependency cycles).
type Validator struct {
	workflowSchema *jsonschema.Schema
	pipelineSchema *jsonschema.Schema
}

// ValidationError represents a validation failure.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the result of a validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// New creates a new validator with embedded schemas.
func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	if err := compiler.AddResource("workflow.json", strings.NewReader(workflowSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add workflow schema: %w", err)
	}
	if err := compiler.AddResource("pipeline.json", strings.NewReader(pipelineSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add pipeline schema: %w", err)
	}

	workflowSchema, err := compiler.Compile("workflow.json")
	if err != nil {
		return nil, fmt.Errorf("compile workflow schema: %w", err)
	}
	pipelineSchema, err := compiler.Compile("pipeline.json")
	if err != nil {
		return nil, fmt.Errorf("compile pipeline schema: %w", err)
	}

	return &Validator{
		workflowSchema: workflowSchema,
		pipelineSchema: pipelineSchema,
	}, nil
}

// ValidateWorkflowJSON validates a JSON-encoded sequential workflow payload.
func (v *Validator) ValidateWorkflowJSON(data []byte) *ValidationResult {
	return v.validateJSON(v.workflowSchema, data)
}

// ValidatePipelineJSON validates a JSON-encoded pipeline payload.
func (v *Validator) ValidatePipelineJSON(data []byte) *ValidationResult {
	return v.validateJSON(v.pipelineSchema, data)
}

func (v *Validator) validateJSON(schema *jsonschema.Schema, data []byte) *ValidationResult {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Path: "$", Message: fmt.Sprintf("invalid JSON: %v", err)},
			},
		}
	}
	return v.validate(schema, doc)
}

// validate runs schema validation and converts errors.
func (v *Validator) validate(schema *jsonschema.Schema, data interface{}) *ValidationResult {
	err := schema.Validate(data)
	if err == nil {
		return &ValidationResult{Valid: true}
	}

	result := &ValidationResult{Valid: false}
	if verr, ok := err.(*jsonschema.ValidationError); ok {
		result.Errors = extractErrors(verr)
	} else {
		result.Errors = []ValidationError{
			{Path: "$", Message: err.Error()},
		}
	}
	return result
}

// extractErrors recursively extracts validation errors.
func extractErrors(verr *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	if verr.Message != "" {
		errors = append(errors, ValidationError{
			Path:    verr.InstanceLocation,
			Message: verr.Message,
		})
	}

	for _, cause := range verr.Causes {
		errors = append(errors, extractErrors(cause)...)
	}

	return errors
}

// Embedded JSON schemas

const workflowSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "workflow.json",
  "title": "Sequential Workflow Request",
  "type": "object",
  "required": ["context", "instructions"],
  "properties": {
    "context": {
      "type": "string",
      "description": "Original task context shown to the first step"
    },
    "instructions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "oneOf": [
          {"type": "string", "minLength": 1},
          {
            "type": "object",
            "required": ["text"],
            "properties": {
              "type": {
                "type": "string",
                "enum": ["simple", "conditional", "endpoint", "thread", "router", "agent"]
              },
              "text": {"type": "string", "minLength": 1},
              "condition": {
                "type": "object",
                "required": ["expression"],
                "properties": {
                  "evaluateAfterStep": {"type": "integer", "minimum": 1},
                  "expression": {"type": "string", "minLength": 1},
                  "ifTrue": {"type": "array", "items": {"type": "integer", "minimum": 0}},
                  "ifFalse": {"type": "array", "items": {"type": "integer", "minimum": 0}}
                }
              },
              "endpointUrl": {"type": "string"},
              "apiUrl": {"type": "string"},
              "method": {"type": "string"},
              "headers": {"type": "object", "additionalProperties": {"type": "string"}},
              "retries": {"type": "integer", "minimum": 0},
              "retryDelay": {"type": "integer", "minimum": 0},
              "timeout": {"type": "integer", "minimum": 0},
              "collectFromSteps": {
                "type": "array",
                "items": {"type": "integer", "minimum": 1}
              },
              "outputFormat": {"type": "string", "enum": ["json", "markdown", "numbered"]},
              "completionCheck": {"type": "string", "enum": ["deterministic", "llm"]},
              "evaluationPrompt": {"type": "string"},
              "options": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["id"],
                  "properties": {
                    "id": {"type": "string", "minLength": 1},
                    "description": {"type": "string"},
                    "apiUrl": {"type": "string"},
                    "method": {"type": "string"}
                  }
                }
              },
              "defaultOption": {"type": "string"},
              "decisionPrompt": {"type": "string"},
              "fallbackBehavior": {"type": "string", "enum": ["skip", "llm"]},
              "llmFallbackPrompt": {"type": "string"}
            }
          }
        ]
      }
    },
    "provider": {"type": "string"},
    "model": {"type": "string"}
  }
}`

const pipelineSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "pipeline.json",
  "title": "Pipeline Request",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "workflow_id": {"type": "string"},
    "namespace": {"type": "string"},
    "workflow_name": {"type": "string"},
    "original_input": {},
    "input_data": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["step_name", "usid", "service_url", "method", "outputs"],
        "properties": {
          "step_name": {"type": "string", "minLength": 1},
          "usid": {"type": "string", "minLength": 8, "maxLength": 8},
          "service_url": {"type": "string", "minLength": 1},
          "method": {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE"]},
          "headers": {"type": "object", "additionalProperties": {"type": "string"}},
          "dependencies": {"type": "array", "items": {"type": "string"}},
          "outputs": {
            "type": "array",
            "minItems": 1,
            "items": {"type": "string", "minLength": 1}
          },
          "input_prep_config": {
            "type": "object",
            "properties": {
              "type": {"type": "string"},
              "mapping": {"type": "object"}
            }
          },
          "description": {"type": "string"}
        }
      }
    },
    "settings": {
      "type": "object",
      "properties": {
        "error_handling": {
          "type": "object",
          "properties": {
            "max_retries": {"type": "integer", "minimum": 0},
            "retry_delay": {"type": "integer", "minimum": 0}
          }
        },
        "timeouts": {
          "type": "object",
          "properties": {
            "step_timeout": {"type": "integer", "minimum": 1}
          }
        },
        "notifications": {
          "type": "object",
          "properties": {
            "webhook_url": {"type": "string"}
          }
        }
      }
    }
  }
}`
