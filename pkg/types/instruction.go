// Package types provides shared types for the orchestrator service.
package types

import (
	"encoding/json"
	"fmt"
)

// InstructionKind discriminates the closed set of instruction variants.
type InstructionKind string

const (
	KindSimple      InstructionKind = "simple"
	KindConditional InstructionKind = "conditional"
	KindEndpoint    InstructionKind = "endpoint"
	KindThread      InstructionKind = "thread"
	KindRouter      InstructionKind = "router"
	KindAgent       InstructionKind = "agent"
)

// Instruction is a single step in a workflow. Kind selects which config is
// populated; the dispatcher switches exhaustively over it. A Condition may be
// attached to any variant.
type Instruction struct {
	Kind InstructionKind `json:"kind"`

	// Text is the natural-language instruction for simple/conditional steps.
	Text string `json:"instruction,omitempty"`

	Endpoint *EndpointConfig `json:"endpoint,omitempty"`
	Thread   *ThreadConfig   `json:"thread,omitempty"`
	Router   *RouterConfig   `json:"router,omitempty"`
	Agent    *AgentConfig    `json:"agent,omitempty"`

	Condition *Condition `json:"condition,omitempty"`
}

// Condition controls branching after a step executes. Branch targets are
// 0-indexed instruction indices; EvaluateAfterStep selects a prior step's
// result (1-indexed step number) as the evaluation subject instead of the
// current step's own result.
type Condition struct {
	EvaluateAfterStep *int   `json:"evaluateAfterStep,omitempty"`
	Expression        string `json:"expression"`
	IfTrue            []int  `json:"ifTrue,omitempty"`
	IfFalse           []int  `json:"ifFalse,omitempty"`
}

// EndpointConfig describes an outbound HTTP call performed via the gateway.
type EndpointConfig struct {
	EndpointURL  string            `json:"endpointUrl"`
	APIURL       string            `json:"apiUrl"`
	Method       string            `json:"method"`
	Headers      map[string]string `json:"headers,omitempty"`
	Body         interface{}       `json:"body,omitempty"`
	Retries      int               `json:"retries"`
	RetryDelayMS int               `json:"retryDelay"`
	TimeoutMS    int               `json:"timeout"`
	Description  string            `json:"description,omitempty"`
}

// ThreadOutputFormat selects how a thread step renders collected results.
type ThreadOutputFormat string

const (
	ThreadFormatJSON     ThreadOutputFormat = "json"
	ThreadFormatMarkdown ThreadOutputFormat = "markdown"
	ThreadFormatNumbered ThreadOutputFormat = "numbered"
)

// ThreadCompletionCheck selects how a thread step decides it has gathered
// enough upstream results.
type ThreadCompletionCheck string

const (
	// CheckDeterministic fails outright when a requested step is missing.
	CheckDeterministic ThreadCompletionCheck = "deterministic"
	// CheckLLM defers the completeness decision to the capability oracle.
	CheckLLM ThreadCompletionCheck = "llm"
)

// ThreadConfig aggregates results from previously executed steps.
// CollectFromSteps holds 1-indexed step numbers in execution order.
type ThreadConfig struct {
	CollectFromSteps []int                 `json:"collectFromSteps"`
	OutputFormat     ThreadOutputFormat    `json:"outputFormat"`
	CompletionCheck  ThreadCompletionCheck `json:"completionCheck"`
}

// RouterOption is one selectable target of a router step.
type RouterOption struct {
	ID          string            `json:"id"`
	Description string            `json:"description,omitempty"`
	APIURL      string            `json:"apiUrl"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        interface{}       `json:"body,omitempty"`
}

// RouterConfig asks the oracle to pick one option and invokes its endpoint.
type RouterConfig struct {
	Description      string         `json:"description"`
	EvaluationPrompt string         `json:"evaluationPrompt"`
	Options          []RouterOption `json:"options"`
	DefaultOption    string         `json:"defaultOption,omitempty"`
	Retries          int            `json:"retries"`
	RetryDelayMS     int            `json:"retryDelay"`
	TimeoutMS        int            `json:"timeout"`
}

// AgentFallback selects what an agent step does when the oracle decides no
// tool is needed.
type AgentFallback string

const (
	// FallbackSkip passes the previous step's result through unchanged.
	FallbackSkip AgentFallback = "skip"
	// FallbackLLM asks the oracle to answer directly.
	FallbackLLM AgentFallback = "llm"
)

// AgentConfig is a router whose option set includes an implicit
// "no tool needed" choice.
type AgentConfig struct {
	Description       string         `json:"description"`
	DecisionPrompt    string         `json:"decisionPrompt"`
	AvailableTools    []RouterOption `json:"availableTools"`
	FallbackBehavior  AgentFallback  `json:"fallbackBehavior"`
	LLMFallbackPrompt string         `json:"llmFallbackPrompt,omitempty"`
	Retries           int            `json:"retries"`
	RetryDelayMS      int            `json:"retryDelay"`
	TimeoutMS         int            `json:"timeout"`
}

// rawInstruction mirrors the wire shape of a structured instruction. All
// variant fields live flat on the object, discriminated by "type".
type rawInstruction struct {
	Type        string     `json:"type"`
	Instruction string     `json:"instruction"`
	Condition   *Condition `json:"condition"`

	// endpoint
	EndpointURL string            `json:"endpointUrl"`
	APIURL      string            `json:"apiUrl"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Body        interface{}       `json:"body"`
	Description string            `json:"description"`

	// thread
	CollectFromSteps []int                 `json:"collectFromSteps"`
	OutputFormat     ThreadOutputFormat    `json:"outputFormat"`
	CompletionCheck  ThreadCompletionCheck `json:"completionCheck"`

	// router
	EvaluationPrompt string         `json:"evaluationPrompt"`
	Options          []RouterOption `json:"options"`
	DefaultOption    string         `json:"defaultOption"`

	// agent
	DecisionPrompt    string         `json:"decisionPrompt"`
	AvailableTools    []RouterOption `json:"availableTools"`
	FallbackBehavior  AgentFallback  `json:"fallbackBehavior"`
	LLMFallbackPrompt string         `json:"llmFallbackPrompt"`

	Retries      int `json:"retries"`
	RetryDelayMS int `json:"retryDelay"`
	TimeoutMS    int `json:"timeout"`
}

// ParseInstruction normalizes a single wire-level instruction: bare strings
// become Simple steps, structured objects are classified by their "type"
// discriminator. An object without a type defaults to Conditional when a
// condition is attached and Simple otherwise.
func ParseInstruction(data json.RawMessage) (*Instruction, error) {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return &Instruction{Kind: KindSimple, Text: text}, nil
	}

	var raw rawInstruction
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("not a string or object: %w", err)
	}

	inst := &Instruction{Condition: raw.Condition}

	switch raw.Type {
	case "endpoint":
		inst.Kind = KindEndpoint
		inst.Endpoint = &EndpointConfig{
			EndpointURL:  raw.EndpointURL,
			APIURL:       raw.APIURL,
			Method:       raw.Method,
			Headers:      raw.Headers,
			Body:         raw.Body,
			Retries:      raw.Retries,
			RetryDelayMS: raw.RetryDelayMS,
			TimeoutMS:    raw.TimeoutMS,
			Description:  raw.Description,
		}
	case "thread":
		inst.Kind = KindThread
		inst.Thread = &ThreadConfig{
			CollectFromSteps: raw.CollectFromSteps,
			OutputFormat:     raw.OutputFormat,
			CompletionCheck:  raw.CompletionCheck,
		}
	case "router":
		inst.Kind = KindRouter
		inst.Router = &RouterConfig{
			Description:      raw.Description,
			EvaluationPrompt: raw.EvaluationPrompt,
			Options:          raw.Options,
			DefaultOption:    raw.DefaultOption,
			Retries:          raw.Retries,
			RetryDelayMS:     raw.RetryDelayMS,
			TimeoutMS:        raw.TimeoutMS,
		}
	case "agent":
		inst.Kind = KindAgent
		inst.Agent = &AgentConfig{
			Description:       raw.Description,
			DecisionPrompt:    raw.DecisionPrompt,
			AvailableTools:    raw.AvailableTools,
			FallbackBehavior:  raw.FallbackBehavior,
			LLMFallbackPrompt: raw.LLMFallbackPrompt,
			Retries:           raw.Retries,
			RetryDelayMS:      raw.RetryDelayMS,
			TimeoutMS:         raw.TimeoutMS,
		}
	case "simple":
		inst.Kind = KindSimple
		inst.Text = raw.Instruction
	case "conditional":
		inst.Kind = KindConditional
		inst.Text = raw.Instruction
	case "":
		inst.Text = raw.Instruction
		if raw.Condition != nil {
			inst.Kind = KindConditional
		} else {
			inst.Kind = KindSimple
		}
	default:
		return nil, fmt.Errorf("unknown instruction type %q", raw.Type)
	}

	return inst, nil
}

// ParseInstructions normalizes the full instruction array, attributing parse
// failures to the offending index.
func ParseInstructions(raws []json.RawMessage) ([]Instruction, error) {
	if len(raws) == 0 {
		return nil, fmt.Errorf("instructions must be a non-empty array")
	}

	out := make([]Instruction, 0, len(raws))
	for i, raw := range raws {
		inst, err := ParseInstruction(raw)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		out = append(out, *inst)
	}
	return out, nil
}

// ValidateInstructions performs fail-fast structural validation before any
// step executes: missing required variant fields and out-of-bounds branch
// indices are reported with the offending instruction index.
func ValidateInstructions(insts []Instruction) error {
	n := len(insts)

	for i := range insts {
		inst := &insts[i]

		switch inst.Kind {
		case KindSimple, KindConditional:
			if inst.Text == "" {
				return fmt.Errorf("instruction %d: missing instruction text", i)
			}
		case KindEndpoint:
			cfg := inst.Endpoint
			if cfg.EndpointURL == "" {
				return fmt.Errorf("instruction %d: endpoint missing endpointUrl", i)
			}
			if cfg.APIURL == "" {
				return fmt.Errorf("instruction %d: endpoint missing apiUrl", i)
			}
			if cfg.Method == "" {
				return fmt.Errorf("instruction %d: endpoint missing method", i)
			}
		case KindThread:
			cfg := inst.Thread
			if len(cfg.CollectFromSteps) == 0 {
				return fmt.Errorf("instruction %d: thread missing collectFromSteps", i)
			}
			for _, sn := range cfg.CollectFromSteps {
				if sn < 1 {
					return fmt.Errorf("instruction %d: thread references invalid step number %d", i, sn)
				}
			}
			switch cfg.OutputFormat {
			case ThreadFormatJSON, ThreadFormatMarkdown, ThreadFormatNumbered:
			default:
				return fmt.Errorf("instruction %d: thread has unknown outputFormat %q", i, cfg.OutputFormat)
			}
			switch cfg.CompletionCheck {
			case CheckDeterministic, CheckLLM:
			default:
				return fmt.Errorf("instruction %d: thread has unknown completionCheck %q", i, cfg.CompletionCheck)
			}
		case KindRouter:
			cfg := inst.Router
			if cfg.EvaluationPrompt == "" {
				return fmt.Errorf("instruction %d: router missing evaluationPrompt", i)
			}
			if len(cfg.Options) == 0 {
				return fmt.Errorf("instruction %d: router has no options", i)
			}
			for j, opt := range cfg.Options {
				if opt.ID == "" {
					return fmt.Errorf("instruction %d: router option %d missing id", i, j)
				}
				if opt.APIURL == "" {
					return fmt.Errorf("instruction %d: router option %q missing apiUrl", i, opt.ID)
				}
			}
		case KindAgent:
			cfg := inst.Agent
			if cfg.DecisionPrompt == "" {
				return fmt.Errorf("instruction %d: agent missing decisionPrompt", i)
			}
			switch cfg.FallbackBehavior {
			case FallbackSkip, FallbackLLM:
			default:
				return fmt.Errorf("instruction %d: agent has unknown fallbackBehavior %q", i, cfg.FallbackBehavior)
			}
			if cfg.FallbackBehavior == FallbackLLM && cfg.LLMFallbackPrompt == "" {
				return fmt.Errorf("instruction %d: agent llm fallback requires llmFallbackPrompt", i)
			}
			for j, tool := range cfg.AvailableTools {
				if tool.ID == "" {
					return fmt.Errorf("instruction %d: agent tool %d missing id", i, j)
				}
				if tool.APIURL == "" {
					return fmt.Errorf("instruction %d: agent tool %q missing apiUrl", i, tool.ID)
				}
			}
		default:
			return fmt.Errorf("instruction %d: unknown kind %q", i, inst.Kind)
		}

		if cond := inst.Condition; cond != nil {
			if cond.Expression == "" {
				return fmt.Errorf("instruction %d: condition missing expression", i)
			}
			for _, target := range cond.IfTrue {
				if target < 0 || target >= n {
					return fmt.Errorf("instruction %d: ifTrue target %d out of range [0,%d)", i, target, n)
				}
			}
			for _, target := range cond.IfFalse {
				if target < 0 || target >= n {
					return fmt.Errorf("instruction %d: ifFalse target %d out of range [0,%d)", i, target, n)
				}
			}
			if cond.EvaluateAfterStep != nil && *cond.EvaluateAfterStep < 1 {
				return fmt.Errorf("instruction %d: evaluateAfterStep must be a 1-indexed step number", i)
			}
		}
	}

	return nil
}

// BranchTargets returns the union of all ifTrue/ifFalse targets across the
// instruction array. An index in this set is reachable only via an explicit
// branch and must not also receive sequential fallthrough.
func BranchTargets(insts []Instruction) map[int]bool {
	targets := make(map[int]bool)
	for i := range insts {
		cond := insts[i].Condition
		if cond == nil {
			continue
		}
		for _, t := range cond.IfTrue {
			targets[t] = true
		}
		for _, t := range cond.IfFalse {
			targets[t] = true
		}
	}
	return targets
}
