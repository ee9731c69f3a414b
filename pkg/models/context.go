package models

import (
	"regexp"
	"sort"
	"strings"
)

// ExecutionContext carries the original task prompt, initial variables,
// and accumulated step results for one plan run.
//
// The type is a value and is never mutated in place: WithResult returns a
// new context, so concurrently running steps can each hold a snapshot
// without locking. No method performs I/O.
type ExecutionContext struct {
	// Prompt is the original task prompt.
	Prompt string
	// Vars holds the initial variable map.
	Vars map[string]string
	// Results maps step ID to that step's result.
	Results map[string]StepResult
	// Outputs maps named output slots to step output text.
	Outputs map[string]string
}

// NewExecutionContext creates the initial context for a plan run.
// The variable map is copied.
func NewExecutionContext(prompt string, vars map[string]string) ExecutionContext {
	ec := ExecutionContext{
		Prompt:  prompt,
		Vars:    make(map[string]string, len(vars)),
		Results: make(map[string]StepResult),
		Outputs: make(map[string]string),
	}
	for k, v := range vars {
		ec.Vars[k] = v
	}
	return ec
}

// WithResult returns a new context containing the given step result.
// When outputAs is non-empty the step's output is also bound to that name.
// The receiver is not modified.
func (c ExecutionContext) WithResult(result StepResult, outputAs string) ExecutionContext {
	next := ExecutionContext{
		Prompt:  c.Prompt,
		Vars:    c.Vars,
		Results: make(map[string]StepResult, len(c.Results)+1),
		Outputs: make(map[string]string, len(c.Outputs)+1),
	}
	for k, v := range c.Results {
		next.Results[k] = v
	}
	for k, v := range c.Outputs {
		next.Outputs[k] = v
	}

	next.Results[result.StepID] = result
	if outputAs != "" {
		next.Outputs[outputAs] = result.Output
	}
	return next
}

// Result returns the recorded result for a step.
func (c ExecutionContext) Result(stepID string) (StepResult, bool) {
	r, ok := c.Results[stepID]
	return r, ok
}

// CompletedResults returns all completed step results ordered by completion time.
func (c ExecutionContext) CompletedResults() []StepResult {
	var results []StepResult
	for _, r := range c.Results {
		if r.Status == StepStatusCompleted {
			results = append(results, r)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CompletedAt.Equal(results[j].CompletedAt) {
			return results[i].StepID < results[j].StepID
		}
		return results[i].CompletedAt.Before(results[j].CompletedAt)
	})
	return results
}

// placeholderRe matches {{name}} and {{stepId.property}} placeholders.
var placeholderRe = regexp.MustCompile(`\{\{([A-Za-z0-9_-]+)(?:\.([A-Za-z]+))?\}\}`)

// Substitute renders a template against the context. Supported placeholders:
//
//	{{prompt}}           the original task prompt
//	{{name}}             a named output or initial variable
//	{{stepId.property}}  content, success, error, model, or duration of a step
//
// Placeholders with no matching value are left verbatim.
func (c ExecutionContext) Substitute(template string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderRe.FindStringSubmatch(match)
		name, property := groups[1], groups[2]

		if property != "" {
			result, ok := c.Results[name]
			if !ok {
				return match
			}
			switch property {
			case "content":
				return result.Output
			case "success":
				if result.Status == StepStatusCompleted {
					return "true"
				}
				return "false"
			case "error":
				return result.Error
			case "model":
				return result.Model
			case "duration":
				return result.Duration.String()
			default:
				return match
			}
		}

		if name == "prompt" {
			return c.Prompt
		}
		if out, ok := c.Outputs[name]; ok {
			return out
		}
		if v, ok := c.Vars[name]; ok {
			return v
		}
		return match
	})
}

// EvaluateCondition substitutes placeholders in cond and evaluates it.
// Supported forms: "a == b", "a != b", and a bare truthiness test where
// "", "false", and "0" are false.
func (c ExecutionContext) EvaluateCondition(cond string) bool {
	resolved := strings.TrimSpace(c.Substitute(cond))
	if resolved == "" {
		return false
	}

	if left, right, ok := splitOperator(resolved, "!="); ok {
		return left != right
	}
	if left, right, ok := splitOperator(resolved, "=="); ok {
		return left == right
	}

	return truthy(resolved)
}

// splitOperator splits "left op right" and normalizes both operands.
func splitOperator(expr, op string) (string, string, bool) {
	idx := strings.Index(expr, op)
	if idx < 0 {
		return "", "", false
	}
	left := unquote(strings.TrimSpace(expr[:idx]))
	right := unquote(strings.TrimSpace(expr[idx+len(op):]))
	return left, right, true
}

// unquote strips one pair of matching single or double quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// truthy reports whether a substituted value counts as true.
func truthy(s string) bool {
	switch strings.TrimSpace(unquote(s)) {
	case "", "false", "0":
		return false
	default:
		return true
	}
}
