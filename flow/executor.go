package flow

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-chatflow/core"
)

// StepKind tags the outcome of executing one node.
type StepKind string

const (
	// StepContinue advances immediately to NextNodeID without waiting for
	// contact input.
	StepContinue StepKind = "continue"
	// StepAwaitingInput stops the walk on the current node until the contact
	// replies.
	StepAwaitingInput StepKind = "awaiting_input"
	// StepJump transfers the conversation to TargetFlowID's entry node.
	StepJump StepKind = "jump"
	// StepTerminate ends the conversation.
	StepTerminate StepKind = "terminate"
)

// Reply is one outbound message produced while executing a node.
type Reply struct {
	Text    string
	Buttons []string
}

// StepResult is the outcome of executing a single node: exactly one of the
// four kinds, plus any replies to send and the updated variable set.
type StepResult struct {
	Kind             StepKind
	NextNodeID       string
	TargetFlowID     string
	CarryVariables   bool
	Replies          []Reply
	Variables        map[string]any
	ValidationFailed bool
}

// Executor evaluates a single node against the contact's input and the
// accumulated conversation variables. It is pure: no I/O, no clock, and the
// caller owns persistence of the returned variables.
type Executor struct{}

func NewExecutor() *Executor {
	return &Executor{}
}

// Execute runs one node. The input is the contact's message text when the
// walk entered this node directly from an inbound message, or empty when
// auto-advancing.
func (e *Executor) Execute(node core.Node, input string, vars map[string]any) (StepResult, error) {
	if err := node.Validate(); err != nil {
		return StepResult{}, flowWrapError(err, goerrors.CategoryBadInput,
			"node rejected at execution", http.StatusUnprocessableEntity,
			core.ErrorNodeTypeUnsupported, map[string]any{"node_id": node.ID})
	}
	vars = cloneVariables(vars)

	switch node.Type {
	case core.NodeTypeStart:
		return e.executeStart(node, vars), nil
	case core.NodeTypeMessage:
		return e.executeMessage(node, vars), nil
	case core.NodeTypeQuestion:
		return e.executeQuestion(node, input, vars), nil
	case core.NodeTypeCondition:
		return e.executeCondition(node, vars), nil
	case core.NodeTypeJump:
		cfg := node.Config.Jump
		return StepResult{
			Kind:           StepJump,
			TargetFlowID:   cfg.TargetFlowID,
			CarryVariables: cfg.CarryVariables,
			Variables:      vars,
		}, nil
	case core.NodeTypeEnd:
		result := StepResult{Kind: StepTerminate, Variables: vars}
		if text := strings.TrimSpace(node.Config.End.Text); text != "" {
			result.Replies = append(result.Replies, Reply{Text: interpolate(text, vars)})
		}
		return result, nil
	}

	return StepResult{}, flowError(
		fmt.Sprintf("unsupported node type %q", node.Type),
		goerrors.CategoryOperation,
		http.StatusUnprocessableEntity,
		core.ErrorNodeTypeUnsupported,
		map[string]any{"node_id": node.ID, "node_type": string(node.Type)},
	)
}

func (e *Executor) executeStart(node core.Node, vars map[string]any) StepResult {
	cfg := node.Config.Start
	result := StepResult{Variables: vars}
	if text := strings.TrimSpace(cfg.Greeting); text != "" {
		result.Replies = append(result.Replies, Reply{Text: interpolate(text, vars)})
	}
	if next := strings.TrimSpace(cfg.Next); next != "" {
		result.Kind = StepContinue
		result.NextNodeID = next
		return result
	}
	result.Kind = StepTerminate
	return result
}

func (e *Executor) executeMessage(node core.Node, vars map[string]any) StepResult {
	cfg := node.Config.Message
	return StepResult{
		Kind:       StepContinue,
		NextNodeID: cfg.Next,
		Replies: []Reply{{
			Text:    interpolate(cfg.Text, vars),
			Buttons: append([]string(nil), cfg.Buttons...),
		}},
		Variables: vars,
	}
}

func (e *Executor) executeQuestion(node core.Node, input string, vars map[string]any) StepResult {
	cfg := node.Config.Question
	input = strings.TrimSpace(input)

	if input == "" {
		return StepResult{
			Kind:      StepAwaitingInput,
			Replies:   []Reply{{Text: interpolate(cfg.Prompt, vars)}},
			Variables: vars,
		}
	}

	if err := ValidateAnswer(cfg.Rule, input); err != nil {
		errorText := strings.TrimSpace(cfg.ErrorText)
		if errorText == "" {
			errorText = err.Error()
		}
		return StepResult{
			Kind:             StepAwaitingInput,
			Replies:          []Reply{{Text: errorText}},
			Variables:        vars,
			ValidationFailed: true,
		}
	}

	vars[cfg.Variable] = coerceAnswer(cfg.Rule, input)
	return StepResult{
		Kind:       StepContinue,
		NextNodeID: cfg.Next,
		Variables:  vars,
	}
}

// executeCondition never produces a reply; a condition with a missing
// variable takes the false branch.
func (e *Executor) executeCondition(node core.Node, vars map[string]any) StepResult {
	cfg := node.Config.Condition
	next := cfg.FalseNext
	if value, ok := vars[cfg.Variable]; ok {
		if evaluateCondition(cfg, value) {
			next = cfg.TrueNext
		}
	}
	return StepResult{
		Kind:       StepContinue,
		NextNodeID: next,
		Variables:  vars,
	}
}

func evaluateCondition(cfg *core.ConditionConfig, value any) bool {
	actual := strings.TrimSpace(fmt.Sprint(value))
	expected := strings.TrimSpace(cfg.Value)

	switch cfg.Operator {
	case core.OperatorEquals:
		return strings.EqualFold(actual, expected)
	case core.OperatorNotEquals:
		return !strings.EqualFold(actual, expected)
	case core.OperatorGreater, core.OperatorLess, core.OperatorGreaterEquals, core.OperatorLessEquals:
		left, leftErr := toFloat(value)
		right, rightErr := strconv.ParseFloat(expected, 64)
		if leftErr != nil || rightErr != nil {
			return false
		}
		switch cfg.Operator {
		case core.OperatorGreater:
			return left > right
		case core.OperatorLess:
			return left < right
		case core.OperatorGreaterEquals:
			return left >= right
		default:
			return left <= right
		}
	case core.OperatorIn, core.OperatorNotIn:
		found := false
		for _, candidate := range cfg.Values {
			if strings.EqualFold(actual, strings.TrimSpace(candidate)) {
				found = true
				break
			}
		}
		if cfg.Operator == core.OperatorIn {
			return found
		}
		return !found
	case core.OperatorContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(expected))
	case core.OperatorStartsWith:
		return strings.HasPrefix(strings.ToLower(actual), strings.ToLower(expected))
	}
	return false
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return strconv.ParseFloat(strings.TrimSpace(fmt.Sprint(value)), 64)
	}
}

func coerceAnswer(rule core.ValidationRule, input string) any {
	if rule.Kind == core.ValidationNumber {
		if parsed, err := strconv.ParseFloat(input, 64); err == nil {
			return parsed
		}
	}
	return input
}

// interpolate substitutes {{variable}} references in authored text.
func interpolate(text string, vars map[string]any) string {
	if len(vars) == 0 || !strings.Contains(text, "{{") {
		return text
	}
	for key, value := range vars {
		placeholder := "{{" + key + "}}"
		if strings.Contains(text, placeholder) {
			text = strings.ReplaceAll(text, placeholder, strings.TrimSpace(fmt.Sprint(value)))
		}
	}
	return text
}

func cloneVariables(vars map[string]any) map[string]any {
	cloned := make(map[string]any, len(vars))
	for key, value := range vars {
		cloned[key] = value
	}
	return cloned
}
