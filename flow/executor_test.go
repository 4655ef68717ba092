package flow

import (
	"testing"

	"github.com/goliatone/go-chatflow/core"
)

func TestExecuteStart(t *testing.T) {
	executor := NewExecutor()

	node := core.Node{ID: "start", Type: core.NodeTypeStart, Config: core.NodeConfig{
		Start: &core.StartConfig{Greeting: "welcome!", Next: "q1"},
	}}
	result, err := executor.Execute(node, "hi there", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Kind != StepContinue || result.NextNodeID != "q1" {
		t.Fatalf("expected continue to q1, got %s/%s", result.Kind, result.NextNodeID)
	}
	if len(result.Replies) != 1 || result.Replies[0].Text != "welcome!" {
		t.Fatalf("expected greeting reply, got %+v", result.Replies)
	}

	// start without a next node terminates immediately
	terminal := core.Node{ID: "start", Type: core.NodeTypeStart, Config: core.NodeConfig{
		Start: &core.StartConfig{Greeting: "bye"},
	}}
	result, err = executor.Execute(terminal, "", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Kind != StepTerminate {
		t.Fatalf("expected terminate, got %s", result.Kind)
	}
}

func TestExecuteMessageInterpolatesVariables(t *testing.T) {
	executor := NewExecutor()
	node := core.Node{ID: "m1", Type: core.NodeTypeMessage, Config: core.NodeConfig{
		Message: &core.MessageConfig{Text: "thanks {{name}}!", Buttons: []string{"ok"}, Next: "end"},
	}}

	result, err := executor.Execute(node, "", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Kind != StepContinue || result.NextNodeID != "end" {
		t.Fatalf("expected continue to end, got %s/%s", result.Kind, result.NextNodeID)
	}
	if result.Replies[0].Text != "thanks Ada!" {
		t.Fatalf("expected interpolated text, got %q", result.Replies[0].Text)
	}
	if len(result.Replies[0].Buttons) != 1 {
		t.Fatalf("expected buttons to carry over, got %+v", result.Replies[0].Buttons)
	}
}

func TestExecuteQuestion(t *testing.T) {
	executor := NewExecutor()
	node := core.Node{ID: "q1", Type: core.NodeTypeQuestion, Config: core.NodeConfig{
		Question: &core.QuestionConfig{
			Prompt:    "what's your email?",
			Variable:  "email",
			Rule:      core.ValidationRule{Kind: core.ValidationEmail},
			ErrorText: "that doesn't look like an email",
			Next:      "m1",
		},
	}}

	// no input yet: ask and wait
	result, err := executor.Execute(node, "", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Kind != StepAwaitingInput || result.ValidationFailed {
		t.Fatalf("expected fresh prompt, got %+v", result)
	}
	if result.Replies[0].Text != "what's your email?" {
		t.Fatalf("unexpected prompt %q", result.Replies[0].Text)
	}

	// invalid answer: re-ask with the authored error text
	result, err = executor.Execute(node, "not-an-email", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Kind != StepAwaitingInput || !result.ValidationFailed {
		t.Fatalf("expected validation failure, got %+v", result)
	}
	if result.Replies[0].Text != "that doesn't look like an email" {
		t.Fatalf("unexpected error text %q", result.Replies[0].Text)
	}

	// valid answer: capture and continue
	result, err = executor.Execute(node, "ada@example.com", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Kind != StepContinue || result.NextNodeID != "m1" {
		t.Fatalf("expected continue, got %+v", result)
	}
	if result.Variables["email"] != "ada@example.com" {
		t.Fatalf("expected captured variable, got %+v", result.Variables)
	}
}

func TestExecuteQuestionNumberCoercion(t *testing.T) {
	executor := NewExecutor()
	node := core.Node{ID: "q1", Type: core.NodeTypeQuestion, Config: core.NodeConfig{
		Question: &core.QuestionConfig{
			Prompt:   "how old are you?",
			Variable: "age",
			Rule:     core.ValidationRule{Kind: core.ValidationNumber},
			Next:     "c1",
		},
	}}

	result, err := executor.Execute(node, "42", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if got, ok := result.Variables["age"].(float64); !ok || got != 42 {
		t.Fatalf("expected numeric variable, got %T %v", result.Variables["age"], result.Variables["age"])
	}
}

func TestExecuteCondition(t *testing.T) {
	executor := NewExecutor()
	node := func(op core.ConditionOperator, value string, values []string) core.Node {
		return core.Node{ID: "c1", Type: core.NodeTypeCondition, Config: core.NodeConfig{
			Condition: &core.ConditionConfig{
				Variable:  "answer",
				Operator:  op,
				Value:     value,
				Values:    values,
				TrueNext:  "yes",
				FalseNext: "no",
			},
		}}
	}

	cases := []struct {
		name string
		node core.Node
		vars map[string]any
		want string
	}{
		{name: "eq true", node: node(core.OperatorEquals, "blue", nil), vars: map[string]any{"answer": "Blue"}, want: "yes"},
		{name: "eq false", node: node(core.OperatorEquals, "blue", nil), vars: map[string]any{"answer": "red"}, want: "no"},
		{name: "ne", node: node(core.OperatorNotEquals, "blue", nil), vars: map[string]any{"answer": "red"}, want: "yes"},
		{name: "gt numeric", node: node(core.OperatorGreater, "18", nil), vars: map[string]any{"answer": float64(21)}, want: "yes"},
		{name: "gte boundary", node: node(core.OperatorGreaterEquals, "18", nil), vars: map[string]any{"answer": "18"}, want: "yes"},
		{name: "lt non-numeric falls false", node: node(core.OperatorLess, "18", nil), vars: map[string]any{"answer": "abc"}, want: "no"},
		{name: "in", node: node(core.OperatorIn, "", []string{"a", "b"}), vars: map[string]any{"answer": "B"}, want: "yes"},
		{name: "not in", node: node(core.OperatorNotIn, "", []string{"a", "b"}), vars: map[string]any{"answer": "c"}, want: "yes"},
		{name: "contains", node: node(core.OperatorContains, "help", nil), vars: map[string]any{"answer": "I need HELP now"}, want: "yes"},
		{name: "starts with", node: node(core.OperatorStartsWith, "yes", nil), vars: map[string]any{"answer": "Yes please"}, want: "yes"},
		{name: "missing variable is false", node: node(core.OperatorEquals, "blue", nil), vars: map[string]any{}, want: "no"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := executor.Execute(tc.node, "", tc.vars)
			if err != nil {
				t.Fatalf("execute failed: %v", err)
			}
			if result.Kind != StepContinue {
				t.Fatalf("condition should continue, got %s", result.Kind)
			}
			if result.NextNodeID != tc.want {
				t.Fatalf("expected branch %q, got %q", tc.want, result.NextNodeID)
			}
			if len(result.Replies) != 0 {
				t.Fatalf("condition must not produce replies, got %+v", result.Replies)
			}
		})
	}
}

func TestExecuteJumpAndEnd(t *testing.T) {
	executor := NewExecutor()

	jump := core.Node{ID: "j1", Type: core.NodeTypeJump, Config: core.NodeConfig{
		Jump: &core.JumpConfig{TargetFlowID: "flow-2", CarryVariables: true},
	}}
	result, err := executor.Execute(jump, "", map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Kind != StepJump || result.TargetFlowID != "flow-2" || !result.CarryVariables {
		t.Fatalf("unexpected jump result %+v", result)
	}

	end := core.Node{ID: "e1", Type: core.NodeTypeEnd, Config: core.NodeConfig{
		End: &core.EndConfig{Text: "goodbye"},
	}}
	result, err = executor.Execute(end, "", nil)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Kind != StepTerminate {
		t.Fatalf("expected terminate, got %s", result.Kind)
	}
	if result.Replies[0].Text != "goodbye" {
		t.Fatalf("expected farewell reply, got %+v", result.Replies)
	}
}

func TestExecuteRejectsMalformedNode(t *testing.T) {
	executor := NewExecutor()
	bad := core.Node{ID: "n1", Type: core.NodeTypeMessage, Config: core.NodeConfig{
		End: &core.EndConfig{},
	}}
	if _, err := executor.Execute(bad, "", nil); err == nil {
		t.Fatal("malformed node must not execute")
	}
}

func TestExecuteDoesNotMutateCallerVariables(t *testing.T) {
	executor := NewExecutor()
	node := core.Node{ID: "q1", Type: core.NodeTypeQuestion, Config: core.NodeConfig{
		Question: &core.QuestionConfig{Prompt: "name?", Variable: "name", Next: "end"},
	}}

	vars := map[string]any{}
	result, err := executor.Execute(node, "Ada", vars)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if result.Variables["name"] != "Ada" {
		t.Fatalf("expected captured name, got %+v", result.Variables)
	}
	if _, ok := vars["name"]; ok {
		t.Fatal("executor must not mutate the caller's map")
	}
}
