package sqlstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-chatflow/core"
)

// nodeConfigDoc is the JSON shape node configs take in the database. The
// domain NodeConfig union stays free of serialization tags; this DTO owns
// the wire names.
type nodeConfigDoc struct {
	Start     *startDoc     `json:"start,omitempty"`
	Message   *messageDoc   `json:"message,omitempty"`
	Question  *questionDoc  `json:"question,omitempty"`
	Condition *conditionDoc `json:"condition,omitempty"`
	Jump      *jumpDoc      `json:"jump,omitempty"`
	End       *endDoc       `json:"end,omitempty"`
}

type startDoc struct {
	Greeting string `json:"greeting,omitempty"`
	Next     string `json:"next,omitempty"`
}

type messageDoc struct {
	Text    string   `json:"text"`
	Buttons []string `json:"buttons,omitempty"`
	Next    string   `json:"next"`
}

type validationRuleDoc struct {
	Kind      string   `json:"kind,omitempty"`
	MinLength int      `json:"min_length,omitempty"`
	MaxLength int      `json:"max_length,omitempty"`
	Choices   []string `json:"choices,omitempty"`
}

type questionDoc struct {
	Prompt       string            `json:"prompt"`
	Variable     string            `json:"variable"`
	Rule         validationRuleDoc `json:"rule"`
	ErrorText    string            `json:"error_text,omitempty"`
	MaxAttempts  int               `json:"max_attempts,omitempty"`
	FallbackNext string            `json:"fallback_next,omitempty"`
	Next         string            `json:"next"`
}

type conditionDoc struct {
	Variable  string   `json:"variable"`
	Operator  string   `json:"operator"`
	Value     string   `json:"value,omitempty"`
	Values    []string `json:"values,omitempty"`
	TrueNext  string   `json:"true_next"`
	FalseNext string   `json:"false_next"`
}

type jumpDoc struct {
	TargetFlowID   string `json:"target_flow_id"`
	CarryVariables bool   `json:"carry_variables,omitempty"`
}

type endDoc struct {
	Text string `json:"text,omitempty"`
}

func nodeConfigToDoc(config core.NodeConfig) map[string]any {
	doc := nodeConfigDoc{}
	if config.Start != nil {
		doc.Start = &startDoc{Greeting: config.Start.Greeting, Next: config.Start.Next}
	}
	if config.Message != nil {
		doc.Message = &messageDoc{
			Text:    config.Message.Text,
			Buttons: append([]string(nil), config.Message.Buttons...),
			Next:    config.Message.Next,
		}
	}
	if config.Question != nil {
		doc.Question = &questionDoc{
			Prompt:   config.Question.Prompt,
			Variable: config.Question.Variable,
			Rule: validationRuleDoc{
				Kind:      string(config.Question.Rule.Kind),
				MinLength: config.Question.Rule.MinLength,
				MaxLength: config.Question.Rule.MaxLength,
				Choices:   append([]string(nil), config.Question.Rule.Choices...),
			},
			ErrorText:    config.Question.ErrorText,
			MaxAttempts:  config.Question.MaxAttempts,
			FallbackNext: config.Question.FallbackNext,
			Next:         config.Question.Next,
		}
	}
	if config.Condition != nil {
		doc.Condition = &conditionDoc{
			Variable:  config.Condition.Variable,
			Operator:  string(config.Condition.Operator),
			Value:     config.Condition.Value,
			Values:    append([]string(nil), config.Condition.Values...),
			TrueNext:  config.Condition.TrueNext,
			FalseNext: config.Condition.FalseNext,
		}
	}
	if config.Jump != nil {
		doc.Jump = &jumpDoc{
			TargetFlowID:   config.Jump.TargetFlowID,
			CarryVariables: config.Jump.CarryVariables,
		}
	}
	if config.End != nil {
		doc.End = &endDoc{Text: config.End.Text}
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(encoded, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func nodeConfigFromDoc(raw map[string]any) (core.NodeConfig, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return core.NodeConfig{}, fmt.Errorf("sqlstore: encode node config: %w", err)
	}
	var doc nodeConfigDoc
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return core.NodeConfig{}, fmt.Errorf("sqlstore: decode node config: %w", err)
	}

	config := core.NodeConfig{}
	if doc.Start != nil {
		config.Start = &core.StartConfig{Greeting: doc.Start.Greeting, Next: doc.Start.Next}
	}
	if doc.Message != nil {
		config.Message = &core.MessageConfig{
			Text:    doc.Message.Text,
			Buttons: append([]string(nil), doc.Message.Buttons...),
			Next:    doc.Message.Next,
		}
	}
	if doc.Question != nil {
		config.Question = &core.QuestionConfig{
			Prompt:   doc.Question.Prompt,
			Variable: doc.Question.Variable,
			Rule: core.ValidationRule{
				Kind:      core.ValidationKind(doc.Question.Rule.Kind),
				MinLength: doc.Question.Rule.MinLength,
				MaxLength: doc.Question.Rule.MaxLength,
				Choices:   append([]string(nil), doc.Question.Rule.Choices...),
			},
			ErrorText:    doc.Question.ErrorText,
			MaxAttempts:  doc.Question.MaxAttempts,
			FallbackNext: doc.Question.FallbackNext,
			Next:         doc.Question.Next,
		}
	}
	if doc.Condition != nil {
		config.Condition = &core.ConditionConfig{
			Variable:  doc.Condition.Variable,
			Operator:  core.ConditionOperator(doc.Condition.Operator),
			Value:     doc.Condition.Value,
			Values:    append([]string(nil), doc.Condition.Values...),
			TrueNext:  doc.Condition.TrueNext,
			FalseNext: doc.Condition.FalseNext,
		}
	}
	if doc.Jump != nil {
		config.Jump = &core.JumpConfig{
			TargetFlowID:   doc.Jump.TargetFlowID,
			CarryVariables: doc.Jump.CarryVariables,
		}
	}
	if doc.End != nil {
		config.End = &core.EndConfig{Text: doc.End.Text}
	}
	return config, nil
}

func (r *flowRecord) toDomain() core.Flow {
	if r == nil {
		return core.Flow{}
	}
	return core.Flow{
		ID:          r.ID,
		TenantID:    r.TenantID,
		Name:        r.Name,
		EntryNodeID: r.EntryNodeID,
		IsMain:      r.IsMain,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r *flowNodeRecord) toDomain() (core.Node, error) {
	if r == nil {
		return core.Node{}, fmt.Errorf("sqlstore: nil node record")
	}
	config, err := nodeConfigFromDoc(r.Config)
	if err != nil {
		return core.Node{}, err
	}
	return core.Node{
		ID:     r.ID,
		FlowID: r.FlowID,
		Type:   core.NodeType(r.Type),
		Config: config,
	}, nil
}

func (r *conversationStateRecord) toDomain() core.ConversationState {
	if r == nil {
		return core.ConversationState{}
	}
	return core.ConversationState{
		ID:             r.ID,
		TenantID:       r.TenantID,
		ContactID:      r.ContactID,
		FlowID:         r.FlowID,
		CurrentNodeID:  r.CurrentNodeID,
		Variables:      copyAnyMap(r.Variables),
		FailedAttempts: r.FailedAttempts,
		Active:         r.Active,
		Version:        r.Version,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func stateToRecord(state core.ConversationState) *conversationStateRecord {
	return &conversationStateRecord{
		ID:             state.ID,
		TenantID:       state.TenantID,
		ContactID:      state.ContactID,
		FlowID:         state.FlowID,
		CurrentNodeID:  state.CurrentNodeID,
		Variables:      copyAnyMap(state.Variables),
		FailedAttempts: state.FailedAttempts,
		Active:         state.Active,
		Version:        state.Version,
		CreatedAt:      state.CreatedAt,
		UpdatedAt:      state.UpdatedAt,
	}
}

func (r *conversationWindowRecord) toDomain() core.ConversationWindow {
	if r == nil {
		return core.ConversationWindow{}
	}
	return core.ConversationWindow{
		ID:        r.ID,
		TenantID:  r.TenantID,
		ContactID: r.ContactID,
		StartedAt: r.StartedAt,
		EndsAt:    r.EndsAt,
		Status:    core.WindowStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r *templateRecord) toDomain() core.Template {
	if r == nil {
		return core.Template{}
	}
	return core.Template{
		ID:        r.ID,
		TenantID:  r.TenantID,
		Name:      r.Name,
		Language:  r.Language,
		Status:    core.TemplateStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func copyAnyMap(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}

func copyTimes(input []time.Time) []time.Time {
	if len(input) == 0 {
		return nil
	}
	out := make([]time.Time, len(input))
	copy(out, input)
	return out
}
