package query

import (
	"context"

	"github.com/goliatone/go-chatflow/core"
)

type ConversationStateReader interface {
	GetActive(ctx context.Context, tenantID string, contactID string) (core.ConversationState, error)
}

type WindowReader interface {
	Status(ctx context.Context, tenantID string, contactID string) (core.WindowStatus, error)
}

type TranscriptReader interface {
	ListTurns(ctx context.Context, tenantID string, contactID string, limit int) ([]core.TurnEvent, error)
}

type TemplateReader interface {
	Get(ctx context.Context, tenantID string, name string) (core.Template, error)
}

type FlowReader interface {
	GetFlow(ctx context.Context, tenantID string, flowID string) (core.Flow, error)
	GetMainFlow(ctx context.Context, tenantID string) (core.Flow, error)
}

type GetConversationStateQuery struct {
	reader ConversationStateReader
}

func NewGetConversationStateQuery(reader ConversationStateReader) *GetConversationStateQuery {
	return &GetConversationStateQuery{reader: reader}
}

func (q *GetConversationStateQuery) Query(ctx context.Context, msg GetConversationStateMessage) (core.ConversationState, error) {
	if q == nil || q.reader == nil {
		return core.ConversationState{}, queryDependencyError("query: conversation state reader is required")
	}
	return q.reader.GetActive(ctx, msg.TenantID, msg.ContactID)
}

type GetWindowStatusQuery struct {
	reader WindowReader
}

func NewGetWindowStatusQuery(reader WindowReader) *GetWindowStatusQuery {
	return &GetWindowStatusQuery{reader: reader}
}

func (q *GetWindowStatusQuery) Query(ctx context.Context, msg GetWindowStatusMessage) (core.WindowStatus, error) {
	if q == nil || q.reader == nil {
		return core.WindowStatusUnknown, queryDependencyError("query: window reader is required")
	}
	return q.reader.Status(ctx, msg.TenantID, msg.ContactID)
}

type ListTurnEventsQuery struct {
	reader TranscriptReader
}

func NewListTurnEventsQuery(reader TranscriptReader) *ListTurnEventsQuery {
	return &ListTurnEventsQuery{reader: reader}
}

func (q *ListTurnEventsQuery) Query(ctx context.Context, msg ListTurnEventsMessage) ([]core.TurnEvent, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: transcript reader is required")
	}
	return q.reader.ListTurns(ctx, msg.TenantID, msg.ContactID, msg.Limit)
}

type GetTemplateQuery struct {
	reader TemplateReader
}

func NewGetTemplateQuery(reader TemplateReader) *GetTemplateQuery {
	return &GetTemplateQuery{reader: reader}
}

func (q *GetTemplateQuery) Query(ctx context.Context, msg GetTemplateMessage) (core.Template, error) {
	if q == nil || q.reader == nil {
		return core.Template{}, queryDependencyError("query: template reader is required")
	}
	return q.reader.Get(ctx, msg.TenantID, msg.Name)
}

type GetFlowQuery struct {
	reader FlowReader
}

func NewGetFlowQuery(reader FlowReader) *GetFlowQuery {
	return &GetFlowQuery{reader: reader}
}

func (q *GetFlowQuery) Query(ctx context.Context, msg GetFlowMessage) (core.Flow, error) {
	if q == nil || q.reader == nil {
		return core.Flow{}, queryDependencyError("query: flow reader is required")
	}
	return q.reader.GetFlow(ctx, msg.TenantID, msg.FlowID)
}

type GetMainFlowQuery struct {
	reader FlowReader
}

func NewGetMainFlowQuery(reader FlowReader) *GetMainFlowQuery {
	return &GetMainFlowQuery{reader: reader}
}

func (q *GetMainFlowQuery) Query(ctx context.Context, msg GetMainFlowMessage) (core.Flow, error) {
	if q == nil || q.reader == nil {
		return core.Flow{}, queryDependencyError("query: flow reader is required")
	}
	return q.reader.GetMainFlow(ctx, msg.TenantID)
}
