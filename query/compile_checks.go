package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-chatflow/core"
)

var (
	_ gocmd.Querier[GetConversationStateMessage, core.ConversationState] = (*GetConversationStateQuery)(nil)
	_ gocmd.Querier[GetWindowStatusMessage, core.WindowStatus]           = (*GetWindowStatusQuery)(nil)
	_ gocmd.Querier[ListTurnEventsMessage, []core.TurnEvent]             = (*ListTurnEventsQuery)(nil)
	_ gocmd.Querier[GetTemplateMessage, core.Template]                   = (*GetTemplateQuery)(nil)
	_ gocmd.Querier[GetFlowMessage, core.Flow]                           = (*GetFlowQuery)(nil)
	_ gocmd.Querier[GetMainFlowMessage, core.Flow]                       = (*GetMainFlowQuery)(nil)
)
