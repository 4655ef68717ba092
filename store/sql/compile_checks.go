package sqlstore

import (
	"github.com/goliatone/go-chatflow/core"
	"github.com/goliatone/go-chatflow/ratelimit"
	"github.com/goliatone/go-chatflow/security"
	"github.com/goliatone/go-chatflow/webhooks"
)

var (
	_ core.FlowStore                 = (*FlowStore)(nil)
	_ core.FlowStore                 = (*CachedFlowStore)(nil)
	_ core.ConversationStateStore    = (*ConversationStateStore)(nil)
	_ core.WindowStore               = (*WindowStore)(nil)
	_ core.TemplateStore             = (*TemplateStore)(nil)
	_ core.EventSink                 = (*TurnEventStore)(nil)
	_ webhooks.DeliveryLedger        = (*DeliveryLedgerStore)(nil)
	_ ratelimit.StateStore           = (*RateLimitStateStore)(nil)
	_ security.CredentialRecordStore = (*CredentialRecordStore)(nil)
)
