package flow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-chatflow/core"
)

const (
	// DefaultMaxHops caps auto-advancing per inbound message; exceeding it
	// means the flow graph loops without awaiting input.
	DefaultMaxHops = 25
	// DefaultMaxQuestionAttempts is the re-ask ceiling for a question node
	// without an authored MaxAttempts.
	DefaultMaxQuestionAttempts = 3

	defaultVersionRetries = 3
)

// Router drives a contact's conversation: it loads or creates the state,
// executes the current node, auto-advances until a node awaits input or the
// flow terminates, and persists the moved cursor exactly once per inbound
// message under an optimistic version check.
type Router struct {
	flows    core.FlowStore
	states   core.ConversationStateStore
	events   core.EventSink
	executor *Executor
	logger   core.Logger

	maxHops             int
	maxQuestionAttempts int
	versionRetries      int
	now                 func() time.Time

	locks keyedLocks
}

type RouterConfig struct {
	FlowStore           core.FlowStore
	StateStore          core.ConversationStateStore
	EventSink           core.EventSink
	Logger              core.Logger
	MaxHops             int
	MaxQuestionAttempts int
	Now                 func() time.Time
}

func NewRouter(cfg RouterConfig) *Router {
	router := &Router{
		flows:               cfg.FlowStore,
		states:              cfg.StateStore,
		events:              cfg.EventSink,
		executor:            NewExecutor(),
		logger:              cfg.Logger,
		maxHops:             cfg.MaxHops,
		maxQuestionAttempts: cfg.MaxQuestionAttempts,
		versionRetries:      defaultVersionRetries,
		now:                 cfg.Now,
	}
	if router.logger == nil {
		router.logger = glog.Nop()
	}
	if router.maxHops <= 0 {
		router.maxHops = DefaultMaxHops
	}
	if router.maxQuestionAttempts <= 0 {
		router.maxQuestionAttempts = DefaultMaxQuestionAttempts
	}
	if router.now == nil {
		router.now = func() time.Time { return time.Now().UTC() }
	}
	return router
}

// Result is the outcome of routing one inbound message.
type Result struct {
	Replies    []Reply
	State      core.ConversationState
	Terminated bool
}

// HandleInbound routes one contact message through the conversation graph.
// Concurrent messages for the same contact serialize through an in-process
// lock plus the store's version check; a conflicting write from another
// process triggers a bounded reload-and-retry.
func (r *Router) HandleInbound(ctx context.Context, msg core.InboundMessage) (Result, error) {
	if r == nil || r.flows == nil || r.states == nil {
		return Result{}, flowBadInput("router is not configured", nil)
	}
	tenantID := strings.TrimSpace(msg.TenantID)
	contactID := strings.TrimSpace(msg.ContactID)
	if tenantID == "" || contactID == "" {
		return Result{}, flowBadInput("tenant id and contact id are required", nil)
	}
	msg.TenantID = tenantID
	msg.ContactID = contactID

	unlock := r.locks.lock(tenantID + "|" + contactID)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < r.versionRetries; attempt++ {
		result, err := r.route(ctx, msg)
		if err == nil {
			r.recordTurns(ctx, msg, result)
			return result, nil
		}
		if !errors.Is(err, core.ErrStateVersionConflict) {
			return Result{}, err
		}
		lastErr = err
		r.logger.Info("conversation state version conflict, retrying",
			"tenant_id", tenantID,
			"contact_id", contactID,
			"attempt", attempt+1,
		)
	}
	return Result{}, flowPersistence(lastErr, "conversation state contention not resolved", map[string]any{
		"tenant_id":  tenantID,
		"contact_id": contactID,
	})
}

func (r *Router) route(ctx context.Context, msg core.InboundMessage) (Result, error) {
	state, created, err := r.loadOrCreateState(ctx, msg)
	if err != nil {
		return Result{}, err
	}

	vars := state.Variables
	if vars == nil {
		vars = map[string]any{}
	}

	// A pre-existing state means the current node was waiting on this
	// message; a fresh state's entry node never consumes the trigger text.
	input := ""
	if !created {
		input = msg.Text
	}

	result := Result{}
	for hop := 0; hop < r.maxHops; hop++ {
		node, err := r.flows.GetNode(ctx, state.FlowID, state.CurrentNodeID)
		if err != nil {
			return Result{}, flowWrapError(err, categoryForLookup(err),
				"current node lookup failed", 0, core.ErrorPersistence, map[string]any{
					"flow_id": state.FlowID,
					"node_id": state.CurrentNodeID,
				})
		}

		step, err := r.executor.Execute(node, input, vars)
		if err != nil {
			return Result{}, err
		}
		input = ""
		vars = step.Variables
		result.Replies = append(result.Replies, step.Replies...)

		switch step.Kind {
		case StepContinue:
			state.CurrentNodeID = step.NextNodeID
			state.Variables = vars
			state.FailedAttempts = 0

		case StepAwaitingInput:
			if step.ValidationFailed {
				state.FailedAttempts++
				limit := r.maxQuestionAttempts
				if node.Config.Question != nil && node.Config.Question.MaxAttempts > 0 {
					limit = node.Config.Question.MaxAttempts
				}
				if state.FailedAttempts >= limit {
					fallback := ""
					if node.Config.Question != nil {
						fallback = strings.TrimSpace(node.Config.Question.FallbackNext)
					}
					if fallback != "" {
						state.CurrentNodeID = fallback
						state.FailedAttempts = 0
						state.Variables = vars
						continue
					}
					state.Active = false
					state.Variables = vars
					result.Terminated = true
					return r.persist(ctx, state, created, result)
				}
			}
			state.CurrentNodeID = node.ID
			state.Variables = vars
			return r.persist(ctx, state, created, result)

		case StepJump:
			target, err := r.flows.GetFlow(ctx, state.TenantID, step.TargetFlowID)
			if err != nil {
				return Result{}, flowWrapError(err, categoryForLookup(err),
					"jump target flow lookup failed", 0, core.ErrorPersistence, map[string]any{
						"target_flow_id": step.TargetFlowID,
					})
			}
			if !step.CarryVariables {
				vars = map[string]any{}
			}
			state.FlowID = target.ID
			state.CurrentNodeID = target.EntryNodeID
			state.Variables = vars
			state.FailedAttempts = 0

		case StepTerminate:
			state.Active = false
			state.Variables = vars
			result.Terminated = true
			return r.persist(ctx, state, created, result)
		}
	}

	return Result{}, flowCycle("flow did not settle within hop budget", map[string]any{
		"flow_id": state.FlowID,
		"node_id": state.CurrentNodeID,
		"max_hops": r.maxHops,
	})
}

func (r *Router) loadOrCreateState(ctx context.Context, msg core.InboundMessage) (core.ConversationState, bool, error) {
	state, err := r.states.GetActive(ctx, msg.TenantID, msg.ContactID)
	if err == nil {
		return state, false, nil
	}
	if !errors.Is(err, core.ErrStateNotFound) {
		return core.ConversationState{}, false, flowPersistence(err, "conversation state lookup failed", map[string]any{
			"tenant_id":  msg.TenantID,
			"contact_id": msg.ContactID,
		})
	}

	mainFlow, err := r.flows.GetMainFlow(ctx, msg.TenantID)
	if err != nil {
		return core.ConversationState{}, false, flowWrapError(err, categoryForLookup(err),
			"main flow lookup failed", 0, core.ErrorPersistence, map[string]any{
				"tenant_id": msg.TenantID,
			})
	}

	now := r.now().UTC()
	created, err := r.states.Create(ctx, core.ConversationState{
		ID:            uuid.NewString(),
		TenantID:      msg.TenantID,
		ContactID:     msg.ContactID,
		FlowID:        mainFlow.ID,
		CurrentNodeID: mainFlow.EntryNodeID,
		Variables:     map[string]any{},
		Active:        true,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return core.ConversationState{}, false, flowPersistence(err, "conversation state create failed", map[string]any{
			"tenant_id":  msg.TenantID,
			"contact_id": msg.ContactID,
		})
	}
	return created, true, nil
}

func (r *Router) persist(ctx context.Context, state core.ConversationState, created bool, result Result) (Result, error) {
	state.UpdatedAt = r.now().UTC()
	saved, err := r.states.Update(ctx, state)
	if err != nil {
		if errors.Is(err, core.ErrStateVersionConflict) {
			return Result{}, err
		}
		return Result{}, flowPersistence(err, "conversation state update failed", map[string]any{
			"tenant_id":  state.TenantID,
			"contact_id": state.ContactID,
			"created":    created,
		})
	}
	result.State = saved
	return result, nil
}

func (r *Router) recordTurns(ctx context.Context, msg core.InboundMessage, result Result) {
	if r.events == nil {
		return
	}
	now := r.now().UTC()
	turns := []core.TurnEvent{{
		ID:        uuid.NewString(),
		TenantID:  msg.TenantID,
		ContactID: msg.ContactID,
		FlowID:    result.State.FlowID,
		NodeID:    result.State.CurrentNodeID,
		Direction: core.TurnInbound,
		Body:      msg.Text,
		Metadata:  map[string]any{"message_id": msg.MessageID},
		CreatedAt: now,
	}}
	for _, reply := range result.Replies {
		turns = append(turns, core.TurnEvent{
			ID:        uuid.NewString(),
			TenantID:  msg.TenantID,
			ContactID: msg.ContactID,
			FlowID:    result.State.FlowID,
			NodeID:    result.State.CurrentNodeID,
			Direction: core.TurnOutbound,
			Body:      reply.Text,
			CreatedAt: now,
		})
	}
	for _, turn := range turns {
		if err := r.events.RecordTurn(ctx, turn); err != nil {
			r.logger.Error("turn event sink rejected event",
				"tenant_id", turn.TenantID,
				"direction", string(turn.Direction),
				"error", err,
			)
		}
	}
}

func categoryForLookup(err error) goerrors.Category {
	if errors.Is(err, core.ErrFlowNotFound) || errors.Is(err, core.ErrNodeNotFound) {
		return goerrors.CategoryNotFound
	}
	return goerrors.CategoryInternal
}

type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*sync.Mutex{}
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
