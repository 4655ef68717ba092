package flow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-chatflow/core"
)

// MemoryFlowStore is a map-backed FlowStore for tests and embedded use.
// Flows and their nodes are registered up front; registration validates every
// node so malformed authoring data never reaches the executor.
type MemoryFlowStore struct {
	mu    sync.RWMutex
	flows map[string]core.Flow
	nodes map[string]map[string]core.Node
}

func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{
		flows: map[string]core.Flow{},
		nodes: map[string]map[string]core.Node{},
	}
}

var _ core.FlowStore = (*MemoryFlowStore)(nil)

// Register adds a flow and its nodes, rejecting invalid node configs and
// dangling entry pointers.
func (s *MemoryFlowStore) Register(flow core.Flow, nodes []core.Node) error {
	if s == nil {
		return core.ErrFlowNotFound
	}
	if strings.TrimSpace(flow.ID) == "" {
		return flowBadInput("flow id is required", nil)
	}
	byID := make(map[string]core.Node, len(nodes))
	for _, node := range nodes {
		if err := node.Validate(); err != nil {
			return err
		}
		byID[node.ID] = node
	}
	if _, ok := byID[flow.EntryNodeID]; !ok {
		return flowBadInput("entry node is not part of the flow", map[string]any{
			"flow_id":       flow.ID,
			"entry_node_id": flow.EntryNodeID,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.ID] = flow
	s.nodes[flow.ID] = byID
	return nil
}

func (s *MemoryFlowStore) GetFlow(_ context.Context, tenantID, flowID string) (core.Flow, error) {
	if s == nil {
		return core.Flow{}, core.ErrFlowNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	flow, ok := s.flows[strings.TrimSpace(flowID)]
	if !ok || flow.TenantID != strings.TrimSpace(tenantID) {
		return core.Flow{}, core.ErrFlowNotFound
	}
	return flow, nil
}

func (s *MemoryFlowStore) GetMainFlow(_ context.Context, tenantID string) (core.Flow, error) {
	if s == nil {
		return core.Flow{}, core.ErrFlowNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, flow := range s.flows {
		if flow.TenantID == strings.TrimSpace(tenantID) && flow.IsMain && flow.Active {
			return flow, nil
		}
	}
	return core.Flow{}, core.ErrFlowNotFound
}

func (s *MemoryFlowStore) GetNode(_ context.Context, flowID, nodeID string) (core.Node, error) {
	if s == nil {
		return core.Node{}, core.ErrNodeNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes, ok := s.nodes[strings.TrimSpace(flowID)]
	if !ok {
		return core.Node{}, core.ErrFlowNotFound
	}
	node, ok := nodes[strings.TrimSpace(nodeID)]
	if !ok {
		return core.Node{}, core.ErrNodeNotFound
	}
	return node, nil
}

func (s *MemoryFlowStore) ListNodes(_ context.Context, flowID string) ([]core.Node, error) {
	if s == nil {
		return nil, core.ErrFlowNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes, ok := s.nodes[strings.TrimSpace(flowID)]
	if !ok {
		return nil, core.ErrFlowNotFound
	}
	out := make([]core.Node, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, node)
	}
	return out, nil
}

// MemoryStateStore is a map-backed ConversationStateStore enforcing the same
// optimistic version check as the SQL store.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]core.ConversationState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: map[string]core.ConversationState{}}
}

var _ core.ConversationStateStore = (*MemoryStateStore)(nil)

func (s *MemoryStateStore) Get(_ context.Context, key core.ConversationKey) (core.ConversationState, error) {
	if s == nil {
		return core.ConversationState{}, core.ErrStateNotFound
	}
	if err := key.Validate(); err != nil {
		return core.ConversationState{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range s.states {
		if state.Key() == key {
			return cloneState(state), nil
		}
	}
	return core.ConversationState{}, core.ErrStateNotFound
}

func (s *MemoryStateStore) GetActive(_ context.Context, tenantID, contactID string) (core.ConversationState, error) {
	if s == nil {
		return core.ConversationState{}, core.ErrStateNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, state := range s.states {
		if state.TenantID == strings.TrimSpace(tenantID) &&
			state.ContactID == strings.TrimSpace(contactID) &&
			state.Active {
			return cloneState(state), nil
		}
	}
	return core.ConversationState{}, core.ErrStateNotFound
}

func (s *MemoryStateStore) Create(_ context.Context, state core.ConversationState) (core.ConversationState, error) {
	if s == nil {
		return core.ConversationState{}, core.ErrStateNotFound
	}
	if strings.TrimSpace(state.ID) == "" {
		state.ID = uuid.NewString()
	}
	if state.Version <= 0 {
		state.Version = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.ID] = cloneState(state)
	return cloneState(state), nil
}

func (s *MemoryStateStore) Update(_ context.Context, state core.ConversationState) (core.ConversationState, error) {
	if s == nil {
		return core.ConversationState{}, core.ErrStateNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.states[state.ID]
	if !ok {
		return core.ConversationState{}, core.ErrStateNotFound
	}
	if existing.Version != state.Version {
		return core.ConversationState{}, core.ErrStateVersionConflict
	}
	state.Version++
	s.states[state.ID] = cloneState(state)
	return cloneState(state), nil
}

func (s *MemoryStateStore) Deactivate(_ context.Context, key core.ConversationKey) error {
	if s == nil {
		return core.ErrStateNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, state := range s.states {
		if state.Key() == key && state.Active {
			state.Active = false
			s.states[id] = state
			return nil
		}
	}
	return core.ErrStateNotFound
}

func (s *MemoryStateStore) DeactivateStale(_ context.Context, tenantID string, inactiveSince time.Time) (int64, error) {
	if s == nil {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for id, state := range s.states {
		if tenantID != "" && state.TenantID != strings.TrimSpace(tenantID) {
			continue
		}
		if !state.Active || state.UpdatedAt.After(inactiveSince) {
			continue
		}
		state.Active = false
		s.states[id] = state
		count++
	}
	return count, nil
}

func cloneState(state core.ConversationState) core.ConversationState {
	cloned := state
	cloned.Variables = make(map[string]any, len(state.Variables))
	for key, value := range state.Variables {
		cloned.Variables[key] = value
	}
	return cloned
}
