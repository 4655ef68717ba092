package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-chatflow/core"
)

const flowCacheKeyPrefix = "go-chatflow::flow::v1"

// CachedFlowStore layers a read-through cache over a flow store. Flow
// definitions change rarely and are read on every inbound message, which
// makes them the highest-value cache target in the module.
type CachedFlowStore struct {
	base  core.FlowStore
	cache repositorycache.CacheService
}

func NewCachedFlowStore(base core.FlowStore, cacheService repositorycache.CacheService) (*CachedFlowStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base flow store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: flow cache service is required")
	}
	return &CachedFlowStore{base: base, cache: cacheService}, nil
}

var _ core.FlowStore = (*CachedFlowStore)(nil)

func flowCacheKey(parts ...string) string {
	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, flowCacheKeyPrefix)
	for _, part := range parts {
		segments = append(segments, url.PathEscape(strings.TrimSpace(part)))
	}
	return strings.Join(segments, "::")
}

func (s *CachedFlowStore) GetFlow(ctx context.Context, tenantID string, flowID string) (core.Flow, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Flow{}, fmt.Errorf("sqlstore: cached flow store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, flowCacheKey("flow", tenantID, flowID), func(ctx context.Context) (core.Flow, error) {
		return s.base.GetFlow(ctx, tenantID, flowID)
	})
}

func (s *CachedFlowStore) GetMainFlow(ctx context.Context, tenantID string) (core.Flow, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Flow{}, fmt.Errorf("sqlstore: cached flow store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, flowCacheKey("main", tenantID), func(ctx context.Context) (core.Flow, error) {
		return s.base.GetMainFlow(ctx, tenantID)
	})
}

func (s *CachedFlowStore) GetNode(ctx context.Context, flowID string, nodeID string) (core.Node, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Node{}, fmt.Errorf("sqlstore: cached flow store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, flowCacheKey("node", flowID, nodeID), func(ctx context.Context) (core.Node, error) {
		return s.base.GetNode(ctx, flowID, nodeID)
	})
}

func (s *CachedFlowStore) ListNodes(ctx context.Context, flowID string) ([]core.Node, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached flow store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, flowCacheKey("nodes", flowID), func(ctx context.Context) ([]core.Node, error) {
		return s.base.ListNodes(ctx, flowID)
	})
}

// InvalidateFlow drops every cached entry for one flow. Call after authoring
// writes; node entries are keyed individually so the whole flow is cleared.
func (s *CachedFlowStore) InvalidateFlow(ctx context.Context, tenantID string, flowID string, nodeIDs []string) error {
	if s == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached flow store is not configured")
	}
	keys := []string{
		flowCacheKey("flow", tenantID, flowID),
		flowCacheKey("main", tenantID),
		flowCacheKey("nodes", flowID),
	}
	for _, nodeID := range nodeIDs {
		keys = append(keys, flowCacheKey("node", flowID, nodeID))
	}
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
