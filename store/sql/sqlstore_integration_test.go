package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-chatflow/core"
	chatflowmigrations "github.com/goliatone/go-chatflow/migrations"
	"github.com/goliatone/go-chatflow/ratelimit"
	"github.com/goliatone/go-chatflow/security"
	sqlstore "github.com/goliatone/go-chatflow/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-chatflow-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:chatflow-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = chatflowmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != chatflowmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, chatflowmigrations.WithValidationTargets(chatflowmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T) (*sqlstore.RepositoryFactory, *persistence.Client, func()) {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		cleanup()
		t.Fatalf("new repository factory: %v", err)
	}
	return factory, client, cleanup
}

func seedFlow(t *testing.T, factory *sqlstore.RepositoryFactory, tenantID string) core.Flow {
	t.Helper()
	flow, err := factory.FlowStore().SaveFlow(context.Background(), core.Flow{
		TenantID:    tenantID,
		Name:        "onboarding",
		EntryNodeID: "start",
		IsMain:      true,
		Active:      true,
	}, []core.Node{
		{ID: "start", Type: core.NodeTypeStart, Config: core.NodeConfig{Start: &core.StartConfig{Greeting: "hi {{name}}", Next: "ask_name"}}},
		{ID: "ask_name", Type: core.NodeTypeQuestion, Config: core.NodeConfig{Question: &core.QuestionConfig{
			Prompt:   "what is your name?",
			Variable: "name",
			Rule:     core.ValidationRule{Kind: core.ValidationText, MinLength: 2},
			Next:     "bye",
		}}},
		{ID: "bye", Type: core.NodeTypeEnd, Config: core.NodeConfig{End: &core.EndConfig{Text: "thanks {{name}}"}}},
	})
	if err != nil {
		t.Fatalf("save flow: %v", err)
	}
	return flow
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"chatflow_flows",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "chatflow_flows" {
		t.Fatalf("expected chatflow_flows table, got %q", tableName)
	}
}

func TestFlowStore_SaveAndReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	factory, _, cleanup := newFactory(t)
	defer cleanup()

	flow := seedFlow(t, factory, "t1")

	main, err := factory.FlowStore().GetMainFlow(ctx, "t1")
	if err != nil {
		t.Fatalf("get main flow: %v", err)
	}
	if main.ID != flow.ID || main.EntryNodeID != "start" {
		t.Fatalf("unexpected main flow %+v", main)
	}

	node, err := factory.FlowStore().GetNode(ctx, flow.ID, "ask_name")
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	question := node.Config.Question
	if question == nil {
		t.Fatalf("expected question config, got %+v", node.Config)
	}
	if question.Variable != "name" || question.Rule.Kind != core.ValidationText || question.Rule.MinLength != 2 {
		t.Fatalf("question config lost in round trip: %+v", question)
	}

	nodes, err := factory.FlowStore().ListNodes(ctx, flow.ID)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(nodes))
	}

	if _, err := factory.FlowStore().GetFlow(ctx, "other-tenant", flow.ID); !errors.Is(err, core.ErrFlowNotFound) {
		t.Fatalf("expected cross-tenant lookup to miss, got %v", err)
	}
}

func TestConversationStateStore_OptimisticVersioning(t *testing.T) {
	ctx := context.Background()
	factory, _, cleanup := newFactory(t)
	defer cleanup()

	created, err := factory.ConversationStateStore().Create(ctx, core.ConversationState{
		TenantID:      "t1",
		ContactID:     "c1",
		FlowID:        "flow-1",
		CurrentNodeID: "start",
		Variables:     map[string]any{"name": "Ada"},
		Active:        true,
	})
	if err != nil {
		t.Fatalf("create state: %v", err)
	}
	if created.Version != 1 {
		t.Fatalf("expected version 1, got %d", created.Version)
	}

	updated := created
	updated.CurrentNodeID = "ask_name"
	first, err := factory.ConversationStateStore().Update(ctx, updated)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if first.Version != 2 {
		t.Fatalf("expected version 2, got %d", first.Version)
	}

	// second write against the stale snapshot must miss
	stale := created
	stale.CurrentNodeID = "bye"
	if _, err := factory.ConversationStateStore().Update(ctx, stale); !errors.Is(err, core.ErrStateVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	loaded, err := factory.ConversationStateStore().GetActive(ctx, "t1", "c1")
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if loaded.CurrentNodeID != "ask_name" || loaded.Version != 2 {
		t.Fatalf("stale write must not land: %+v", loaded)
	}
	if loaded.Variables["name"] != "Ada" {
		t.Fatalf("variables lost in round trip: %+v", loaded.Variables)
	}

	if err := factory.ConversationStateStore().Deactivate(ctx, created.Key()); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := factory.ConversationStateStore().GetActive(ctx, "t1", "c1"); !errors.Is(err, core.ErrStateNotFound) {
		t.Fatalf("expected no active state after deactivation, got %v", err)
	}
}

func TestConversationStateStore_DeactivateStale(t *testing.T) {
	ctx := context.Background()
	factory, _, cleanup := newFactory(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		if _, err := factory.ConversationStateStore().Create(ctx, core.ConversationState{
			TenantID:      "t1",
			ContactID:     fmt.Sprintf("c%d", i),
			FlowID:        "flow-1",
			CurrentNodeID: "start",
			Active:        true,
		}); err != nil {
			t.Fatalf("create state %d: %v", i, err)
		}
	}

	swept, err := factory.ConversationStateStore().DeactivateStale(ctx, "t1", time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("deactivate stale: %v", err)
	}
	if swept != 3 {
		t.Fatalf("expected 3 swept states, got %d", swept)
	}

	again, err := factory.ConversationStateStore().DeactivateStale(ctx, "t1", time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again != 0 {
		t.Fatalf("second sweep must be a no-op, got %d", again)
	}
}

func TestWindowStore_UpsertAndAtomicExpiry(t *testing.T) {
	ctx := context.Background()
	factory, _, cleanup := newFactory(t)
	defer cleanup()

	now := time.Now().UTC()
	for i, endsAt := range []time.Time{now.Add(-time.Hour), now.Add(-time.Minute), now.Add(time.Hour)} {
		if _, err := factory.WindowStore().Upsert(ctx, core.ConversationWindow{
			TenantID:  "t1",
			ContactID: fmt.Sprintf("c%d", i),
			StartedAt: endsAt.Add(-24 * time.Hour),
			EndsAt:    endsAt,
			Status:    core.WindowStatusActive,
		}); err != nil {
			t.Fatalf("upsert window %d: %v", i, err)
		}
	}

	expired, err := factory.WindowStore().ExpireDue(ctx, "t1", now)
	if err != nil {
		t.Fatalf("expire due: %v", err)
	}
	if expired != 2 {
		t.Fatalf("expected 2 expired windows, got %d", expired)
	}

	again, err := factory.WindowStore().ExpireDue(ctx, "t1", now)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again != 0 {
		t.Fatalf("sweep must be idempotent, got %d", again)
	}

	open, err := factory.WindowStore().Get(ctx, "t1", "c2")
	if err != nil {
		t.Fatalf("get open window: %v", err)
	}
	if open.Status != core.WindowStatusActive {
		t.Fatalf("open window must stay active, got %s", open.Status)
	}

	// upsert replaces the row for the same contact instead of duplicating it
	refreshed, err := factory.WindowStore().Upsert(ctx, core.ConversationWindow{
		TenantID:  "t1",
		ContactID: "c2",
		StartedAt: now,
		EndsAt:    now.Add(24 * time.Hour),
		Status:    core.WindowStatusActive,
	})
	if err != nil {
		t.Fatalf("refresh window: %v", err)
	}
	if !refreshed.EndsAt.After(now.Add(23 * time.Hour)) {
		t.Fatalf("refresh must extend the window, got %v", refreshed.EndsAt)
	}
}

func TestDeliveryLedgerStore_DedupeAndRecovery(t *testing.T) {
	ctx := context.Background()
	factory, _, cleanup := newFactory(t)
	defer cleanup()

	ledger := factory.DeliveryLedger()

	record, claimed, err := ledger.Claim(ctx, "t1", "wamid.1", time.Minute)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed {
		t.Fatal("first claim must succeed")
	}

	// held under a live lease
	if _, claimed, err := ledger.Claim(ctx, "t1", "wamid.1", time.Minute); err != nil || claimed {
		t.Fatalf("duplicate claim under lease must be rejected: claimed=%v err=%v", claimed, err)
	}

	if err := ledger.Complete(ctx, record.ClaimID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, claimed, err := ledger.Claim(ctx, "t1", "wamid.1", time.Minute); err != nil || claimed {
		t.Fatalf("processed delivery must not be re-claimable: claimed=%v err=%v", claimed, err)
	}

	// failed deliveries stay claimable so vendor retries can recover
	second, claimed, err := ledger.Claim(ctx, "t1", "wamid.2", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("claim second message: claimed=%v err=%v", claimed, err)
	}
	if err := ledger.Fail(ctx, second.ClaimID, errors.New("router unavailable")); err != nil {
		t.Fatalf("fail: %v", err)
	}
	retried, claimed, err := ledger.Claim(ctx, "t1", "wamid.2", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("failed delivery must be re-claimable: claimed=%v err=%v", claimed, err)
	}
	if retried.Attempts != 2 {
		t.Fatalf("expected attempt counter to advance, got %d", retried.Attempts)
	}

	// other tenants do not collide on the same provider message id
	if _, claimed, err := ledger.Claim(ctx, "t2", "wamid.1", time.Minute); err != nil || !claimed {
		t.Fatalf("tenant isolation broken: claimed=%v err=%v", claimed, err)
	}

	if err := ledger.Complete(ctx, "missing-claim"); err == nil {
		t.Fatal("completing an unknown claim must fail")
	}
}

func TestTemplateStore_UpsertStatus(t *testing.T) {
	ctx := context.Background()
	factory, _, cleanup := newFactory(t)
	defer cleanup()

	templates := factory.TemplateStore()

	created, err := templates.UpsertStatus(ctx, "t1", "order_update", "en_US", core.TemplateStatusPending)
	if err != nil {
		t.Fatalf("upsert pending: %v", err)
	}
	if created.Approved() {
		t.Fatal("pending template must not be approved")
	}

	approved, err := templates.UpsertStatus(ctx, "t1", "order_update", "en_US", core.TemplateStatusApproved)
	if err != nil {
		t.Fatalf("upsert approved: %v", err)
	}
	if !approved.Approved() {
		t.Fatalf("expected approved template, got %s", approved.Status)
	}

	loaded, err := templates.Get(ctx, "t1", "order_update")
	if err != nil {
		t.Fatalf("get template: %v", err)
	}
	if loaded.Status != core.TemplateStatusApproved {
		t.Fatalf("status upsert must replace, got %s", loaded.Status)
	}

	if _, err := templates.Get(ctx, "t1", "missing"); !errors.Is(err, core.ErrTemplateNotFound) {
		t.Fatalf("expected template not found, got %v", err)
	}
}

func TestTurnEventStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	factory, _, cleanup := newFactory(t)
	defer cleanup()

	sink := factory.TurnEventStore()
	events := []core.TurnEvent{
		{TenantID: "t1", ContactID: "c1", FlowID: "flow-1", NodeID: "start", Direction: core.TurnInbound, Body: "hello"},
		{TenantID: "t1", ContactID: "c1", FlowID: "flow-1", NodeID: "ask_name", Direction: core.TurnOutbound, Body: "what is your name?"},
	}
	for _, event := range events {
		if err := sink.RecordTurn(ctx, event); err != nil {
			t.Fatalf("record turn: %v", err)
		}
	}

	turns, err := sink.ListTurns(ctx, "t1", "c1", 10)
	if err != nil {
		t.Fatalf("list turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Direction != core.TurnInbound || turns[1].Direction != core.TurnOutbound {
		t.Fatalf("transcript order broken: %+v", turns)
	}
}

func TestRateLimitStateStore_BacksSlidingWindowPolicy(t *testing.T) {
	ctx := context.Background()
	factory, _, cleanup := newFactory(t)
	defer cleanup()

	policy := ratelimit.NewSlidingWindowPolicy(factory.RateLimitStateStore(), 2, time.Minute)

	for i := 0; i < 2; i++ {
		if err := policy.Reserve(ctx, "t1"); err != nil {
			t.Fatalf("reserve %d: %v", i+1, err)
		}
	}
	err := policy.Reserve(ctx, "t1")
	var throttled ratelimit.ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error, got %v", err)
	}

	// other tenants keep their own budget
	if err := policy.Reserve(ctx, "t2"); err != nil {
		t.Fatalf("tenant isolation broken: %v", err)
	}
}

func TestCredentialRecordStore_SealedRoundTrip(t *testing.T) {
	ctx := context.Background()
	factory, _, cleanup := newFactory(t)
	defer cleanup()

	provider, err := security.NewAppKeySecretProviderFromString("integration-key")
	if err != nil {
		t.Fatalf("create secret provider: %v", err)
	}
	resolver := security.NewEncryptedCredentialResolver(provider, factory.CredentialRecordStore())

	creds := core.TenantCredentials{
		TenantID:      "t1",
		SigningSecret: "whsec_abc",
		AccessToken:   "token-123",
		PhoneNumberID: "pn-1",
	}
	if err := resolver.Save(ctx, creds); err != nil {
		t.Fatalf("save credentials: %v", err)
	}

	resolved, err := resolver.Resolve(ctx, "t1")
	if err != nil {
		t.Fatalf("resolve credentials: %v", err)
	}
	if resolved != creds {
		t.Fatalf("round trip mismatch: %+v", resolved)
	}

	if _, err := resolver.Resolve(ctx, "missing"); !errors.Is(err, core.ErrCredentialsNotFound) {
		t.Fatalf("expected credentials not found, got %v", err)
	}
}
