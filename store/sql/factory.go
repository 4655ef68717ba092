package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory wires every SQL-backed store off one bun connection.
type RepositoryFactory struct {
	db *bun.DB

	flowStore             *FlowStore
	stateStore            *ConversationStateStore
	windowStore           *WindowStore
	deliveryLedger        *DeliveryLedgerStore
	templateStore         *TemplateStore
	turnEventStore        *TurnEventStore
	rateLimitStateStore   *RateLimitStateStore
	credentialRecordStore *CredentialRecordStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.flowStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) initStores() error {
	flowStore, err := NewFlowStore(f.db)
	if err != nil {
		return err
	}
	f.flowStore = flowStore

	stateStore, err := NewConversationStateStore(f.db)
	if err != nil {
		return err
	}
	f.stateStore = stateStore

	windowStore, err := NewWindowStore(f.db)
	if err != nil {
		return err
	}
	f.windowStore = windowStore

	deliveryLedger, err := NewDeliveryLedgerStore(f.db)
	if err != nil {
		return err
	}
	f.deliveryLedger = deliveryLedger

	templateStore, err := NewTemplateStore(f.db)
	if err != nil {
		return err
	}
	f.templateStore = templateStore

	turnEventStore, err := NewTurnEventStore(f.db)
	if err != nil {
		return err
	}
	f.turnEventStore = turnEventStore

	rateLimitStateStore, err := NewRateLimitStateStore(f.db)
	if err != nil {
		return err
	}
	f.rateLimitStateStore = rateLimitStateStore

	credentialRecordStore, err := NewCredentialRecordStore(f.db)
	if err != nil {
		return err
	}
	f.credentialRecordStore = credentialRecordStore

	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) FlowStore() *FlowStore {
	if f == nil {
		return nil
	}
	return f.flowStore
}

func (f *RepositoryFactory) ConversationStateStore() *ConversationStateStore {
	if f == nil {
		return nil
	}
	return f.stateStore
}

func (f *RepositoryFactory) WindowStore() *WindowStore {
	if f == nil {
		return nil
	}
	return f.windowStore
}

func (f *RepositoryFactory) DeliveryLedger() *DeliveryLedgerStore {
	if f == nil {
		return nil
	}
	return f.deliveryLedger
}

func (f *RepositoryFactory) TemplateStore() *TemplateStore {
	if f == nil {
		return nil
	}
	return f.templateStore
}

func (f *RepositoryFactory) TurnEventStore() *TurnEventStore {
	if f == nil {
		return nil
	}
	return f.turnEventStore
}

func (f *RepositoryFactory) RateLimitStateStore() *RateLimitStateStore {
	if f == nil {
		return nil
	}
	return f.rateLimitStateStore
}

func (f *RepositoryFactory) CredentialRecordStore() *CredentialRecordStore {
	if f == nil {
		return nil
	}
	return f.credentialRecordStore
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
