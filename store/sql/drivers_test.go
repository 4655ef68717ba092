package sqlstore_test

import (
	"fmt"
	"testing"
	"time"

	sqlstore "github.com/goliatone/go-chatflow/store/sql"
)

func TestDriverConfigDefaults(t *testing.T) {
	cfg := sqlstore.DriverConfig{}
	if cfg.GetPingTimeout() != 5*time.Second {
		t.Fatalf("unexpected default ping timeout: %v", cfg.GetPingTimeout())
	}
	if cfg.GetOtelIdentifier() != "go-chatflow" {
		t.Fatalf("unexpected default otel identifier: %q", cfg.GetOtelIdentifier())
	}

	cfg = sqlstore.DriverConfig{PingTimeout: time.Second, OtelIdentifier: "custom"}
	if cfg.GetPingTimeout() != time.Second || cfg.GetOtelIdentifier() != "custom" {
		t.Fatalf("expected explicit values to win: %#v", cfg)
	}
}

func TestOpenSQLite(t *testing.T) {
	dsn := fmt.Sprintf(
		"file:chatflow-driver-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	client, err := sqlstore.OpenSQLite(dsn, sqlstore.DriverConfig{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			t.Fatalf("close client: %v", err)
		}
	}()
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := sqlstore.OpenSQLite("", sqlstore.DriverConfig{}); err == nil {
		t.Fatalf("expected empty sqlite dsn to fail")
	}
	if _, err := sqlstore.OpenPostgres("", sqlstore.DriverConfig{}); err == nil {
		t.Fatalf("expected empty postgres dsn to fail")
	}
}
