package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestNewDependencies(t *testing.T) {
	logger := log.WithField("test", "dependencies")
	deps := NewDependencies(logger)

	if deps == nil {
		t.Fatal("NewDependencies should not return nil")
	}

	if deps.Ledger == nil {
		t.Error("Ledger should not be nil")
	}

	if deps.Customers == nil {
		t.Error("Customers should not be nil")
	}

	if deps.Contacts == nil {
		t.Error("Contacts should not be nil")
	}

	if deps.WebhookEvents == nil {
		t.Error("WebhookEvents should not be nil")
	}

	if deps.OutboxRepo == nil {
		t.Error("OutboxRepo should not be nil")
	}

	if deps.Adapters.Registrar == nil || deps.Adapters.Hosting == nil ||
		deps.Adapters.Certificates == nil || deps.Adapters.Security == nil ||
		deps.Adapters.Mailboxes == nil {
		t.Error("all provisioning adapters should be initialized")
	}

	if deps.Logger == nil {
		t.Error("Logger should not be nil")
	}
}

func TestNewDependencies_WithNilLogger(t *testing.T) {
	deps := NewDependencies(nil)

	if deps == nil {
		t.Fatal("NewDependencies should not return nil")
	}

	if deps.Logger == nil {
		t.Error("Logger should be initialized even when nil is passed")
	}
}

func TestNewDependencies_LedgerUsable(t *testing.T) {
	deps := NewDependencies(nil)

	order := newTestOrder()
	if err := deps.Ledger.CreateOrder(context.Background(), order); err != nil {
		t.Fatalf("Ledger.CreateOrder failed: %v", err)
	}

	loaded, err := deps.Ledger.GetOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("Ledger.GetOrder failed: %v", err)
	}
	if loaded.ID != order.ID || len(loaded.Items) != 1 {
		t.Fatalf("unexpected loaded order: %+v", loaded)
	}
}

func TestNewDependencies_LoggerField(t *testing.T) {
	customLogger := log.WithField("custom", "value")
	deps := NewDependencies(customLogger)

	if deps.Logger != customLogger {
		t.Error("Logger should be the same instance as passed")
	}
}

func TestNewDependencies_IndependentInstances(t *testing.T) {
	deps1 := NewDependencies(nil)
	deps2 := NewDependencies(nil)

	if deps1 == deps2 {
		t.Error("NewDependencies should create independent instances")
	}

	if deps1.Ledger == deps2.Ledger {
		t.Error("Ledger instances should be independent")
	}
}
