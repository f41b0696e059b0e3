package app

import (
	"github.com/vladislavdragonenkov/resellerd/internal/service/orchestrator"
)

// createOrchestrator создаёт оркестратор с лимитами из конфигурации.
func createOrchestrator(deps *Dependencies, cfg Config) orchestrator.Orchestrator {
	return orchestrator.NewWithOptions(
		deps.Ledger,
		deps.Customers,
		deps.Contacts,
		deps.Adapters,
		deps.Logger.WithField("component", "orchestrator"),
		orchestrator.Options{
			AdapterTimeout: cfg.AdapterTimeout,
			FanOutLimit:    cfg.FanOutLimit,
		},
	)
}
