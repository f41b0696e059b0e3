package hosting

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// MockService — конфигурируемая заглушка HostingService для разработки и тестов.
type MockService struct {
	mu sync.Mutex

	Result domain.ProvisionSiteResult
	Err    error
	// Delay имитирует сетевую задержку; используется в тестах таймаутов.
	Delay time.Duration

	Calls int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		Result: domain.ProvisionSiteResult{
			SiteID:       "site-1",
			HostingID:    "host-1",
			SFTPHost:     "sftp.hosting.example",
			SFTPUsername: "site1",
			AdminURL:     "https://site-1.hosting.example/wp-admin",
		},
	}
}

// ProvisionSite возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) ProvisionSite(ctx context.Context, req domain.ProvisionSiteRequest) (domain.ProvisionSiteResult, error) {
	m.mu.Lock()
	m.Calls++
	delay, result, err := m.Delay, m.Result, m.Err
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.ProvisionSiteResult{}, ctx.Err()
		}
	}
	return result, err
}

var _ domain.HostingService = (*MockService)(nil)
