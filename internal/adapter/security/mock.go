package security

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// MockService — конфигурируемая заглушка SecurityService для разработки и тестов.
type MockService struct {
	mu sync.Mutex

	Result domain.ActivateScannerResult
	Err    error

	Calls int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		Result: domain.ActivateScannerResult{AccountID: "sec-1"},
	}
}

// Activate возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) Activate(ctx context.Context, domainName, planRef string) (domain.ActivateScannerResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	return m.Result, m.Err
}

var _ domain.SecurityService = (*MockService)(nil)
