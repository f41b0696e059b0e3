package certauth

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// MockService — конфигурируемая заглушка CertificateService для разработки и тестов.
type MockService struct {
	mu sync.Mutex

	Result domain.IssueCertificateResult
	Err    error

	Calls int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		Result: domain.IssueCertificateResult{
			CertificateID: "cert-1",
			ExpiresAt:     time.Now().UTC().AddDate(1, 0, 0),
		},
	}
}

// Issue возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) Issue(ctx context.Context, req domain.IssueCertificateRequest) (domain.IssueCertificateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	return m.Result, m.Err
}

var _ domain.CertificateService = (*MockService)(nil)
