package mailhost

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// MockService — конфигурируемая заглушка MailboxService для разработки и тестов.
type MockService struct {
	mu sync.Mutex

	Result domain.CreateMailboxResult
	Err    error

	Calls int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		Result: domain.CreateMailboxResult{MailboxID: "mbx-1", Server: "mail.example.net"},
	}
}

// CreateMailbox возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) CreateMailbox(ctx context.Context, req domain.CreateMailboxRequest) (domain.CreateMailboxResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	return m.Result, m.Err
}

var _ domain.MailboxService = (*MockService)(nil)
