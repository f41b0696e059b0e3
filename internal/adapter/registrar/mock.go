package registrar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// MockService — конфигурируемая заглушка RegistrarService для разработки и тестов.
type MockService struct {
	mu sync.Mutex

	RegisterResult domain.RegisterDomainResult
	RegisterErr    error
	TransferResult domain.TransferDomainResult
	TransferErr    error
	RenewResult    domain.RenewDomainResult
	RenewErr       error
	PrivacyResult  domain.EnablePrivacyResult
	PrivacyErr     error
	// Delay имитирует сетевую задержку; используется в тестах таймаутов.
	Delay time.Duration

	RegisterCalls int
	TransferCalls int
	RenewCalls    int
	PrivacyCalls  int
}

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		RegisterResult: domain.RegisterDomainResult{
			OrderID:    "reg-order-1",
			DomainID:   "d-1",
			ExpiryDate: time.Now().UTC().AddDate(1, 0, 0),
		},
		TransferResult: domain.TransferDomainResult{TransferID: "tr-1", Status: "pending_owner_approval"},
		RenewResult:    domain.RenewDomainResult{RenewalID: "rn-1", ExpiryDate: time.Now().UTC().AddDate(1, 0, 0)},
		PrivacyResult:  domain.EnablePrivacyResult{PrivacyID: "pp-1"},
	}
}

// Register возвращает заранее настроенный результат и считает вызовы.
func (m *MockService) Register(ctx context.Context, req domain.RegisterDomainRequest) (domain.RegisterDomainResult, error) {
	m.mu.Lock()
	m.RegisterCalls++
	delay, result, err := m.Delay, m.RegisterResult, m.RegisterErr
	m.mu.Unlock()

	if waitErr := wait(ctx, delay); waitErr != nil {
		return domain.RegisterDomainResult{}, waitErr
	}
	if err != nil {
		return domain.RegisterDomainResult{}, err
	}
	if result.DomainID == "" {
		result.DomainID = fmt.Sprintf("d-%s", req.DomainName)
	}
	return result, nil
}

// Transfer возвращает настроенный результат и считает вызовы.
func (m *MockService) Transfer(ctx context.Context, req domain.TransferDomainRequest) (domain.TransferDomainResult, error) {
	m.mu.Lock()
	m.TransferCalls++
	delay, result, err := m.Delay, m.TransferResult, m.TransferErr
	m.mu.Unlock()

	if waitErr := wait(ctx, delay); waitErr != nil {
		return domain.TransferDomainResult{}, waitErr
	}
	return result, err
}

// Renew возвращает настроенный результат и считает вызовы.
func (m *MockService) Renew(ctx context.Context, domainName string, years int) (domain.RenewDomainResult, error) {
	m.mu.Lock()
	m.RenewCalls++
	delay, result, err := m.Delay, m.RenewResult, m.RenewErr
	m.mu.Unlock()

	if waitErr := wait(ctx, delay); waitErr != nil {
		return domain.RenewDomainResult{}, waitErr
	}
	return result, err
}

// EnablePrivacy возвращает настроенный результат и считает вызовы.
func (m *MockService) EnablePrivacy(ctx context.Context, domainName string) (domain.EnablePrivacyResult, error) {
	m.mu.Lock()
	m.PrivacyCalls++
	delay, result, err := m.Delay, m.PrivacyResult, m.PrivacyErr
	m.mu.Unlock()

	if waitErr := wait(ctx, delay); waitErr != nil {
		return domain.EnablePrivacyResult{}, waitErr
	}
	return result, err
}

// wait блокируется на delay, уважая отмену контекста.
func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ domain.RegistrarService = (*MockService)(nil)
