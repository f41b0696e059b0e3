package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// CustomerRepository — in-memory хранилище профилей клиентов.
type CustomerRepository struct {
	mu    sync.RWMutex
	items map[string]domain.Customer
}

// NewCustomerRepository возвращает пустой in-memory репозиторий клиентов.
func NewCustomerRepository() *CustomerRepository {
	return &CustomerRepository{items: make(map[string]domain.Customer)}
}

// Get возвращает клиента или ErrCustomerNotFound.
func (r *CustomerRepository) Get(ctx context.Context, id string) (domain.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, ok := r.items[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

// Create сохраняет нового клиента.
func (r *CustomerRepository) Create(ctx context.Context, customer domain.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[customer.ID] = customer
	return nil
}

// AddCredits пополняет кредитный баланс клиента.
func (r *CustomerRepository) AddCredits(customerID string, amountMinor int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	customer, ok := r.items[customerID]
	if !ok {
		return
	}
	customer.CreditBalanceMinor += amountMinor
	customer.UpdatedAt = time.Now().UTC()
	r.items[customerID] = customer
}

var _ domain.CustomerRepository = (*CustomerRepository)(nil)

// ContactRepository — in-memory хранилище контактов регистратора.
type ContactRepository struct {
	mu         sync.RWMutex
	byCustomer map[string]domain.Contact
}

// NewContactRepository возвращает пустой in-memory репозиторий контактов.
func NewContactRepository() *ContactRepository {
	return &ContactRepository{byCustomer: make(map[string]domain.Contact)}
}

// FindByCustomer возвращает контакт клиента или ErrContactNotFound.
func (r *ContactRepository) FindByCustomer(ctx context.Context, customerID string) (domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contact, ok := r.byCustomer[customerID]
	if !ok {
		return domain.Contact{}, domain.ErrContactNotFound
	}
	return contact, nil
}

// Create сохраняет контакт клиента.
func (r *ContactRepository) Create(ctx context.Context, contact domain.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byCustomer[contact.CustomerID] = contact
	return nil
}

var _ domain.ContactRepository = (*ContactRepository)(nil)
