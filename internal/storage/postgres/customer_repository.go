package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository создаёт PostgreSQL-реализацию CustomerRepository.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepository{db: store.DB()}
}

func (r *customerRepository) Get(ctx context.Context, id string) (domain.Customer, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var customer domain.Customer
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, first_name, last_name, company, phone, country,
		       credit_balance_minor, created_at, updated_at
		FROM customers
		WHERE id = $1
	`, id).Scan(
		&customer.ID, &customer.Email, &customer.FirstName, &customer.LastName,
		&customer.Company, &customer.Phone, &customer.Country,
		&customer.CreditBalanceMinor, &customer.CreatedAt, &customer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, domain.ErrCustomerNotFound
		}
		return domain.Customer{}, fmt.Errorf("select customer: %w", err)
	}

	return customer, nil
}

func (r *customerRepository) Create(ctx context.Context, customer domain.Customer) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (
			id, email, first_name, last_name, company, phone, country,
			credit_balance_minor, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		customer.ID, customer.Email, customer.FirstName, customer.LastName,
		customer.Company, customer.Phone, customer.Country,
		customer.CreditBalanceMinor, customer.CreatedAt, customer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}

	return nil
}

var _ domain.CustomerRepository = (*customerRepository)(nil)

type contactRepository struct {
	db *sql.DB
}

// NewContactRepository создаёт PostgreSQL-реализацию ContactRepository.
func NewContactRepository(store *Store) domain.ContactRepository {
	return &contactRepository{db: store.DB()}
}

func (r *contactRepository) FindByCustomer(ctx context.Context, customerID string) (domain.Contact, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var contact domain.Contact
	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, first_name, last_name, email, phone,
		       company, address, city, country, zip_code
		FROM contacts
		WHERE customer_id = $1
	`, customerID).Scan(
		&contact.ID, &contact.CustomerID, &contact.FirstName, &contact.LastName,
		&contact.Email, &contact.Phone, &contact.Company, &contact.Address,
		&contact.City, &contact.Country, &contact.ZipCode,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Contact{}, domain.ErrContactNotFound
		}
		return domain.Contact{}, fmt.Errorf("select contact: %w", err)
	}

	return contact, nil
}

func (r *contactRepository) Create(ctx context.Context, contact domain.Contact) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (
			id, customer_id, first_name, last_name, email, phone,
			company, address, city, country, zip_code
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`,
		contact.ID, contact.CustomerID, contact.FirstName, contact.LastName,
		contact.Email, contact.Phone, contact.Company, contact.Address,
		contact.City, contact.Country, contact.ZipCode,
	)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}

	return nil
}

var _ domain.ContactRepository = (*contactRepository)(nil)
