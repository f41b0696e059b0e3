package domain

import "time"

// Customer — профиль владельца заказа.
type Customer struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Company   string
	Phone     string
	Country   string
	// CreditBalanceMinor — внутренний баланс AI-кредитов в минимальных единицах.
	CreditBalanceMinor int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Contact — контактный профиль для регистратора доменов (WHOIS-контакт).
type Contact struct {
	ID         string
	CustomerID string
	FirstName  string
	LastName   string
	Email      string
	Phone      string
	Company    string
	Address    string
	City       string
	Country    string
	ZipCode    string
}

// Placeholder-значения для обязательных полей регистратора, отсутствующих в профиле.
// Известный пробел источника данных: контакт синтезируется из аккаунта при первом
// доменном заказе, клиент может дозаполнить его позже.
const (
	placeholderPhone   = "+1.0000000000"
	placeholderAddress = "N/A"
	placeholderCity    = "N/A"
	placeholderCountry = "US"
	placeholderZip     = "00000"
)

// SynthesizeContact строит контакт регистратора из профиля аккаунта, подставляя
// placeholder-значения вместо отсутствующих обязательных полей.
func SynthesizeContact(customer Customer) Contact {
	contact := Contact{
		CustomerID: customer.ID,
		FirstName:  customer.FirstName,
		LastName:   customer.LastName,
		Email:      customer.Email,
		Phone:      customer.Phone,
		Company:    customer.Company,
		Address:    placeholderAddress,
		City:       placeholderCity,
		Country:    customer.Country,
		ZipCode:    placeholderZip,
	}
	if contact.FirstName == "" {
		contact.FirstName = "Account"
	}
	if contact.LastName == "" {
		contact.LastName = "Owner"
	}
	if contact.Phone == "" {
		contact.Phone = placeholderPhone
	}
	if contact.Country == "" {
		contact.Country = placeholderCountry
	}
	return contact
}
