package domain

import "time"

// ResourceKind — семейство provisioned-ресурса.
type ResourceKind string

const (
	ResourceKindDomain          ResourceKind = "domain"
	ResourceKindHostingAccount  ResourceKind = "hosting_account"
	ResourceKindCertificate     ResourceKind = "certificate"
	ResourceKindMailbox         ResourceKind = "mailbox"
	ResourceKindSecurityAccount ResourceKind = "security_account"
	ResourceKindCreditTopUp     ResourceKind = "credit_topup"
)

// ProvisionedResource — локальная запись о созданном внешней системой ресурсе.
// Создаётся как side effect успешной обработки позиции; позиция ссылается на неё
// через OrderItem.ResourceID.
type ProvisionedResource struct {
	ID         string
	CustomerID string
	OrderID    string
	ItemID     string
	Kind       ResourceKind
	// ExternalRef — идентификатор ресурса во внешней системе.
	ExternalRef string
	// Attributes — метаданные провайдера в JSON (expiry, sftp host, admin url и т.п.).
	Attributes []byte
	CreatedAt  time.Time
}
