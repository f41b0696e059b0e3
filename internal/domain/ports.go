package domain

import (
	"context"
	"time"
)

// RegisterDomainRequest — параметры регистрации домена у регистратора.
type RegisterDomainRequest struct {
	DomainName  string
	Years       int
	Contact     Contact
	Nameservers []string
	Privacy     bool
}

// RegisterDomainResult — ответ регистратора при успешной регистрации.
type RegisterDomainResult struct {
	OrderID    string
	DomainID   string
	ExpiryDate time.Time
}

// TransferDomainRequest — параметры трансфера домена.
type TransferDomainRequest struct {
	DomainName string
	AuthCode   string
	Contact    Contact
}

// TransferDomainResult — ответ регистратора на запрос трансфера.
type TransferDomainResult struct {
	TransferID string
	Status     string
}

// RenewDomainResult — ответ регистратора на продление.
type RenewDomainResult struct {
	RenewalID  string
	ExpiryDate time.Time
}

// EnablePrivacyResult — ответ регистратора на активацию privacy protection.
type EnablePrivacyResult struct {
	PrivacyID string
}

// RegistrarService описывает взаимодействие с доменным регистратором.
type RegistrarService interface {
	Register(ctx context.Context, req RegisterDomainRequest) (RegisterDomainResult, error)
	Transfer(ctx context.Context, req TransferDomainRequest) (TransferDomainResult, error)
	Renew(ctx context.Context, domainName string, years int) (RenewDomainResult, error)
	EnablePrivacy(ctx context.Context, domainName string) (EnablePrivacyResult, error)
}

// ProvisionSiteRequest — параметры создания хостинг-аккаунта.
type ProvisionSiteRequest struct {
	SiteName   string
	Domain     string
	PlanRef    string
	AdminEmail string
	Options    map[string]string
}

// ProvisionSiteResult — реквизиты созданного хостинг-аккаунта.
type ProvisionSiteResult struct {
	SiteID       string
	HostingID    string
	SFTPHost     string
	SFTPUsername string
	AdminURL     string
}

// HostingService описывает взаимодействие с хостинг-платформой.
type HostingService interface {
	ProvisionSite(ctx context.Context, req ProvisionSiteRequest) (ProvisionSiteResult, error)
}

// IssueCertificateRequest — параметры выпуска SSL-сертификата.
type IssueCertificateRequest struct {
	Domain     string
	CertType   string
	Years      int
	AdminEmail string
}

// IssueCertificateResult — ответ центра сертификации.
type IssueCertificateResult struct {
	CertificateID string
	ExpiresAt     time.Time
}

// CertificateService описывает взаимодействие с центром сертификации.
type CertificateService interface {
	Issue(ctx context.Context, req IssueCertificateRequest) (IssueCertificateResult, error)
}

// ActivateScannerResult — ответ security-сканера на активацию подписки.
type ActivateScannerResult struct {
	AccountID string
}

// SecurityService описывает взаимодействие с security-сканером (sitelock).
type SecurityService interface {
	Activate(ctx context.Context, domain, planRef string) (ActivateScannerResult, error)
}

// CreateMailboxRequest — параметры создания почтового ящика.
type CreateMailboxRequest struct {
	Domain  string
	Mailbox string
	QuotaMB int
}

// CreateMailboxResult — реквизиты созданного ящика.
type CreateMailboxResult struct {
	MailboxID string
	Server    string
}

// MailboxService описывает взаимодействие с почтовым хостом.
type MailboxService interface {
	CreateMailbox(ctx context.Context, req CreateMailboxRequest) (CreateMailboxResult, error)
}

// WebhookVerifier проверяет подпись входящего webhook конкретного шлюза.
// Реализация обязана использовать constant-time сравнение.
type WebhookVerifier interface {
	VerifySignature(payload []byte, signature string) bool
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
