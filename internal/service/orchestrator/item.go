package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/resellerd/internal/domain"
)

// itemOutcome — результат provisioning одной позиции.
type itemOutcome struct {
	// index — позиция в order.Items.
	index       int
	externalRef string
	// resource заполняется при успехе; ID присваивается при применении.
	resource *domain.ProvisionedResource
	// creditsMinor — пополнение кредитного баланса для ai_credits.
	creditsMinor int64
	err          error
}

// fanOut конкурентно запускает provisioning независимых позиций.
// Позиции заказа — несвязанные failure domains: отказ одной не прерывает остальные.
// Конкурентность ограничена fanOutLimit, барьер синхронизации один — ожидание
// завершения всех задач.
func (o *orchestrator) fanOut(ctx context.Context, order *domain.Order, indices []int, customer domain.Customer) []itemOutcome {
	outcomes := make([]itemOutcome, len(indices))
	sem := make(chan struct{}, o.fanOutLimit)
	var wg sync.WaitGroup

	for slot, idx := range indices {
		wg.Add(1)
		go func(slot, idx int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if o.metrics != nil {
				o.metrics.ProvisioningStarted()
				defer o.metrics.ProvisioningFinished()
			}
			outcomes[slot] = o.provisionItem(ctx, order.Items[idx], customer)
			outcomes[slot].index = idx
		}(slot, idx)
	}
	wg.Wait()

	return outcomes
}

// provisionItem выполняет ровно один вызов внешнего адаптера для позиции,
// выбирая стратегию по типу услуги. Вызов ограничен adapterTimeout: зависший
// адаптер превращается в типизированный отказ, а не блокирует заказ.
func (o *orchestrator) provisionItem(ctx context.Context, item domain.OrderItem, customer domain.Customer) itemOutcome {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordItemDuration(string(item.Type), time.Since(start))
		}
	}()

	cfg, err := domain.DecodeItemConfig(item.Type, item.Config)
	if err != nil {
		return itemOutcome{err: domain.NewProvisioningError(item.Type, "invalid item configuration", err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.adapterTimeout)
	defer cancel()

	outcome := o.dispatch(callCtx, item, cfg, customer)
	if outcome.err != nil {
		outcome.err = o.asProvisioningError(item.Type, outcome.err)
	}
	return outcome
}

// dispatch вызывает стратегию конкретного типа услуги.
func (o *orchestrator) dispatch(ctx context.Context, item domain.OrderItem, cfg domain.ItemConfig, customer domain.Customer) itemOutcome {
	switch cfg := cfg.(type) {
	case domain.DomainRegistrationConfig:
		return o.provisionDomainRegistration(ctx, item, cfg, customer)
	case domain.DomainTransferConfig:
		return o.provisionDomainTransfer(ctx, item, cfg, customer)
	case domain.DomainRenewalConfig:
		return o.provisionDomainRenewal(ctx, item, cfg, customer)
	case domain.HostingPlanConfig:
		return o.provisionHosting(ctx, item, cfg, customer)
	case domain.EmailServiceConfig:
		return o.provisionMailbox(ctx, item, cfg, customer)
	case domain.SSLCertificateConfig:
		return o.provisionCertificate(ctx, item, cfg, customer)
	case domain.SitelockConfig:
		return o.provisionSitelock(ctx, item, cfg, customer)
	case domain.PrivacyProtectionConfig:
		return o.provisionPrivacy(ctx, item, cfg, customer)
	case domain.AICreditsConfig:
		return o.provisionCredits(item, cfg, customer)
	default:
		return itemOutcome{err: fmt.Errorf("%w: %T", domain.ErrItemTypeUnknown, cfg)}
	}
}

func (o *orchestrator) provisionDomainRegistration(ctx context.Context, item domain.OrderItem, cfg domain.DomainRegistrationConfig, customer domain.Customer) itemOutcome {
	contact, err := o.resolveContact(ctx, customer)
	if err != nil {
		return itemOutcome{err: err}
	}

	result, err := o.adapters.Registrar.Register(ctx, domain.RegisterDomainRequest{
		DomainName:  cfg.DomainName,
		Years:       cfg.Years,
		Contact:     contact,
		Nameservers: cfg.Nameservers,
		Privacy:     cfg.Privacy,
	})
	if err != nil {
		return itemOutcome{err: err}
	}

	attrs, _ := json.Marshal(map[string]any{
		"domain_name":        cfg.DomainName,
		"registrar_order_id": result.OrderID,
		"expiry_date":        result.ExpiryDate.Format(time.RFC3339),
		"privacy":            cfg.Privacy,
	})
	return itemOutcome{
		externalRef: result.DomainID,
		resource: &domain.ProvisionedResource{
			CustomerID:  customer.ID,
			OrderID:     item.OrderID,
			ItemID:      item.ID,
			Kind:        domain.ResourceKindDomain,
			ExternalRef: result.DomainID,
			Attributes:  attrs,
		},
	}
}

func (o *orchestrator) provisionDomainTransfer(ctx context.Context, item domain.OrderItem, cfg domain.DomainTransferConfig, customer domain.Customer) itemOutcome {
	contact, err := o.resolveContact(ctx, customer)
	if err != nil {
		return itemOutcome{err: err}
	}

	result, err := o.adapters.Registrar.Transfer(ctx, domain.TransferDomainRequest{
		DomainName: cfg.DomainName,
		AuthCode:   cfg.AuthCode,
		Contact:    contact,
	})
	if err != nil {
		return itemOutcome{err: err}
	}

	attrs, _ := json.Marshal(map[string]any{
		"domain_name":     cfg.DomainName,
		"transfer_status": result.Status,
	})
	return itemOutcome{
		externalRef: result.TransferID,
		resource: &domain.ProvisionedResource{
			CustomerID:  customer.ID,
			OrderID:     item.OrderID,
			ItemID:      item.ID,
			Kind:        domain.ResourceKindDomain,
			ExternalRef: result.TransferID,
			Attributes:  attrs,
		},
	}
}

func (o *orchestrator) provisionDomainRenewal(ctx context.Context, item domain.OrderItem, cfg domain.DomainRenewalConfig, customer domain.Customer) itemOutcome {
	result, err := o.adapters.Registrar.Renew(ctx, cfg.DomainName, cfg.Years)
	if err != nil {
		return itemOutcome{err: err}
	}

	attrs, _ := json.Marshal(map[string]any{
		"domain_name": cfg.DomainName,
		"years":       cfg.Years,
		"expiry_date": result.ExpiryDate.Format(time.RFC3339),
	})
	return itemOutcome{
		externalRef: result.RenewalID,
		resource: &domain.ProvisionedResource{
			CustomerID:  customer.ID,
			OrderID:     item.OrderID,
			ItemID:      item.ID,
			Kind:        domain.ResourceKindDomain,
			ExternalRef: result.RenewalID,
			Attributes:  attrs,
		},
	}
}

func (o *orchestrator) provisionHosting(ctx context.Context, item domain.OrderItem, cfg domain.HostingPlanConfig, customer domain.Customer) itemOutcome {
	siteName := cfg.SiteName
	if siteName == "" {
		siteName = cfg.Domain
	}
	result, err := o.adapters.Hosting.ProvisionSite(ctx, domain.ProvisionSiteRequest{
		SiteName:   siteName,
		Domain:     cfg.Domain,
		PlanRef:    cfg.PlanRef,
		AdminEmail: customer.Email,
		Options:    cfg.Options,
	})
	if err != nil {
		return itemOutcome{err: err}
	}

	attrs, _ := json.Marshal(map[string]any{
		"site_id":       result.SiteID,
		"plan_ref":      cfg.PlanRef,
		"sftp_host":     result.SFTPHost,
		"sftp_username": result.SFTPUsername,
		"admin_url":     result.AdminURL,
	})
	return itemOutcome{
		externalRef: result.HostingID,
		resource: &domain.ProvisionedResource{
			CustomerID:  customer.ID,
			OrderID:     item.OrderID,
			ItemID:      item.ID,
			Kind:        domain.ResourceKindHostingAccount,
			ExternalRef: result.HostingID,
			Attributes:  attrs,
		},
	}
}

func (o *orchestrator) provisionMailbox(ctx context.Context, item domain.OrderItem, cfg domain.EmailServiceConfig, customer domain.Customer) itemOutcome {
	result, err := o.adapters.Mailboxes.CreateMailbox(ctx, domain.CreateMailboxRequest{
		Domain:  cfg.Domain,
		Mailbox: cfg.Mailbox,
		QuotaMB: cfg.QuotaMB,
	})
	if err != nil {
		return itemOutcome{err: err}
	}

	attrs, _ := json.Marshal(map[string]any{
		"address":  fmt.Sprintf("%s@%s", cfg.Mailbox, cfg.Domain),
		"quota_mb": cfg.QuotaMB,
		"server":   result.Server,
	})
	return itemOutcome{
		externalRef: result.MailboxID,
		resource: &domain.ProvisionedResource{
			CustomerID:  customer.ID,
			OrderID:     item.OrderID,
			ItemID:      item.ID,
			Kind:        domain.ResourceKindMailbox,
			ExternalRef: result.MailboxID,
			Attributes:  attrs,
		},
	}
}

func (o *orchestrator) provisionCertificate(ctx context.Context, item domain.OrderItem, cfg domain.SSLCertificateConfig, customer domain.Customer) itemOutcome {
	result, err := o.adapters.Certificates.Issue(ctx, domain.IssueCertificateRequest{
		Domain:     cfg.Domain,
		CertType:   cfg.CertType,
		Years:      cfg.Years,
		AdminEmail: customer.Email,
	})
	if err != nil {
		return itemOutcome{err: err}
	}

	attrs, _ := json.Marshal(map[string]any{
		"domain":     cfg.Domain,
		"cert_type":  cfg.CertType,
		"expires_at": result.ExpiresAt.Format(time.RFC3339),
	})
	return itemOutcome{
		externalRef: result.CertificateID,
		resource: &domain.ProvisionedResource{
			CustomerID:  customer.ID,
			OrderID:     item.OrderID,
			ItemID:      item.ID,
			Kind:        domain.ResourceKindCertificate,
			ExternalRef: result.CertificateID,
			Attributes:  attrs,
		},
	}
}

func (o *orchestrator) provisionSitelock(ctx context.Context, item domain.OrderItem, cfg domain.SitelockConfig, customer domain.Customer) itemOutcome {
	result, err := o.adapters.Security.Activate(ctx, cfg.Domain, cfg.PlanRef)
	if err != nil {
		return itemOutcome{err: err}
	}

	attrs, _ := json.Marshal(map[string]any{
		"domain":   cfg.Domain,
		"plan_ref": cfg.PlanRef,
	})
	return itemOutcome{
		externalRef: result.AccountID,
		resource: &domain.ProvisionedResource{
			CustomerID:  customer.ID,
			OrderID:     item.OrderID,
			ItemID:      item.ID,
			Kind:        domain.ResourceKindSecurityAccount,
			ExternalRef: result.AccountID,
			Attributes:  attrs,
		},
	}
}

func (o *orchestrator) provisionPrivacy(ctx context.Context, item domain.OrderItem, cfg domain.PrivacyProtectionConfig, customer domain.Customer) itemOutcome {
	result, err := o.adapters.Registrar.EnablePrivacy(ctx, cfg.DomainName)
	if err != nil {
		return itemOutcome{err: err}
	}

	attrs, _ := json.Marshal(map[string]any{
		"domain_name": cfg.DomainName,
	})
	return itemOutcome{
		externalRef: result.PrivacyID,
		resource: &domain.ProvisionedResource{
			CustomerID:  customer.ID,
			OrderID:     item.OrderID,
			ItemID:      item.ID,
			Kind:        domain.ResourceKindDomain,
			ExternalRef: result.PrivacyID,
			Attributes:  attrs,
		},
	}
}

// provisionCredits пополняет внутренний баланс; внешнего адаптера у ai_credits нет,
// запись делается той же транзакцией при применении результата.
func (o *orchestrator) provisionCredits(item domain.OrderItem, cfg domain.AICreditsConfig, customer domain.Customer) itemOutcome {
	topUpID := uuid.NewString()
	attrs, _ := json.Marshal(map[string]any{
		"credits_minor": cfg.CreditsMinor,
	})
	return itemOutcome{
		externalRef:  topUpID,
		creditsMinor: cfg.CreditsMinor,
		resource: &domain.ProvisionedResource{
			CustomerID:  customer.ID,
			OrderID:     item.OrderID,
			ItemID:      item.ID,
			Kind:        domain.ResourceKindCreditTopUp,
			ExternalRef: topUpID,
			Attributes:  attrs,
		},
	}
}

// resolveContact возвращает контакт регистратора, синтезируя его из профиля
// аккаунта при первом доменном заказе клиента.
func (o *orchestrator) resolveContact(ctx context.Context, customer domain.Customer) (domain.Contact, error) {
	contact, err := o.contacts.FindByCustomer(ctx, customer.ID)
	if err == nil {
		return contact, nil
	}
	if !errors.Is(err, domain.ErrContactNotFound) {
		return domain.Contact{}, err
	}

	contact = domain.SynthesizeContact(customer)
	contact.ID = uuid.NewString()
	if err := o.contacts.Create(ctx, contact); err != nil {
		return domain.Contact{}, err
	}
	o.logger.WithField("customer_id", customer.ID).Info("synthesized registrar contact from account profile")
	return contact, nil
}

// applyOutcome переносит результат provisioning на позицию внутри транзакции заказа.
func (o *orchestrator) applyOutcome(tx domain.OrderTx, order *domain.Order, outcome itemOutcome, actor string) error {
	item := &order.Items[outcome.index]
	now := time.Now().UTC()
	item.UpdatedAt = now

	if outcome.err != nil {
		item.Status = domain.ItemStatusFailed
		item.ErrorMessage = curatedMessage(outcome.err)
		item.RetryCount++
		if err := tx.UpdateItem(*item); err != nil {
			return fmt.Errorf("persist failed item: %w", err)
		}

		metadata, _ := json.Marshal(map[string]any{
			"item_type":   string(item.Type),
			"error":       item.ErrorMessage,
			"retry_count": item.RetryCount,
		})
		if err := tx.AppendAudit(domain.AuditEntry{
			ID:           uuid.NewString(),
			Actor:        actor,
			Action:       domain.AuditActionItemFailed,
			OrderID:      order.ID,
			ItemID:       item.ID,
			BeforeStatus: string(domain.ItemStatusProcessing),
			AfterStatus:  string(item.Status),
			Metadata:     metadata,
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("append item failure audit: %w", err)
		}

		if o.metrics != nil {
			o.metrics.RecordItemResult(string(item.Type), "failed")
		}
		o.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"item_id":  item.ID,
			"type":     item.Type,
			"error":    item.ErrorMessage,
		}).Warn("item provisioning failed")
		return nil
	}

	if outcome.resource != nil {
		outcome.resource.ID = uuid.NewString()
		outcome.resource.CreatedAt = now
		if err := tx.InsertResource(*outcome.resource); err != nil {
			return fmt.Errorf("persist provisioned resource: %w", err)
		}
		item.ResourceID = outcome.resource.ID
	}
	if outcome.creditsMinor > 0 {
		if err := tx.AddCredits(order.CustomerID, outcome.creditsMinor); err != nil {
			return fmt.Errorf("top up credits: %w", err)
		}
	}

	item.Status = domain.ItemStatusCompleted
	item.ExternalRef = outcome.externalRef
	item.ErrorMessage = ""
	item.FulfilledAt = &now
	if err := tx.UpdateItem(*item); err != nil {
		return fmt.Errorf("persist completed item: %w", err)
	}

	if o.metrics != nil {
		o.metrics.RecordItemResult(string(item.Type), "completed")
	}
	return nil
}

// asProvisioningError приводит ошибку адаптера к типизированному отказу позиции.
// Таймаут выделяется отдельно: клиент видит нейтральное сообщение, не текст context.
func (o *orchestrator) asProvisioningError(itemType domain.ItemType, err error) error {
	var pe *domain.ProvisioningError
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewProvisioningError(itemType, "provisioning timed out", err)
	}
	return domain.NewProvisioningError(itemType, err.Error(), err)
}

// curatedMessage возвращает сообщение, пригодное для показа клиенту.
func curatedMessage(err error) string {
	var pe *domain.ProvisioningError
	if errors.As(err, &pe) {
		return pe.Message
	}
	return "provisioning failed"
}
