package domain

import (
	"encoding/json"
	"fmt"
)

// ItemConfig — tagged union типоспецифичных конфигураций позиции.
// Каждый вариант строго типизирован; соответствие тега и варианта
// фиксируется в DecodeItemConfig.
type ItemConfig interface {
	itemConfig()
}

// DomainRegistrationConfig — конфигурация регистрации домена.
type DomainRegistrationConfig struct {
	DomainName  string   `json:"domain_name"`
	Years       int      `json:"years"`
	Nameservers []string `json:"nameservers,omitempty"`
	Privacy     bool     `json:"privacy,omitempty"`
}

// DomainTransferConfig — конфигурация трансфера домена от другого регистратора.
type DomainTransferConfig struct {
	DomainName string `json:"domain_name"`
	AuthCode   string `json:"auth_code"`
}

// DomainRenewalConfig — конфигурация продления домена.
type DomainRenewalConfig struct {
	DomainName string `json:"domain_name"`
	Years      int    `json:"years"`
}

// HostingPlanConfig — конфигурация хостинг-аккаунта.
type HostingPlanConfig struct {
	SiteName string            `json:"site_name"`
	Domain   string            `json:"domain"`
	PlanRef  string            `json:"plan_ref"`
	Options  map[string]string `json:"options,omitempty"`
}

// EmailServiceConfig — конфигурация почтового ящика.
type EmailServiceConfig struct {
	Domain  string `json:"domain"`
	Mailbox string `json:"mailbox"`
	QuotaMB int    `json:"quota_mb"`
}

// SSLCertificateConfig — конфигурация выпуска SSL-сертификата.
type SSLCertificateConfig struct {
	Domain   string `json:"domain"`
	CertType string `json:"cert_type"`
	Years    int    `json:"years"`
}

// SitelockConfig — конфигурация подписки на security-сканер.
type SitelockConfig struct {
	Domain  string `json:"domain"`
	PlanRef string `json:"plan_ref"`
}

// PrivacyProtectionConfig — конфигурация активации privacy для уже купленного домена.
type PrivacyProtectionConfig struct {
	DomainName string `json:"domain_name"`
	// DomainExternalRef — идентификатор домена у регистратора, если уже известен.
	DomainExternalRef string `json:"domain_external_ref,omitempty"`
}

// AICreditsConfig — конфигурация пополнения внутренних AI-кредитов.
type AICreditsConfig struct {
	CreditsMinor int64 `json:"credits_minor"`
}

func (DomainRegistrationConfig) itemConfig() {}
func (DomainTransferConfig) itemConfig()     {}
func (DomainRenewalConfig) itemConfig()      {}
func (HostingPlanConfig) itemConfig()        {}
func (EmailServiceConfig) itemConfig()       {}
func (SSLCertificateConfig) itemConfig()     {}
func (SitelockConfig) itemConfig()           {}
func (PrivacyProtectionConfig) itemConfig()  {}
func (AICreditsConfig) itemConfig()          {}

// DecodeItemConfig — чистая функция маппинга персистентного JSON в типизированный вариант.
// Возвращает ErrItemConfigInvalid при невалидном JSON или отсутствии обязательных полей.
func DecodeItemConfig(itemType ItemType, raw []byte) (ItemConfig, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty config for %s", ErrItemConfigInvalid, itemType)
	}

	decode := func(dst any) error {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrItemConfigInvalid, itemType, err)
		}
		return nil
	}

	switch itemType {
	case ItemTypeDomainRegistration:
		var cfg DomainRegistrationConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.DomainName == "" {
			return nil, fmt.Errorf("%w: domain_name is required", ErrItemConfigInvalid)
		}
		if cfg.Years <= 0 {
			cfg.Years = 1
		}
		return cfg, nil
	case ItemTypeDomainTransfer:
		var cfg DomainTransferConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.DomainName == "" || cfg.AuthCode == "" {
			return nil, fmt.Errorf("%w: domain_name and auth_code are required", ErrItemConfigInvalid)
		}
		return cfg, nil
	case ItemTypeDomainRenewal:
		var cfg DomainRenewalConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.DomainName == "" {
			return nil, fmt.Errorf("%w: domain_name is required", ErrItemConfigInvalid)
		}
		if cfg.Years <= 0 {
			cfg.Years = 1
		}
		return cfg, nil
	case ItemTypeHostingPlan:
		var cfg HostingPlanConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.PlanRef == "" {
			return nil, fmt.Errorf("%w: plan_ref is required", ErrItemConfigInvalid)
		}
		return cfg, nil
	case ItemTypeEmailService:
		var cfg EmailServiceConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.Domain == "" || cfg.Mailbox == "" {
			return nil, fmt.Errorf("%w: domain and mailbox are required", ErrItemConfigInvalid)
		}
		if cfg.QuotaMB <= 0 {
			cfg.QuotaMB = 1024
		}
		return cfg, nil
	case ItemTypeSSLCertificate:
		var cfg SSLCertificateConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.Domain == "" {
			return nil, fmt.Errorf("%w: domain is required", ErrItemConfigInvalid)
		}
		if cfg.CertType == "" {
			cfg.CertType = "dv"
		}
		if cfg.Years <= 0 {
			cfg.Years = 1
		}
		return cfg, nil
	case ItemTypeSitelock:
		var cfg SitelockConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.Domain == "" {
			return nil, fmt.Errorf("%w: domain is required", ErrItemConfigInvalid)
		}
		return cfg, nil
	case ItemTypePrivacyProtection:
		var cfg PrivacyProtectionConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.DomainName == "" {
			return nil, fmt.Errorf("%w: domain_name is required", ErrItemConfigInvalid)
		}
		return cfg, nil
	case ItemTypeAICredits:
		var cfg AICreditsConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		if cfg.CreditsMinor <= 0 {
			return nil, fmt.Errorf("%w: credits_minor must be positive", ErrItemConfigInvalid)
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrItemTypeUnknown, itemType)
	}
}
