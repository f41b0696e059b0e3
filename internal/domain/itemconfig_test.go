package domain

import (
	"errors"
	"testing"
)

func TestDecodeItemConfig_DomainRegistration(t *testing.T) {
	raw := []byte(`{"domain_name":"example.dev","years":2,"nameservers":["ns1.example.net"],"privacy":true}`)

	cfg, err := DecodeItemConfig(ItemTypeDomainRegistration, raw)
	if err != nil {
		t.Fatalf("DecodeItemConfig failed: %v", err)
	}

	reg, ok := cfg.(DomainRegistrationConfig)
	if !ok {
		t.Fatalf("unexpected config type: %T", cfg)
	}
	if reg.DomainName != "example.dev" || reg.Years != 2 || !reg.Privacy {
		t.Fatalf("unexpected config: %+v", reg)
	}
	if len(reg.Nameservers) != 1 || reg.Nameservers[0] != "ns1.example.net" {
		t.Fatalf("unexpected nameservers: %v", reg.Nameservers)
	}
}

func TestDecodeItemConfig_DefaultsApplied(t *testing.T) {
	cfg, err := DecodeItemConfig(ItemTypeDomainRegistration, []byte(`{"domain_name":"example.dev"}`))
	if err != nil {
		t.Fatalf("DecodeItemConfig failed: %v", err)
	}
	if cfg.(DomainRegistrationConfig).Years != 1 {
		t.Fatalf("expected years default of 1, got %d", cfg.(DomainRegistrationConfig).Years)
	}

	cfg, err = DecodeItemConfig(ItemTypeEmailService, []byte(`{"domain":"example.dev","mailbox":"info"}`))
	if err != nil {
		t.Fatalf("DecodeItemConfig failed: %v", err)
	}
	if cfg.(EmailServiceConfig).QuotaMB != 1024 {
		t.Fatalf("expected quota default of 1024, got %d", cfg.(EmailServiceConfig).QuotaMB)
	}

	cfg, err = DecodeItemConfig(ItemTypeSSLCertificate, []byte(`{"domain":"example.dev"}`))
	if err != nil {
		t.Fatalf("DecodeItemConfig failed: %v", err)
	}
	ssl := cfg.(SSLCertificateConfig)
	if ssl.CertType != "dv" || ssl.Years != 1 {
		t.Fatalf("unexpected ssl defaults: %+v", ssl)
	}
}

func TestDecodeItemConfig_AllVariants(t *testing.T) {
	cases := []struct {
		itemType ItemType
		raw      string
	}{
		{ItemTypeDomainRegistration, `{"domain_name":"example.dev"}`},
		{ItemTypeDomainTransfer, `{"domain_name":"example.dev","auth_code":"EPP-123"}`},
		{ItemTypeDomainRenewal, `{"domain_name":"example.dev","years":1}`},
		{ItemTypeHostingPlan, `{"plan_ref":"wp-starter","domain":"example.dev"}`},
		{ItemTypeEmailService, `{"domain":"example.dev","mailbox":"info"}`},
		{ItemTypeSSLCertificate, `{"domain":"example.dev"}`},
		{ItemTypeSitelock, `{"domain":"example.dev","plan_ref":"basic"}`},
		{ItemTypePrivacyProtection, `{"domain_name":"example.dev"}`},
		{ItemTypeAICredits, `{"credits_minor":5000}`},
	}

	for _, tc := range cases {
		t.Run(string(tc.itemType), func(t *testing.T) {
			if _, err := DecodeItemConfig(tc.itemType, []byte(tc.raw)); err != nil {
				t.Fatalf("decode %s: %v", tc.itemType, err)
			}
		})
	}
}

func TestDecodeItemConfig_MissingRequiredFields(t *testing.T) {
	cases := []struct {
		name     string
		itemType ItemType
		raw      string
	}{
		{"registration without domain", ItemTypeDomainRegistration, `{"years":1}`},
		{"transfer without auth code", ItemTypeDomainTransfer, `{"domain_name":"example.dev"}`},
		{"renewal without domain", ItemTypeDomainRenewal, `{"years":1}`},
		{"hosting without plan", ItemTypeHostingPlan, `{"domain":"example.dev"}`},
		{"email without mailbox", ItemTypeEmailService, `{"domain":"example.dev"}`},
		{"ssl without domain", ItemTypeSSLCertificate, `{"cert_type":"dv"}`},
		{"sitelock without domain", ItemTypeSitelock, `{"plan_ref":"basic"}`},
		{"privacy without domain", ItemTypePrivacyProtection, `{}`},
		{"credits non-positive", ItemTypeAICredits, `{"credits_minor":0}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeItemConfig(tc.itemType, []byte(tc.raw))
			if !errors.Is(err, ErrItemConfigInvalid) {
				t.Fatalf("expected ErrItemConfigInvalid, got %v", err)
			}
		})
	}
}

func TestDecodeItemConfig_Malformed(t *testing.T) {
	if _, err := DecodeItemConfig(ItemTypeDomainRegistration, []byte(`{broken`)); !errors.Is(err, ErrItemConfigInvalid) {
		t.Fatalf("expected ErrItemConfigInvalid for malformed json, got %v", err)
	}
	if _, err := DecodeItemConfig(ItemTypeDomainRegistration, nil); !errors.Is(err, ErrItemConfigInvalid) {
		t.Fatalf("expected ErrItemConfigInvalid for empty config, got %v", err)
	}
}

func TestDecodeItemConfig_UnknownType(t *testing.T) {
	if _, err := DecodeItemConfig("vps_plan", []byte(`{}`)); !errors.Is(err, ErrItemTypeUnknown) {
		t.Fatalf("expected ErrItemTypeUnknown, got %v", err)
	}
}
