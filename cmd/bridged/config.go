package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/halopay/bridge"
)

// serviceConfig is the fully resolved daemon configuration.
type serviceConfig struct {
	Listen           string
	LogLevel         string
	LogPretty        bool
	MerchantProtocol string
	SessionTTL       time.Duration

	Merchant bridge.MerchantContext
	Products []bridge.Product

	BearerTokens []string
	JWTSecret    string
	JWTIssuer    string

	SigningSecret string
	RequireSigned bool
	MaxClockSkew  time.Duration

	WebhookURL    string
	WebhookSecret string
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{
		Listen:           ":8402",
		LogLevel:         "info",
		MerchantProtocol: "acp",
		SessionTTL:       bridge.DefaultSessionTTL,
		MaxClockSkew:     5 * time.Minute,
	}
}

type fileConfig struct {
	Listen           string `toml:"listen"`
	LogLevel         string `toml:"log_level"`
	LogPretty        bool   `toml:"log_pretty"`
	MerchantProtocol string `toml:"merchant_protocol"`
	SessionTTL       string `toml:"session_ttl"`

	Merchant merchantFileConfig    `toml:"merchant"`
	Products []productFileConfig   `toml:"product"`
	Shipping []shippingFileConfig  `toml:"shipping"`
	Auth     authFileConfig        `toml:"auth"`
	Signing  signingFileConfig     `toml:"signing"`
	Webhook  webhookFileConfig     `toml:"webhook"`
	Settle   *settlementFileConfig `toml:"settlement"`
}

type merchantFileConfig struct {
	ID                    string   `toml:"id"`
	Name                  string   `toml:"name"`
	PaymentMethods        []string `toml:"payment_methods"`
	RequiredInterventions []string `toml:"required_interventions"`
	InterventionPolicy    string   `toml:"intervention_policy"`
	Tokenization          bool     `toml:"tokenization"`
	SavedMethods          bool     `toml:"saved_methods"`
}

type productFileConfig struct {
	ID             string `toml:"id"`
	Name           string `toml:"name"`
	UnitPriceCents int    `toml:"unit_price_cents"`
}

type shippingFileConfig struct {
	ID            string `toml:"id"`
	Title         string `toml:"title"`
	Speed         string `toml:"speed"`
	SubtotalCents int    `toml:"subtotal_cents"`
	TaxCents      int    `toml:"tax_cents"`
}

type authFileConfig struct {
	BearerTokens []string `toml:"bearer_tokens"`
	JWTSecret    string   `toml:"jwt_secret"`
	JWTIssuer    string   `toml:"jwt_issuer"`
}

type signingFileConfig struct {
	Secret        string `toml:"secret"`
	RequireSigned bool   `toml:"require_signed"`
	MaxClockSkew  string `toml:"max_clock_skew"`
}

type webhookFileConfig struct {
	URL    string `toml:"url"`
	Secret string `toml:"secret"`
}

type settlementFileConfig struct {
	PayTo         string `toml:"pay_to"`
	Network       string `toml:"network"`
	Asset         string `toml:"asset"`
	AssetDecimals int    `toml:"asset_decimals"`
}

func loadServiceConfig(path string) (serviceConfig, error) {
	cfg := defaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load bridged config: %w", err)
	}

	if meta.IsDefined("listen") {
		if listen := strings.TrimSpace(raw.Listen); listen != "" {
			cfg.Listen = listen
		}
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_pretty") {
		cfg.LogPretty = raw.LogPretty
	}
	if meta.IsDefined("merchant_protocol") {
		cfg.MerchantProtocol = strings.ToLower(strings.TrimSpace(raw.MerchantProtocol))
	}
	if meta.IsDefined("session_ttl") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SessionTTL))
		if err != nil {
			return serviceConfig{}, fmt.Errorf("parse session_ttl: %w", err)
		}
		cfg.SessionTTL = d
	}

	cfg.Merchant = bridge.MerchantContext{
		MerchantID:   strings.TrimSpace(raw.Merchant.ID),
		MerchantName: strings.TrimSpace(raw.Merchant.Name),
		Seller: bridge.SellerCapabilities{
			PaymentMethods:        raw.Merchant.PaymentMethods,
			RequiredInterventions: raw.Merchant.RequiredInterventions,
			InterventionPolicy:    bridge.InterventionPolicy(strings.TrimSpace(raw.Merchant.InterventionPolicy)),
			Features: bridge.SellerFeatures{
				Tokenization: raw.Merchant.Tokenization,
				SavedMethods: raw.Merchant.SavedMethods,
			},
		},
	}
	if cfg.Merchant.MerchantID == "" {
		return serviceConfig{}, fmt.Errorf("merchant.id is required")
	}
	if len(cfg.Merchant.Seller.PaymentMethods) == 0 {
		return serviceConfig{}, fmt.Errorf("merchant.payment_methods must not be empty")
	}

	for _, p := range raw.Products {
		if strings.TrimSpace(p.ID) == "" {
			return serviceConfig{}, fmt.Errorf("product entries require an id")
		}
		cfg.Products = append(cfg.Products, bridge.Product{
			ID:             strings.TrimSpace(p.ID),
			Name:           strings.TrimSpace(p.Name),
			UnitPriceCents: p.UnitPriceCents,
		})
	}

	for _, s := range raw.Shipping {
		opt := bridge.FulfillmentOption{
			ID:       strings.TrimSpace(s.ID),
			Title:    strings.TrimSpace(s.Title),
			Speed:    strings.TrimSpace(s.Speed),
			Subtotal: s.SubtotalCents,
			Tax:      s.TaxCents,
			Total:    s.SubtotalCents + s.TaxCents,
		}
		if opt.ID == "" {
			return serviceConfig{}, fmt.Errorf("shipping entries require an id")
		}
		cfg.Merchant.FulfillmentOptions = append(cfg.Merchant.FulfillmentOptions, opt)
	}

	if raw.Settle != nil {
		cfg.Merchant.Settlement = &bridge.SettlementContext{
			PayTo:         strings.TrimSpace(raw.Settle.PayTo),
			Network:       strings.TrimSpace(raw.Settle.Network),
			Asset:         strings.TrimSpace(raw.Settle.Asset),
			AssetDecimals: raw.Settle.AssetDecimals,
		}
	}
	if cfg.MerchantProtocol == "x402" && cfg.Merchant.Settlement == nil {
		return serviceConfig{}, fmt.Errorf("settlement section is required when merchant_protocol is x402")
	}

	cfg.BearerTokens = raw.Auth.BearerTokens
	cfg.JWTSecret = raw.Auth.JWTSecret
	cfg.JWTIssuer = raw.Auth.JWTIssuer

	cfg.SigningSecret = raw.Signing.Secret
	cfg.RequireSigned = raw.Signing.RequireSigned
	if meta.IsDefined("signing", "max_clock_skew") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Signing.MaxClockSkew))
		if err != nil {
			return serviceConfig{}, fmt.Errorf("parse signing.max_clock_skew: %w", err)
		}
		cfg.MaxClockSkew = d
	}
	if cfg.RequireSigned && cfg.SigningSecret == "" {
		return serviceConfig{}, fmt.Errorf("signing.secret is required when signing.require_signed is set")
	}

	cfg.WebhookURL = strings.TrimSpace(raw.Webhook.URL)
	cfg.WebhookSecret = raw.Webhook.Secret
	if cfg.WebhookURL != "" && cfg.WebhookSecret == "" {
		return serviceConfig{}, fmt.Errorf("webhook.secret is required when webhook.url is set")
	}

	return cfg, nil
}
