package ai

import (
	"context"
	"time"
)

// PurchaseExtraction is one purchase found in an email.
type PurchaseExtraction struct {
	ProductName       string
	Merchant          string
	Price             float64
	Currency          string
	PurchasedAt       *time.Time
	ReturnDeadline    *time.Time
	WarrantyExpiresAt *time.Time
}

// Confidence levels reported by service-info lookups.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ServiceInfo is the resolved customer-service contact data for a merchant.
type ServiceInfo struct {
	CancelURL    string
	SupportURL   string
	SupportEmail string
	SupportPhone string
	Confidence   string
}

// Extractor turns email text into purchases.
type Extractor interface {
	ExtractPurchases(ctx context.Context, emailText string) ([]PurchaseExtraction, error)
}

// ServiceInfoLookup resolves contact data for a merchant.
type ServiceInfoLookup interface {
	LookupServiceInfo(ctx context.Context, merchant string) (*ServiceInfo, error)
}

// Generator is a raw text-completion backend (Gemini, Ollama, ...).
// Implement this interface to add new AI providers.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Name() string
}

// ProviderType represents the AI provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
