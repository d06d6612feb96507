package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const maxEmailChars = 6000

// Assistant implements Extractor and ServiceInfoLookup on top of any Generator.
type Assistant struct {
	gen Generator
	now func() time.Time
}

func NewAssistant(gen Generator) *Assistant {
	return &Assistant{gen: gen, now: time.Now}
}

const extractPrompt = `You extract purchases from order confirmation and receipt emails.

TODAY: %s

Return ONLY a JSON object of the form:
{"purchases":[{"product_name":"","merchant":"","price":0,"currency":"USD","purchased_at":"YYYY-MM-DD","return_deadline":"YYYY-MM-DD","warranty_expires_at":"YYYY-MM-DD"}]}

RULES:
- One entry per distinct product. Skip shipping, tax and discount lines.
- Leave a date empty ("") when the email does not state it or it cannot be derived.
- A warranty stated as a duration ("1 year warranty") is added to purchased_at.
- If the email is not a purchase, return {"purchases":[]}.

EMAIL:
%s`

// ExtractPurchases implements Extractor
func (a *Assistant) ExtractPurchases(ctx context.Context, emailText string) ([]PurchaseExtraction, error) {
	if len(emailText) > maxEmailChars {
		emailText = emailText[:maxEmailChars]
	}

	out, err := a.gen.Generate(ctx, fmt.Sprintf(extractPrompt, a.now().Format("2006-01-02"), emailText))
	if err != nil {
		return nil, fmt.Errorf("extract purchases: %w", err)
	}

	var raw struct {
		Purchases []struct {
			ProductName       string  `json:"product_name"`
			Merchant          string  `json:"merchant"`
			Price             float64 `json:"price"`
			Currency          string  `json:"currency"`
			PurchasedAt       string  `json:"purchased_at"`
			ReturnDeadline    string  `json:"return_deadline"`
			WarrantyExpiresAt string  `json:"warranty_expires_at"`
		} `json:"purchases"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(out)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse extraction: %w", err)
	}

	purchases := make([]PurchaseExtraction, 0, len(raw.Purchases))
	for _, p := range raw.Purchases {
		if strings.TrimSpace(p.ProductName) == "" {
			continue
		}
		purchases = append(purchases, PurchaseExtraction{
			ProductName:       strings.TrimSpace(p.ProductName),
			Merchant:          strings.TrimSpace(p.Merchant),
			Price:             p.Price,
			Currency:          strings.ToUpper(strings.TrimSpace(p.Currency)),
			PurchasedAt:       parseDate(p.PurchasedAt),
			ReturnDeadline:    parseDate(p.ReturnDeadline),
			WarrantyExpiresAt: parseDate(p.WarrantyExpiresAt),
		})
	}
	return purchases, nil
}

const lookupPrompt = `You know how customers contact and cancel services with merchants.

MERCHANT: %s

Return ONLY a JSON object:
{"cancel_url":"","support_url":"","support_email":"","support_phone":"","confidence":"high|medium|low"}

Use "" for anything you are not sure of. Use "high" only for official pages you are certain exist.`

// LookupServiceInfo implements ServiceInfoLookup
func (a *Assistant) LookupServiceInfo(ctx context.Context, merchant string) (*ServiceInfo, error) {
	out, err := a.gen.Generate(ctx, fmt.Sprintf(lookupPrompt, merchant))
	if err != nil {
		return nil, fmt.Errorf("lookup service info: %w", err)
	}

	var raw struct {
		CancelURL    string `json:"cancel_url"`
		SupportURL   string `json:"support_url"`
		SupportEmail string `json:"support_email"`
		SupportPhone string `json:"support_phone"`
		Confidence   string `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(out)), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse service info: %w", err)
	}

	info := &ServiceInfo{
		CancelURL:    strings.TrimSpace(raw.CancelURL),
		SupportURL:   strings.TrimSpace(raw.SupportURL),
		SupportEmail: strings.TrimSpace(raw.SupportEmail),
		SupportPhone: strings.TrimSpace(raw.SupportPhone),
	}
	switch c := strings.ToLower(strings.TrimSpace(raw.Confidence)); c {
	case ConfidenceHigh, ConfidenceMedium:
		info.Confidence = c
	default:
		info.Confidence = ConfidenceLow
	}
	return info, nil
}

// extractJSONObject strips prose or code fences around the first {...} block.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start != -1 && end > start {
		return s[start : end+1]
	}
	return s
}

func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
