package domain

import "time"

// Result sources
const (
	SourceCached  = "cached"
	SourceFetched = "fetched"
)

// CacheEntry is a resolved merchant contact record. It is served only while now < ExpiresAt.
type CacheEntry struct {
	MerchantKey  string    `json:"merchant_key" gorm:"primaryKey"`
	CancelURL    string    `json:"cancel_url"`
	SupportURL   string    `json:"support_url"`
	SupportEmail string    `json:"support_email"`
	SupportPhone string    `json:"support_phone"`
	Confidence   string    `json:"confidence"`
	VerifiedAt   time.Time `json:"verified_at"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasContact reports whether any contact field is filled
func (e *CacheEntry) HasContact() bool {
	return e.CancelURL != "" || e.SupportURL != "" || e.SupportEmail != "" || e.SupportPhone != ""
}

// Result is returned to clients
type Result struct {
	CancelURL    string     `json:"cancel_url,omitempty"`
	SupportURL   string     `json:"support_url,omitempty"`
	SupportEmail string     `json:"support_email,omitempty"`
	SupportPhone string     `json:"support_phone,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
	Source       string     `json:"source"`
	Confidence   string     `json:"confidence"`
}

// ToResult tags the entry with where it came from
func (e *CacheEntry) ToResult(source string) *Result {
	r := &Result{
		CancelURL:    e.CancelURL,
		SupportURL:   e.SupportURL,
		SupportEmail: e.SupportEmail,
		SupportPhone: e.SupportPhone,
		Source:       source,
		Confidence:   e.Confidence,
	}
	if !e.VerifiedAt.IsZero() {
		verifiedAt := e.VerifiedAt
		r.VerifiedAt = &verifiedAt
	}
	return r
}
