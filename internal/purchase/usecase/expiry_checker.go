package usecase

import (
	"context"
	"fmt"
	"time"

	notifdomain "keepr-backend/internal/notification/domain"
	"keepr-backend/internal/purchase/domain"
	"keepr-backend/internal/purchase/repository"

	"go.uber.org/multierr"
)

const day = 24 * time.Hour

// Notifier receives computed facts; settings and dedup are its concern
type Notifier interface {
	Raise(ctx context.Context, userID string, fact notifdomain.Fact) (bool, error)
}

// ExpiryChecker raises return-deadline and warranty-expiring facts for a user's purchases
type ExpiryChecker struct {
	purchases repository.PurchaseRepository
	notifier  Notifier
	now       func() time.Time
}

func NewExpiryChecker(purchases repository.PurchaseRepository, notifier Notifier) *ExpiryChecker {
	return &ExpiryChecker{
		purchases: purchases,
		notifier:  notifier,
		now:       time.Now,
	}
}

// CheckExpiries returns the number of notifications created.
// A failing purchase does not stop the others; all failures are returned together.
func (c *ExpiryChecker) CheckExpiries(ctx context.Context, userID string) (int, error) {
	today := c.now().UTC().Truncate(day)

	purchases, err := c.purchases.FindWithUpcomingDeadlines(ctx, userID, today)
	if err != nil {
		return 0, fmt.Errorf("load purchases: %w", err)
	}

	created := 0
	var errs error
	for i := range purchases {
		for _, fact := range factsFor(&purchases[i], today) {
			ok, err := c.notifier.Raise(ctx, userID, fact)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("purchase %s: %w", purchases[i].ID, err))
				continue
			}
			if ok {
				created++
			}
		}
	}
	return created, errs
}

func factsFor(p *domain.Purchase, today time.Time) []notifdomain.Fact {
	var facts []notifdomain.Fact
	actionURL := "/purchases/" + p.ID

	if p.ReturnDeadline != nil {
		if days, ok := daysUntil(today, *p.ReturnDeadline); ok {
			facts = append(facts, notifdomain.Fact{
				Type:      notifdomain.TypeReturnDeadline,
				EntityID:  p.ID,
				DaysLeft:  days,
				DueAt:     *p.ReturnDeadline,
				Title:     "Return window closing",
				Message:   fmt.Sprintf("The return window for %s closes %s.", p.ProductName, inDays(days)),
				ActionURL: actionURL,
			})
		}
	}

	if p.WarrantyExpiresAt != nil {
		if days, ok := daysUntil(today, *p.WarrantyExpiresAt); ok {
			facts = append(facts, notifdomain.Fact{
				Type:      notifdomain.TypeWarrantyExpiring,
				EntityID:  p.ID,
				DaysLeft:  days,
				DueAt:     *p.WarrantyExpiresAt,
				Title:     "Warranty expiring",
				Message:   fmt.Sprintf("The warranty for %s expires %s.", p.ProductName, inDays(days)),
				ActionURL: actionURL,
			})
		}
	}
	return facts
}

// daysUntil counts whole days from today to due. Past deadlines report false.
func daysUntil(today, due time.Time) (int, bool) {
	d := due.UTC().Truncate(day).Sub(today)
	if d < 0 {
		return 0, false
	}
	return int(d / day), true
}

func inDays(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}
