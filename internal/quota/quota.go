// Package quota decides whether a company may put another item through
// ingestion, based on its plan limit and current live-item count.
package quota

import (
	"context"
	"fmt"

	"github.com/guidely/guidely/internal/config"
	companydomain "github.com/guidely/guidely/internal/company/domain"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/guidely/guidely/pkg/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// ExceededError reports a denied ingestion request with the numbers
// that produced the decision.
type ExceededError struct {
	Count int64
	Limit int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %d live items of %d allowed", e.Count, e.Limit)
}

type Guard struct {
	plans *config.PlanConfigHolder
	items repository.Repository[itemdomain.Item]
}

type GuardParam struct {
	fx.In

	DB    *gorm.DB
	Plans *config.PlanConfigHolder
}

var Module = fx.Module("quota",
	fx.Provide(NewGuard),
)

func NewGuard(p GuardParam) *Guard {
	return &Guard{
		plans: p.Plans,
		items: repository.ProvideStore[itemdomain.Item](p.DB),
	}
}

// Check allows or denies a new ingestion request. Only items already
// live count against the limit; the check is side-effect free. The
// check-then-create window is not transactional with item creation, so
// two concurrent submissions can overshoot the limit by one.
func (g *Guard) Check(ctx context.Context, company *companydomain.Company) error {
	limit := g.plans.LimitFor(company.Plan)
	if limit == config.UnlimitedItems {
		return nil
	}

	count, err := g.items.Count(ctx, &itemdomain.Item{
		CompanyID: company.ID,
		Status:    itemdomain.StatusLive,
	})
	if err != nil {
		return err
	}
	if count >= int64(limit) {
		return &ExceededError{Count: count, Limit: limit}
	}
	return nil
}
