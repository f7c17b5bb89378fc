package quota

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/guidely/guidely/internal/company/domain"
	"github.com/guidely/guidely/internal/config"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/guidely/guidely/pkg/db"
	"github.com/guidely/guidely/pkg/repository"
	"gorm.io/gorm"
)

func newTestGuard(t *testing.T) (*Guard, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&itemdomain.Item{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	plans := config.NewStaticPlanHolder(config.PlanConfig{
		Limits: map[string]int{
			"starter":    2,
			"enterprise": config.UnlimitedItems,
		},
	})
	guard := &Guard{
		plans: plans,
		items: repository.ProvideStore[itemdomain.Item](dbConn),
	}
	return guard, dbConn, node
}

func seedLiveItems(t *testing.T, dbConn *gorm.DB, node *snowflake.Node, companyID snowflake.ID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		item := itemdomain.Item{
			ID:           node.Generate(),
			CompanyID:    companyID,
			Code:         node.Generate().String(),
			Name:         "seeded",
			Status:       itemdomain.StatusLive,
			OwnerUserID:  1,
			ArtifactRef:  "artifacts/seed.pdf",
			ArtifactType: itemdomain.ArtifactPDF,
		}
		if err := dbConn.Create(&item).Error; err != nil {
			t.Fatalf("failed to seed item: %v", err)
		}
	}
}

func TestCheckDeniesAtLimit(t *testing.T) {
	guard, dbConn, node := newTestGuard(t)
	company := &companydomain.Company{ID: node.Generate(), Plan: "starter"}

	seedLiveItems(t, dbConn, node, company.ID, 2)

	err := guard.Check(context.Background(), company)
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", err)
	}
	if exceeded.Count != 2 || exceeded.Limit != 2 {
		t.Fatalf("expected count=2 limit=2, got count=%d limit=%d", exceeded.Count, exceeded.Limit)
	}
}

func TestCheckAllowsBelowLimit(t *testing.T) {
	guard, dbConn, node := newTestGuard(t)
	company := &companydomain.Company{ID: node.Generate(), Plan: "starter"}

	seedLiveItems(t, dbConn, node, company.ID, 1)

	if err := guard.Check(context.Background(), company); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestCheckIgnoresNonLiveItems(t *testing.T) {
	guard, dbConn, node := newTestGuard(t)
	company := &companydomain.Company{ID: node.Generate(), Plan: "starter"}

	for _, status := range []itemdomain.Status{itemdomain.StatusProcessing, itemdomain.StatusError} {
		item := itemdomain.Item{
			ID:           node.Generate(),
			CompanyID:    company.ID,
			Code:         node.Generate().String(),
			Name:         "seeded",
			Status:       status,
			OwnerUserID:  1,
			ArtifactRef:  "artifacts/seed.pdf",
			ArtifactType: itemdomain.ArtifactPDF,
		}
		if err := dbConn.Create(&item).Error; err != nil {
			t.Fatalf("failed to seed item: %v", err)
		}
	}

	if err := guard.Check(context.Background(), company); err != nil {
		t.Fatalf("expected allow, got %v", err)
	}
}

func TestCheckUnlimitedAlwaysAllows(t *testing.T) {
	guard, dbConn, node := newTestGuard(t)
	company := &companydomain.Company{ID: node.Generate(), Plan: "enterprise"}

	seedLiveItems(t, dbConn, node, company.ID, 10)

	if err := guard.Check(context.Background(), company); err != nil {
		t.Fatalf("expected allow for unlimited plan, got %v", err)
	}
}
