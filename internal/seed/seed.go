// Package seed bootstraps a demo company so a fresh install is usable
// without a signup flow, which lives outside this service.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/guidely/guidely/internal/company/domain"
	"gorm.io/gorm"
)

const (
	demoCompanyName = "Demo Workshop"
	demoCompanyPlan = "starter"
	demoAPIKey      = "gd_demo_api_key"
	demoOwnerEmail  = "owner@demo.guidely.app"
	demoOwnerName   = "Demo Owner"
)

// EnsureDemoCompany seeds the demo company, its owner and the owner's
// notification preference. Idempotent across restarts.
func EnsureDemoCompany(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing companydomain.Company
		err := tx.WithContext(ctx).Where("api_key = ?", demoAPIKey).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		owner := companydomain.User{
			ID:        node.Generate(),
			Email:     demoOwnerEmail,
			Name:      demoOwnerName,
			CreatedAt: now,
		}
		company := companydomain.Company{
			ID:          node.Generate(),
			Name:        demoCompanyName,
			Plan:        demoCompanyPlan,
			APIKey:      demoAPIKey,
			OwnerUserID: owner.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		owner.CompanyID = company.ID

		if err := tx.WithContext(ctx).Create(&company).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Create(&owner).Error; err != nil {
			return err
		}
		pref := companydomain.NotificationPreference{
			UserID:    owner.ID,
			ItemReady: true,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&pref).Error
	})
}
