package migration

import (
	analyticsdomain "github.com/guidely/guidely/internal/analytics/domain"
	companydomain "github.com/guidely/guidely/internal/company/domain"
	"github.com/guidely/guidely/internal/config"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/guidely/guidely/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := conn.AutoMigrate(
				&companydomain.Company{},
				&companydomain.User{},
				&companydomain.NotificationPreference{},
				&itemdomain.Item{},
				&analyticsdomain.ScanEvent{},
				&analyticsdomain.QuestionEvent{},
			); err != nil {
				return err
			}
		}

		return seed.EnsureDemoCompany(conn)
	}),
)
