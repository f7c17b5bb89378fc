package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/guidely/guidely/internal/company/domain"
	"github.com/guidely/guidely/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	companies repository.Repository[companydomain.Company]
	users     repository.Repository[companydomain.User]
	prefs     repository.Repository[companydomain.NotificationPreference]
}

func NewService(p ServiceParam) companydomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("company.service"),

		companies: repository.ProvideStore[companydomain.Company](p.DB),
		users:     repository.ProvideStore[companydomain.User](p.DB),
		prefs:     repository.ProvideStore[companydomain.NotificationPreference](p.DB),
	}
}

func (s *Service) GetByAPIKey(ctx context.Context, apiKey string) (*companydomain.Company, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, companydomain.ErrInvalidAPIKey
	}
	company, err := s.companies.FindOne(ctx, &companydomain.Company{APIKey: apiKey})
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, companydomain.ErrInvalidAPIKey
	}
	return company, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*companydomain.Company, error) {
	if id == 0 {
		return nil, companydomain.ErrNotFound
	}
	company, err := s.companies.FindOne(ctx, &companydomain.Company{ID: id})
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, companydomain.ErrNotFound
	}
	return company, nil
}

func (s *Service) Owner(ctx context.Context, companyID snowflake.ID) (*companydomain.User, error) {
	company, err := s.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindOne(ctx, &companydomain.User{ID: company.OwnerUserID})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, companydomain.ErrOwnerNotFound
	}
	return user, nil
}

func (s *Service) ItemReadyOptIn(ctx context.Context, userID snowflake.ID) (bool, error) {
	pref, err := s.prefs.FindOne(ctx, &companydomain.NotificationPreference{UserID: userID})
	if err != nil {
		return false, err
	}
	if pref == nil {
		return true, nil
	}
	return pref.ItemReady, nil
}
