package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/guidely/guidely/internal/cache"
	companydomain "github.com/guidely/guidely/internal/company/domain"
	"github.com/guidely/guidely/internal/companyctx"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	obsmetrics "github.com/guidely/guidely/internal/observability/metrics"
	"github.com/guidely/guidely/internal/quota"
	"github.com/guidely/guidely/internal/storage"
	"github.com/guidely/guidely/pkg/db"
	"github.com/guidely/guidely/pkg/db/option"
	"github.com/guidely/guidely/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	CompanySvc companydomain.Service
	Quota      *quota.Guard
	Store      *storage.Store
	Enqueue    itemdomain.Enqueuer
	Resolver   cache.GuideResolverCache
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	companysvc companydomain.Service
	quota      *quota.Guard
	store      *storage.Store
	enqueue    itemdomain.Enqueuer
	resolver   cache.GuideResolverCache
	metrics    *obsmetrics.Metrics

	items repository.Repository[itemdomain.Item]
}

func NewService(p ServiceParam) itemdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("item.service"),

		genID:      p.GenID,
		companysvc: p.CompanySvc,
		quota:      p.Quota,
		store:      p.Store,
		enqueue:    p.Enqueue,
		resolver:   p.Resolver,
		metrics:    p.Metrics,

		items: repository.ProvideStore[itemdomain.Item](p.DB),
	}
}

// Create validates the submission, guards quota, persists the item in
// processing state and hands it to the pipeline. The response returns
// before any derivation work happens; callers poll GetStatus.
func (s *Service) Create(ctx context.Context, req itemdomain.CreateRequest) (*itemdomain.Item, error) {
	companyID, ok := companyIDFrom(ctx)
	if !ok {
		return nil, itemdomain.ErrInvalidCompany
	}

	code := slug.Make(req.Code)
	if code == "" {
		return nil, itemdomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, itemdomain.ErrInvalidName
	}
	artifactType, err := parseArtifactType(req.ArtifactType)
	if err != nil {
		return nil, err
	}
	if req.Artifact == nil {
		return nil, itemdomain.ErrInvalidArtifact
	}

	existing, err := s.items.FindOne(ctx, &itemdomain.Item{CompanyID: companyID, Code: code})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, itemdomain.ErrCodeTaken
	}

	company, err := s.companysvc.GetByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if err := s.quota.Check(ctx, company); err != nil {
		return nil, err
	}

	id := s.genID.Generate()
	artifactRef, err := s.store.SaveArtifact(fmt.Sprintf("%s.%s", id.String(), artifactType), req.Artifact)
	if err != nil {
		return nil, err
	}

	item := &itemdomain.Item{
		ID:           id,
		CompanyID:    companyID,
		Code:         code,
		Name:         name,
		Category:     strings.TrimSpace(req.Category),
		Status:       itemdomain.StatusProcessing,
		OwnerUserID:  company.OwnerUserID,
		ArtifactRef:  artifactRef,
		ArtifactType: artifactType,
	}
	if err := s.items.Create(ctx, item); err != nil {
		_ = s.store.Remove(artifactRef)
		// Unique-index backstop: the pre-check above races with
		// concurrent submissions of the same code.
		if db.IsDuplicateKeyErr(err) {
			return nil, itemdomain.ErrCodeTaken
		}
		return nil, err
	}

	// Creation and enqueue are separate steps; a crash in between
	// leaves the item parked in processing (documented gap).
	s.enqueue.Enqueue(item.ID)
	s.metrics.RecordItemSubmitted(ctx)

	s.log.Info("item accepted for ingestion",
		zap.String("item_id", item.ID.String()),
		zap.String("code", item.Code),
	)
	return item, nil
}

func (s *Service) GetStatus(ctx context.Context, companyID, itemID snowflake.ID) (*itemdomain.StatusResponse, error) {
	item, err := s.Get(ctx, companyID, itemID)
	if err != nil {
		return nil, err
	}

	resp := &itemdomain.StatusResponse{
		ID:     item.ID,
		Code:   item.Code,
		Status: item.Status,
	}
	if item.Status == itemdomain.StatusLive {
		resp.VideoRef = item.VideoRef
		resp.VideoDurationSec = item.VideoDurationSec
		resp.StepCount = item.StepCount
		resp.QRImageRef = item.QRImageRef
		resp.TargetURL = item.TargetURL
	}
	return resp, nil
}

// Get never reveals whether an item exists under another company.
func (s *Service) Get(ctx context.Context, companyID, itemID snowflake.ID) (*itemdomain.Item, error) {
	if companyID == 0 || itemID == 0 {
		return nil, itemdomain.ErrNotFound
	}
	item, err := s.items.FindOne(ctx, &itemdomain.Item{ID: itemID, CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, itemdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) List(ctx context.Context, companyID snowflake.ID) ([]*itemdomain.Item, error) {
	if companyID == 0 {
		return nil, itemdomain.ErrInvalidCompany
	}
	return s.items.Find(ctx, &itemdomain.Item{CompanyID: companyID},
		option.WithOrder("created_at DESC"),
	)
}

// ResolveByCode resolves a public code to its live item. Codes are
// unique per company, not globally; when two companies share a code the
// most recently published live item wins. Hits are cached briefly since
// every public event on a guide resolves the same code; misses are not,
// so an item going live resolves on the next scan.
func (s *Service) ResolveByCode(ctx context.Context, code string) (*itemdomain.Item, error) {
	code = slug.Make(code)
	if code == "" {
		return nil, itemdomain.ErrNotFound
	}
	if cached, ok := s.resolver.Get(code); ok {
		return cached, nil
	}
	item, err := s.items.FindOne(ctx, &itemdomain.Item{Code: code, Status: itemdomain.StatusLive},
		option.WithOrder("updated_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, itemdomain.ErrNotFound
	}
	s.resolver.Set(code, item)
	return item, nil
}

// Delete removes the item with its recorded events and stored blobs.
func (s *Service) Delete(ctx context.Context, companyID, itemID snowflake.ID) error {
	item, err := s.Get(ctx, companyID, itemID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Explicit event deletes back up the FK cascade for engines
		// running without foreign key enforcement.
		if err := tx.Exec(`DELETE FROM scan_events WHERE item_id = ?`, item.ID).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM question_events WHERE item_id = ?`, item.ID).Error; err != nil {
			return err
		}
		return tx.Delete(&itemdomain.Item{}, "id = ?", item.ID).Error
	})
	if err != nil {
		return err
	}

	s.resolver.Invalidate(item.Code)
	if err := s.store.Remove(item.ArtifactRef); err != nil {
		s.log.Warn("artifact cleanup failed", zap.String("item_id", item.ID.String()), zap.Error(err))
	}
	if item.QRImageRef != nil {
		if err := s.store.Remove(*item.QRImageRef); err != nil {
			s.log.Warn("qr cleanup failed", zap.String("item_id", item.ID.String()), zap.Error(err))
		}
	}
	return nil
}

func companyIDFrom(ctx context.Context) (snowflake.ID, bool) {
	id, ok := companyctx.CompanyIDFromContext(ctx)
	return id, ok && id != 0
}

func parseArtifactType(raw string) (itemdomain.ArtifactType, error) {
	switch itemdomain.ArtifactType(strings.ToLower(strings.TrimSpace(raw))) {
	case itemdomain.ArtifactPDF:
		return itemdomain.ArtifactPDF, nil
	case itemdomain.ArtifactImage:
		return itemdomain.ArtifactImage, nil
	default:
		return "", itemdomain.ErrInvalidArtifact
	}
}
