// Package pipeline owns the ingestion state machine. Each accepted item
// runs through extraction, media generation and code generation in
// strict order, then commits every derived field together with the flip
// to live. Any stage failure parks the item in error with nothing
// derived persisted. live and error are terminal.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/guidely/guidely/internal/notification"
	obsmetrics "github.com/guidely/guidely/internal/observability/metrics"
	"github.com/guidely/guidely/internal/providers/extract"
	"github.com/guidely/guidely/internal/providers/media"
	"github.com/guidely/guidely/internal/providers/qrcode"
	"github.com/guidely/guidely/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	StageExtract = "extract"
	StageMedia   = "media"
	StageCode    = "qrcode"
	StageCommit  = "commit"
)

// stageError tags a failure with the stage that produced it.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return fmt.Sprintf("%s stage: %v", e.stage, e.err) }
func (e *stageError) Unwrap() error { return e.err }

type RunnerParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Extractor extract.Provider
	Media     media.Provider
	QR        qrcode.Provider
	Notifier  *notification.Notifier
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Runner struct {
	log       *zap.Logger
	items     repository.Repository[itemdomain.Item]
	extractor extract.Provider
	media     media.Provider
	qr        qrcode.Provider
	notifier  *notification.Notifier
	metrics   *obsmetrics.Metrics
}

func NewRunner(p RunnerParam) *Runner {
	return &Runner{
		log:       p.Log.Named("pipeline"),
		items:     repository.ProvideStore[itemdomain.Item](p.DB),
		extractor: p.Extractor,
		media:     p.Media,
		qr:        p.QR,
		notifier:  p.Notifier,
		metrics:   p.Metrics,
	}
}

// Run executes the full derivation for one item. Stage failures are
// terminal for the item, not for the caller: they surface only through
// the item's status, never to the submitting request.
func (r *Runner) Run(ctx context.Context, itemID snowflake.ID) error {
	item, err := r.items.FindOne(ctx, &itemdomain.Item{ID: itemID})
	if err != nil {
		return err
	}
	if item == nil {
		r.log.Warn("pipeline item vanished before run", zap.String("item_id", itemID.String()))
		return nil
	}
	if item.Status != itemdomain.StatusProcessing {
		// live and error are terminal; a re-delivered job is a no-op.
		r.log.Debug("pipeline skipping item in terminal state",
			zap.String("item_id", itemID.String()),
			zap.String("status", string(item.Status)),
		)
		return nil
	}

	log := r.log.With(
		zap.String("item_id", item.ID.String()),
		zap.String("code", item.Code),
	)

	derived, err := r.derive(ctx, item)
	if err != nil {
		r.fail(ctx, log, item, err)
		return nil
	}

	if err := r.commit(ctx, item, derived); err != nil {
		r.fail(ctx, log, item, &stageError{stage: StageCommit, err: err})
		return nil
	}

	log.Info("item live",
		zap.Int("steps", derived.stepCount),
		zap.Int("duration_sec", derived.durationSec),
	)
	r.metrics.RecordPipelineRun(ctx, "live")

	// Best-effort only; a failed notification never reverts live.
	item.Status = itemdomain.StatusLive
	item.VideoRef = &derived.videoRef
	item.VideoDurationSec = &derived.durationSec
	item.StepCount = &derived.stepCount
	item.QRImageRef = &derived.qrImageRef
	item.TargetURL = &derived.targetURL
	if err := r.notifier.ItemReady(ctx, item); err != nil {
		log.Warn("item-ready notification failed", zap.Error(err))
	}
	return nil
}

type derivedFields struct {
	videoRef    string
	durationSec int
	stepCount   int
	qrImageRef  string
	targetURL   string
}

func (r *Runner) derive(ctx context.Context, item *itemdomain.Item) (*derivedFields, error) {
	steps, err := r.extractor.ExtractSteps(ctx, item.ArtifactRef, item.ArtifactType)
	if err != nil {
		return nil, &stageError{stage: StageExtract, err: err}
	}
	if len(steps) == 0 {
		return nil, &stageError{stage: StageExtract, err: extract.ErrNoSteps}
	}

	mediaRes, err := r.media.Generate(ctx, item.ID, steps)
	if err != nil {
		return nil, &stageError{stage: StageMedia, err: err}
	}
	if mediaRes.StepCount != len(steps) {
		return nil, &stageError{
			stage: StageMedia,
			err:   fmt.Errorf("step count drifted: extracted %d, rendered %d", len(steps), mediaRes.StepCount),
		}
	}
	if mediaRes.DurationSec <= 0 {
		return nil, &stageError{
			stage: StageMedia,
			err:   fmt.Errorf("non-positive duration %d", mediaRes.DurationSec),
		}
	}

	qrRes, err := r.qr.Generate(ctx, item.Code)
	if err != nil {
		return nil, &stageError{stage: StageCode, err: err}
	}

	return &derivedFields{
		videoRef:    mediaRes.VideoRef,
		durationSec: mediaRes.DurationSec,
		stepCount:   mediaRes.StepCount,
		qrImageRef:  qrRes.ImageRef,
		targetURL:   qrRes.TargetURL,
	}, nil
}

// commit persists every derived field and the live status as one
// update, keeping the all-or-nothing contract.
func (r *Runner) commit(ctx context.Context, item *itemdomain.Item, d *derivedFields) error {
	return r.items.Update(ctx, item.ID.String(), map[string]any{
		"status":             itemdomain.StatusLive,
		"video_ref":          d.videoRef,
		"video_duration_sec": d.durationSec,
		"step_count":         d.stepCount,
		"qr_image_ref":       d.qrImageRef,
		"target_url":         d.targetURL,
	})
}

func (r *Runner) fail(ctx context.Context, log *zap.Logger, item *itemdomain.Item, cause error) {
	stage := "unknown"
	var sErr *stageError
	if errors.As(cause, &sErr) {
		stage = sErr.stage
	}
	log.Error("pipeline stage failed",
		zap.String("stage", stage),
		zap.Error(cause),
	)
	r.metrics.RecordPipelineFailure(ctx, stage)
	r.metrics.RecordPipelineRun(ctx, "error")

	// No derived field is written on the failure path; the row keeps
	// the processing-state shape with a terminal error status.
	if err := r.items.Update(ctx, item.ID.String(), map[string]any{
		"status": itemdomain.StatusError,
	}); err != nil {
		log.Error("pipeline failed to mark item error", zap.Error(err))
	}
}
