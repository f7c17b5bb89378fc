package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	companydomain "github.com/guidely/guidely/internal/company/domain"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/guidely/guidely/internal/notification"
	"github.com/guidely/guidely/internal/providers/extract"
	"github.com/guidely/guidely/internal/providers/media"
	"github.com/guidely/guidely/internal/providers/qrcode"
	"github.com/guidely/guidely/pkg/db"
	"github.com/guidely/guidely/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type extractStub struct {
	steps int
	err   error
}

func (s *extractStub) ExtractSteps(ctx context.Context, artifactRef string, artifactType itemdomain.ArtifactType) ([]extract.Step, error) {
	if s.err != nil {
		return nil, s.err
	}
	steps := make([]extract.Step, 0, s.steps)
	for i := 1; i <= s.steps; i++ {
		steps = append(steps, extract.Step{Number: i, Title: fmt.Sprintf("Step %d", i)})
	}
	return steps, nil
}

type mediaStub struct {
	err       error
	stepDrift int
}

func (s *mediaStub) Generate(ctx context.Context, itemID snowflake.ID, steps []extract.Step) (*media.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &media.Result{
		VideoRef:    fmt.Sprintf("https://media.example.com/videos/%s.mp4", itemID),
		DurationSec: len(steps) * 45,
		StepCount:   len(steps) + s.stepDrift,
	}, nil
}

type qrStub struct {
	err error
}

func (s *qrStub) Generate(ctx context.Context, code string) (*qrcode.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &qrcode.Result{
		ImageRef:  fmt.Sprintf("qr/%s.png", code),
		TargetURL: fmt.Sprintf("https://guides.example.com/g/%s", code),
	}, nil
}

type emailStub struct {
	sent []string
	err  error
}

func (s *emailStub) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, subject)
	return nil
}

type ownerStub struct {
	optIn bool
}

func (s *ownerStub) GetByAPIKey(ctx context.Context, apiKey string) (*companydomain.Company, error) {
	return nil, companydomain.ErrInvalidAPIKey
}

func (s *ownerStub) GetByID(ctx context.Context, id snowflake.ID) (*companydomain.Company, error) {
	return nil, companydomain.ErrNotFound
}

func (s *ownerStub) Owner(ctx context.Context, companyID snowflake.ID) (*companydomain.User, error) {
	return &companydomain.User{ID: 1, CompanyID: companyID, Email: "owner@example.com", Name: "Owner"}, nil
}

func (s *ownerStub) ItemReadyOptIn(ctx context.Context, userID snowflake.ID) (bool, error) {
	return s.optIn, nil
}

type runnerEnv struct {
	runner  *Runner
	db      *gorm.DB
	node    *snowflake.Node
	extract *extractStub
	media   *mediaStub
	qr      *qrStub
	email   *emailStub
}

func newRunnerEnv(t *testing.T) *runnerEnv {
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

	env := &runnerEnv{
		db:      dbConn,
		node:    node,
		extract: &extractStub{steps: 4},
		media:   &mediaStub{},
		qr:      &qrStub{},
		email:   &emailStub{},
	}
	notifier := notification.NewNotifier(notification.NotifierParam{
		Log:        zap.NewNop(),
		CompanySvc: &ownerStub{optIn: true},
		Email:      env.email,
	})
	env.runner = &Runner{
		log:       zap.NewNop(),
		items:     repository.ProvideStore[itemdomain.Item](dbConn),
		extractor: env.extract,
		media:     env.media,
		qr:        env.qr,
		notifier:  notifier,
	}
	return env
}

func (e *runnerEnv) newItem(t *testing.T, status itemdomain.Status) *itemdomain.Item {
	t.Helper()
	item := &itemdomain.Item{
		ID:           e.node.Generate(),
		CompanyID:    e.node.Generate(),
		Code:         "shelf",
		Name:         "Bookshelf",
		Status:       status,
		OwnerUserID:  1,
		ArtifactRef:  "artifacts/shelf.pdf",
		ArtifactType: itemdomain.ArtifactPDF,
	}
	if err := e.db.Create(item).Error; err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}
	return item
}

func (e *runnerEnv) reload(t *testing.T, id snowflake.ID) *itemdomain.Item {
	t.Helper()
	var item itemdomain.Item
	if err := e.db.First(&item, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload item: %v", err)
	}
	return &item
}

func TestRunCommitsAllDerivedFields(t *testing.T) {
	env := newRunnerEnv(t)
	item := env.newItem(t, itemdomain.StatusProcessing)

	if err := env.runner.Run(context.Background(), item.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got := env.reload(t, item.ID)
	if got.Status != itemdomain.StatusLive {
		t.Fatalf("expected live, got %s", got.Status)
	}
	if !got.Derived() {
		t.Fatal("expected every derived field populated")
	}
	if *got.StepCount != 4 {
		t.Fatalf("expected step count 4, got %d", *got.StepCount)
	}
	if *got.VideoDurationSec <= 0 {
		t.Fatalf("expected positive duration, got %d", *got.VideoDurationSec)
	}
	if *got.TargetURL != "https://guides.example.com/g/shelf" {
		t.Fatalf("unexpected target url %q", *got.TargetURL)
	}
	if len(env.email.sent) != 1 {
		t.Fatalf("expected one ready notification, got %d", len(env.email.sent))
	}
}

func TestRunDurationGrowsWithStepCount(t *testing.T) {
	env := newRunnerEnv(t)

	var last int
	for _, steps := range []int{2, 5, 9} {
		env.extract.steps = steps
		item := env.newItem(t, itemdomain.StatusProcessing)
		if err := env.runner.Run(context.Background(), item.ID); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		got := env.reload(t, item.ID)
		if *got.StepCount != steps {
			t.Fatalf("expected step count %d, got %d", steps, *got.StepCount)
		}
		if *got.VideoDurationSec <= last {
			t.Fatalf("expected duration to grow: %d then %d", last, *got.VideoDurationSec)
		}
		last = *got.VideoDurationSec
	}
}

func TestRunStageFailuresParkItemInError(t *testing.T) {
	cases := []struct {
		name  string
		setup func(env *runnerEnv)
	}{
		{"extract error", func(env *runnerEnv) { env.extract.err = extract.ErrUnreadable }},
		{"zero steps", func(env *runnerEnv) { env.extract.steps = 0 }},
		{"media error", func(env *runnerEnv) { env.media.err = errors.New("render failed") }},
		{"step drift", func(env *runnerEnv) { env.media.stepDrift = 1 }},
		{"qrcode error", func(env *runnerEnv) { env.qr.err = errors.New("encode failed") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newRunnerEnv(t)
			tc.setup(env)
			item := env.newItem(t, itemdomain.StatusProcessing)

			if err := env.runner.Run(context.Background(), item.ID); err != nil {
				t.Fatalf("run returned error: %v", err)
			}

			got := env.reload(t, item.ID)
			if got.Status != itemdomain.StatusError {
				t.Fatalf("expected error status, got %s", got.Status)
			}
			if got.VideoRef != nil || got.VideoDurationSec != nil || got.StepCount != nil ||
				got.QRImageRef != nil || got.TargetURL != nil {
				t.Fatal("expected no derived fields on failure")
			}
			if len(env.email.sent) != 0 {
				t.Fatalf("expected no notification on failure, got %d", len(env.email.sent))
			}
		})
	}
}

func TestRunSecondSubmissionUnaffectedByEarlierFailure(t *testing.T) {
	env := newRunnerEnv(t)

	env.extract.err = extract.ErrUnreadable
	failed := env.newItem(t, itemdomain.StatusProcessing)
	if err := env.runner.Run(context.Background(), failed.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	env.extract.err = nil
	env.extract.steps = 3
	ok := env.newItem(t, itemdomain.StatusProcessing)
	if err := env.runner.Run(context.Background(), ok.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := env.reload(t, failed.ID); got.Status != itemdomain.StatusError {
		t.Fatalf("expected first item in error, got %s", got.Status)
	}
	if got := env.reload(t, ok.ID); got.Status != itemdomain.StatusLive {
		t.Fatalf("expected second item live, got %s", got.Status)
	}
}

func TestRunNotificationFailureKeepsLive(t *testing.T) {
	env := newRunnerEnv(t)
	env.email.err = errors.New("smtp down")
	item := env.newItem(t, itemdomain.StatusProcessing)

	if err := env.runner.Run(context.Background(), item.ID); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := env.reload(t, item.ID); got.Status != itemdomain.StatusLive {
		t.Fatalf("expected live despite notification failure, got %s", got.Status)
	}
}

func TestRunSkipsTerminalStates(t *testing.T) {
	env := newRunnerEnv(t)
	env.extract.err = errors.New("must not be called")

	for _, status := range []itemdomain.Status{itemdomain.StatusLive, itemdomain.StatusError} {
		item := env.newItem(t, status)
		if err := env.runner.Run(context.Background(), item.ID); err != nil {
			t.Fatalf("run failed: %v", err)
		}
		if got := env.reload(t, item.ID); got.Status != status {
			t.Fatalf("expected status unchanged, got %s", got.Status)
		}
	}
}
