package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/guidely/guidely/internal/analytics/domain"
	"github.com/guidely/guidely/internal/clock"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/guidely/guidely/pkg/db"
	"github.com/guidely/guidely/pkg/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type resolverStub struct {
	items map[string]*itemdomain.Item
}

func (s *resolverStub) Create(ctx context.Context, req itemdomain.CreateRequest) (*itemdomain.Item, error) {
	return nil, errors.New("not implemented")
}

func (s *resolverStub) GetStatus(ctx context.Context, companyID, itemID snowflake.ID) (*itemdomain.StatusResponse, error) {
	return nil, itemdomain.ErrNotFound
}

func (s *resolverStub) Get(ctx context.Context, companyID, itemID snowflake.ID) (*itemdomain.Item, error) {
	return nil, itemdomain.ErrNotFound
}

func (s *resolverStub) List(ctx context.Context, companyID snowflake.ID) ([]*itemdomain.Item, error) {
	return nil, nil
}

func (s *resolverStub) ResolveByCode(ctx context.Context, code string) (*itemdomain.Item, error) {
	if item, ok := s.items[code]; ok {
		return item, nil
	}
	return nil, itemdomain.ErrNotFound
}

func (s *resolverStub) Delete(ctx context.Context, companyID, itemID snowflake.ID) error {
	return itemdomain.ErrNotFound
}

type analyticsEnv struct {
	svc   *Service
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	item  *itemdomain.Item
}

func newAnalyticsEnv(t *testing.T) *analyticsEnv {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(
		&itemdomain.Item{},
		&analyticsdomain.ScanEvent{},
		&analyticsdomain.QuestionEvent{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))

	item := &itemdomain.Item{
		ID:           node.Generate(),
		CompanyID:    node.Generate(),
		Code:         "shelf",
		Name:         "Bookshelf",
		Status:       itemdomain.StatusLive,
		OwnerUserID:  1,
		ArtifactRef:  "artifacts/shelf.pdf",
		ArtifactType: itemdomain.ArtifactPDF,
	}
	if err := dbConn.Create(item).Error; err != nil {
		t.Fatalf("failed to seed item: %v", err)
	}

	svc := &Service{
		log:     zap.NewNop(),
		genID:   node,
		clock:   fake,
		itemsvc: &resolverStub{items: map[string]*itemdomain.Item{item.Code: item}},

		scans:     repository.ProvideStore[analyticsdomain.ScanEvent](dbConn),
		questions: repository.ProvideStore[analyticsdomain.QuestionEvent](dbConn),
		items:     repository.ProvideStore[itemdomain.Item](dbConn),
	}
	return &analyticsEnv{svc: svc, db: dbConn, node: node, clock: fake, item: item}
}

func (e *analyticsEnv) scan(t *testing.T, sessionID string) *analyticsdomain.ScanEvent {
	t.Helper()
	event, err := e.svc.RecordScan(context.Background(), analyticsdomain.ScanRequest{
		Code:      e.item.Code,
		SessionID: sessionID,
	})
	if err != nil {
		t.Fatalf("failed to record scan: %v", err)
	}
	return event
}

func intPtr(v int) *int { return &v }

func TestRecordScanDefaultsToAnonymousSession(t *testing.T) {
	env := newAnalyticsEnv(t)

	event := env.scan(t, "")
	if event.SessionID != analyticsdomain.AnonymousSession {
		t.Fatalf("expected anonymous session, got %q", event.SessionID)
	}
	if event.HourOfDay != 10 {
		t.Fatalf("expected hour 10, got %d", event.HourOfDay)
	}
	if event.CompanyID != env.item.CompanyID || event.ItemID != env.item.ID {
		t.Fatal("expected event scoped to the resolved item")
	}
}

func TestRecordScanUnknownCode(t *testing.T) {
	env := newAnalyticsEnv(t)

	_, err := env.svc.RecordScan(context.Background(), analyticsdomain.ScanRequest{Code: "missing"})
	if !errors.Is(err, itemdomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordCompletionUpdatesLatestScan(t *testing.T) {
	env := newAnalyticsEnv(t)

	first := env.scan(t, "sess-1")
	env.clock.Advance(5 * time.Minute)
	second := env.scan(t, "sess-1")

	err := env.svc.RecordCompletion(context.Background(), analyticsdomain.CompletionRequest{
		Code:           env.item.Code,
		SessionID:      "sess-1",
		CompletionStep: intPtr(4),
		Rating:         intPtr(5),
	})
	if err != nil {
		t.Fatalf("failed to record completion: %v", err)
	}

	var updated analyticsdomain.ScanEvent
	if err := env.db.First(&updated, "id = ?", second.ID).Error; err != nil {
		t.Fatalf("failed to reload scan: %v", err)
	}
	if !updated.Completed || updated.CompletionStep == nil || *updated.CompletionStep != 4 {
		t.Fatalf("expected latest scan completed at step 4, got %+v", updated)
	}
	if updated.Rating == nil || *updated.Rating != 5 {
		t.Fatalf("expected rating 5, got %v", updated.Rating)
	}

	var earlier analyticsdomain.ScanEvent
	if err := env.db.First(&earlier, "id = ?", first.ID).Error; err != nil {
		t.Fatalf("failed to reload scan: %v", err)
	}
	if earlier.Completed {
		t.Fatal("expected earlier scan untouched")
	}
}

func TestRecordCompletionWithoutPriorScanIsNoOp(t *testing.T) {
	env := newAnalyticsEnv(t)

	err := env.svc.RecordCompletion(context.Background(), analyticsdomain.CompletionRequest{
		Code:      env.item.Code,
		SessionID: "never-scanned",
	})
	if err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}

	var count int64
	if err := env.db.Model(&analyticsdomain.ScanEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count scans: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no scan rows, got %d", count)
	}
}

func TestRecordCompletionRejectsBadRating(t *testing.T) {
	env := newAnalyticsEnv(t)

	for _, rating := range []int{0, 6, -1} {
		err := env.svc.RecordCompletion(context.Background(), analyticsdomain.CompletionRequest{
			Code:      env.item.Code,
			SessionID: "sess-1",
			Rating:    intPtr(rating),
		})
		if !errors.Is(err, analyticsdomain.ErrInvalidRating) {
			t.Fatalf("expected ErrInvalidRating for %d, got %v", rating, err)
		}
	}
}

func TestOverviewComputesRates(t *testing.T) {
	env := newAnalyticsEnv(t)

	// One repeat session out of three distinct sessions.
	env.scan(t, "sess-1")
	env.scan(t, "sess-1")
	env.scan(t, "sess-2")
	env.scan(t, "sess-3")

	err := env.svc.RecordCompletion(context.Background(), analyticsdomain.CompletionRequest{
		Code:      env.item.Code,
		SessionID: "sess-1",
		Rating:    intPtr(4),
	})
	if err != nil {
		t.Fatalf("failed to record completion: %v", err)
	}

	overview, err := env.svc.Overview(context.Background(), env.item.CompanyID, "30d")
	if err != nil {
		t.Fatalf("failed to read overview: %v", err)
	}
	if overview.TotalScans != 4 {
		t.Fatalf("expected 4 scans, got %d", overview.TotalScans)
	}
	if overview.CompletedScans != 1 {
		t.Fatalf("expected 1 completed, got %d", overview.CompletedScans)
	}
	if overview.CompletionRate != 25.0 {
		t.Fatalf("expected completion rate 25.0, got %v", overview.CompletionRate)
	}
	if overview.AverageRating == nil || *overview.AverageRating != 4.0 {
		t.Fatalf("expected average rating 4.0, got %v", overview.AverageRating)
	}
	if overview.RepeatRate != 33.3 {
		t.Fatalf("expected repeat rate 33.3, got %v", overview.RepeatRate)
	}
	if overview.LiveItems != 1 {
		t.Fatalf("expected 1 live item, got %d", overview.LiveItems)
	}
}

func TestOverviewEmptyWindow(t *testing.T) {
	env := newAnalyticsEnv(t)

	overview, err := env.svc.Overview(context.Background(), env.item.CompanyID, "7d")
	if err != nil {
		t.Fatalf("failed to read overview: %v", err)
	}
	if overview.TotalScans != 0 || overview.CompletionRate != 0 || overview.RepeatRate != 0 {
		t.Fatalf("expected zeroed overview, got %+v", overview)
	}
	if overview.AverageRating != nil {
		t.Fatalf("expected nil average rating, got %v", *overview.AverageRating)
	}
}

func TestTimeSeriesDayBuckets(t *testing.T) {
	env := newAnalyticsEnv(t)

	env.scan(t, "sess-1")
	env.clock.Advance(24 * time.Hour)
	env.scan(t, "sess-2")

	series, err := env.svc.TimeSeries(context.Background(), env.item.CompanyID, "7d")
	if err != nil {
		t.Fatalf("failed to read series: %v", err)
	}
	if series.Granularity != "day" {
		t.Fatalf("expected day granularity, got %s", series.Granularity)
	}
	if len(series.Points) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(series.Points))
	}
	if series.Points[0].Bucket != "2024-03-15" || series.Points[1].Bucket != "2024-03-16" {
		t.Fatalf("expected ascending day keys, got %v", series.Points)
	}
	for _, p := range series.Points {
		if p.Count != 1 {
			t.Fatalf("expected count 1 per bucket, got %d", p.Count)
		}
	}
}

func TestTimeSeriesWeekBucketsSundayAligned(t *testing.T) {
	env := newAnalyticsEnv(t)

	// 2024-03-15 is a Friday; its week starts Sunday 2024-03-10.
	env.scan(t, "sess-1")

	series, err := env.svc.TimeSeries(context.Background(), env.item.CompanyID, "90d")
	if err != nil {
		t.Fatalf("failed to read series: %v", err)
	}
	if series.Granularity != "week" {
		t.Fatalf("expected week granularity, got %s", series.Granularity)
	}
	if len(series.Points) != 1 || series.Points[0].Bucket != "2024-03-10" {
		t.Fatalf("expected Sunday-aligned week key 2024-03-10, got %v", series.Points)
	}
}

func TestTimeSeriesMonthBucketsWhenUnbounded(t *testing.T) {
	env := newAnalyticsEnv(t)

	env.scan(t, "sess-1")

	series, err := env.svc.TimeSeries(context.Background(), env.item.CompanyID, "")
	if err != nil {
		t.Fatalf("failed to read series: %v", err)
	}
	if series.Granularity != "month" {
		t.Fatalf("expected month granularity, got %s", series.Granularity)
	}
	if len(series.Points) != 1 || series.Points[0].Bucket != "2024-03" {
		t.Fatalf("expected month key 2024-03, got %v", series.Points)
	}
}

func TestTimeOfDayBuckets(t *testing.T) {
	env := newAnalyticsEnv(t)

	env.scan(t, "sess-1") // hour 10
	env.clock.Advance(13 * time.Hour)
	env.scan(t, "sess-2") // hour 23

	buckets, err := env.svc.TimeOfDay(context.Background(), env.item.CompanyID, "7d")
	if err != nil {
		t.Fatalf("failed to read buckets: %v", err)
	}
	if len(buckets) != 6 {
		t.Fatalf("expected 6 buckets, got %d", len(buckets))
	}

	byLabel := map[string]analyticsdomain.HourBucket{}
	var percentSum float64
	for _, b := range buckets {
		byLabel[b.Label] = b
		percentSum = percentSum + b.Percent
	}
	if byLabel["9-12"].Count != 1 {
		t.Fatalf("expected hour 10 in 9-12, got %+v", byLabel["9-12"])
	}
	if byLabel["21+"].Count != 1 {
		t.Fatalf("expected hour 23 in 21+, got %+v", byLabel["21+"])
	}
	if percentSum < 99.9 || percentSum > 100.1 {
		t.Fatalf("expected percentages to sum to 100, got %v", percentSum)
	}
}

func TestRatingsOrderedFiveToOne(t *testing.T) {
	env := newAnalyticsEnv(t)

	for i, rating := range []int{5, 5, 3} {
		session := string(rune('a' + i))
		env.scan(t, session)
		err := env.svc.RecordCompletion(context.Background(), analyticsdomain.CompletionRequest{
			Code:      env.item.Code,
			SessionID: session,
			Rating:    intPtr(rating),
		})
		if err != nil {
			t.Fatalf("failed to record completion: %v", err)
		}
	}

	breakdown, err := env.svc.Ratings(context.Background(), env.item.CompanyID, "30d")
	if err != nil {
		t.Fatalf("failed to read ratings: %v", err)
	}
	if breakdown.Total != 3 {
		t.Fatalf("expected 3 rated scans, got %d", breakdown.Total)
	}
	if len(breakdown.Counts) != 5 || breakdown.Counts[0].Stars != 5 || breakdown.Counts[4].Stars != 1 {
		t.Fatalf("expected stars ordered 5 to 1, got %v", breakdown.Counts)
	}
	if breakdown.Counts[0].Count != 2 || breakdown.Counts[2].Count != 1 {
		t.Fatalf("unexpected star counts %v", breakdown.Counts)
	}
	if breakdown.Average == nil || *breakdown.Average != 4.3 {
		t.Fatalf("expected average 4.3, got %v", breakdown.Average)
	}
}

func TestTopQuestionsGroupsNormalizedText(t *testing.T) {
	env := newAnalyticsEnv(t)

	for _, q := range []string{"Why?", "why? ", "Which screw goes here"} {
		_, err := env.svc.RecordQuestion(context.Background(), analyticsdomain.QuestionRequest{
			Code:     env.item.Code,
			Question: q,
		})
		if err != nil {
			t.Fatalf("failed to record question: %v", err)
		}
	}

	questions, err := env.svc.TopQuestions(context.Background(), env.item.CompanyID, "30d", 0)
	if err != nil {
		t.Fatalf("failed to read questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(questions))
	}
	if questions[0].Count != 2 || questions[0].Question != "Why?" {
		t.Fatalf("expected merged group first, got %+v", questions[0])
	}
	if questions[0].ItemName != env.item.Name {
		t.Fatalf("expected item name %q, got %q", env.item.Name, questions[0].ItemName)
	}
}

func TestTopQuestionsHonorsLimit(t *testing.T) {
	env := newAnalyticsEnv(t)

	for _, q := range []string{"one", "two", "three"} {
		if _, err := env.svc.RecordQuestion(context.Background(), analyticsdomain.QuestionRequest{
			Code:     env.item.Code,
			Question: q,
		}); err != nil {
			t.Fatalf("failed to record question: %v", err)
		}
	}

	questions, err := env.svc.TopQuestions(context.Background(), env.item.CompanyID, "", 2)
	if err != nil {
		t.Fatalf("failed to read questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected limit 2, got %d", len(questions))
	}
}

func TestRecordQuestionRejectsEmptyText(t *testing.T) {
	env := newAnalyticsEnv(t)

	_, err := env.svc.RecordQuestion(context.Background(), analyticsdomain.QuestionRequest{
		Code:     env.item.Code,
		Question: "   ",
	})
	if !errors.Is(err, analyticsdomain.ErrInvalidQuestion) {
		t.Fatalf("expected ErrInvalidQuestion, got %v", err)
	}
}
