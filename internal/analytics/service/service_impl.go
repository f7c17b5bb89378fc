package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/guidely/guidely/internal/analytics/domain"
	"github.com/guidely/guidely/internal/clock"
	itemdomain "github.com/guidely/guidely/internal/item/domain"
	obsmetrics "github.com/guidely/guidely/internal/observability/metrics"
	"github.com/guidely/guidely/pkg/db/option"
	"github.com/guidely/guidely/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTopQuestionLimit = 10

// periodDays maps the fixed period presets to a window length. Any
// other value means unbounded.
var periodDays = map[string]int{
	"7d":   7,
	"30d":  30,
	"90d":  90,
	"180d": 180,
	"365d": 365,
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	ItemSvc itemdomain.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	itemsvc itemdomain.Service
	metrics *obsmetrics.Metrics

	scans     repository.Repository[analyticsdomain.ScanEvent]
	questions repository.Repository[analyticsdomain.QuestionEvent]
	items     repository.Repository[itemdomain.Item]
}

func NewService(p ServiceParam) analyticsdomain.Service {
	return &Service{
		log:     p.Log.Named("analytics.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		itemsvc: p.ItemSvc,
		metrics: p.Metrics,

		scans:     repository.ProvideStore[analyticsdomain.ScanEvent](p.DB),
		questions: repository.ProvideStore[analyticsdomain.QuestionEvent](p.DB),
		items:     repository.ProvideStore[itemdomain.Item](p.DB),
	}
}

func (s *Service) RecordScan(ctx context.Context, req analyticsdomain.ScanRequest) (*analyticsdomain.ScanEvent, error) {
	item, err := s.itemsvc.ResolveByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	event := &analyticsdomain.ScanEvent{
		ID:         s.genID.Generate(),
		CompanyID:  item.CompanyID,
		ItemID:     item.ID,
		SessionID:  sessionOrAnonymous(req.SessionID),
		UserAgent:  req.UserAgent,
		HourOfDay:  now.Hour(),
		RecordedAt: now,
	}
	if err := s.scans.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("record scan: %w", err)
	}

	s.metrics.RecordPublicEvent(ctx, "scan")
	return event, nil
}

// RecordCompletion attaches completion data to the most recent scan row
// for the same item and session. The initiating scan and the completion
// arrive as two independent public calls, so a missing row is an
// accepted gap, not an error.
func (s *Service) RecordCompletion(ctx context.Context, req analyticsdomain.CompletionRequest) error {
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		return analyticsdomain.ErrInvalidRating
	}

	item, err := s.itemsvc.ResolveByCode(ctx, req.Code)
	if err != nil {
		return err
	}

	latest, err := s.scans.FindOne(ctx,
		&analyticsdomain.ScanEvent{ItemID: item.ID, SessionID: sessionOrAnonymous(req.SessionID)},
		option.WithOrder("recorded_at DESC"),
		option.WithLimit(1),
	)
	if err != nil {
		return fmt.Errorf("find latest scan: %w", err)
	}
	if latest == nil {
		return nil
	}

	updates := map[string]any{"completed": true}
	if req.CompletionStep != nil {
		updates["completion_step"] = *req.CompletionStep
	}
	if req.Rating != nil {
		updates["rating"] = *req.Rating
	}
	if err := s.scans.Update(ctx, latest.ID.String(), updates); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}

	s.metrics.RecordPublicEvent(ctx, "completion")
	return nil
}

func (s *Service) RecordQuestion(ctx context.Context, req analyticsdomain.QuestionRequest) (*analyticsdomain.QuestionEvent, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, analyticsdomain.ErrInvalidQuestion
	}

	item, err := s.itemsvc.ResolveByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}

	event := &analyticsdomain.QuestionEvent{
		ID:         s.genID.Generate(),
		CompanyID:  item.CompanyID,
		ItemID:     item.ID,
		SessionID:  sessionOrAnonymous(req.SessionID),
		Question:   question,
		StepNumber: req.StepNumber,
		RecordedAt: s.clock.Now(),
	}
	if err := s.questions.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("record question: %w", err)
	}

	s.metrics.RecordPublicEvent(ctx, "question")
	return event, nil
}

func (s *Service) Overview(ctx context.Context, companyID snowflake.ID, period string) (*analyticsdomain.Overview, error) {
	scans, err := s.scansInWindow(ctx, companyID, period)
	if err != nil {
		return nil, err
	}

	out := &analyticsdomain.Overview{TotalScans: int64(len(scans))}

	var ratingSum, ratingCount int64
	sessions := map[string]int64{}
	for _, ev := range scans {
		if ev.Completed {
			out.CompletedScans++
		}
		if ev.Rating != nil {
			ratingSum += int64(*ev.Rating)
			ratingCount++
		}
		sessions[ev.SessionID]++
	}

	if out.TotalScans > 0 {
		out.CompletionRate = round1(float64(out.CompletedScans) / float64(out.TotalScans) * 100)
	}
	if ratingCount > 0 {
		avg := round1(float64(ratingSum) / float64(ratingCount))
		out.AverageRating = &avg
	}
	if len(sessions) > 0 {
		var repeat int64
		for _, n := range sessions {
			if n > 1 {
				repeat++
			}
		}
		out.RepeatRate = round1(float64(repeat) / float64(len(sessions)) * 100)
	}

	live, err := s.items.Count(ctx, &itemdomain.Item{CompanyID: companyID, Status: itemdomain.StatusLive})
	if err != nil {
		return nil, fmt.Errorf("count live items: %w", err)
	}
	out.LiveItems = live

	return out, nil
}

// TimeSeries buckets scan counts by day, Sunday-aligned week, or month
// depending on the window length, sorted ascending by bucket key.
func (s *Service) TimeSeries(ctx context.Context, companyID snowflake.ID, period string) (*analyticsdomain.TimeSeries, error) {
	scans, err := s.scansInWindow(ctx, companyID, period)
	if err != nil {
		return nil, err
	}

	granularity := granularityFor(period)
	counts := map[string]int64{}
	for _, ev := range scans {
		counts[bucketKey(ev.RecordedAt, granularity)]++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	series := &analyticsdomain.TimeSeries{
		Granularity: granularity,
		Points:      make([]analyticsdomain.SeriesPoint, 0, len(keys)),
	}
	for _, k := range keys {
		series.Points = append(series.Points, analyticsdomain.SeriesPoint{Bucket: k, Count: counts[k]})
	}
	return series, nil
}

var hourBucketLabels = []string{"6-9", "9-12", "12-15", "15-18", "18-21", "21+"}

func (s *Service) TimeOfDay(ctx context.Context, companyID snowflake.ID, period string) ([]analyticsdomain.HourBucket, error) {
	scans, err := s.scansInWindow(ctx, companyID, period)
	if err != nil {
		return nil, err
	}

	counts := make([]int64, len(hourBucketLabels))
	for _, ev := range scans {
		counts[hourBucketIndex(ev.HourOfDay)]++
	}

	total := int64(len(scans))
	out := make([]analyticsdomain.HourBucket, len(hourBucketLabels))
	for i, label := range hourBucketLabels {
		b := analyticsdomain.HourBucket{Label: label, Count: counts[i]}
		if total > 0 {
			b.Percent = round1(float64(counts[i]) / float64(total) * 100)
		}
		out[i] = b
	}
	return out, nil
}

func (s *Service) Ratings(ctx context.Context, companyID snowflake.ID, period string) (*analyticsdomain.RatingBreakdown, error) {
	scans, err := s.scansInWindow(ctx, companyID, period)
	if err != nil {
		return nil, err
	}

	byStars := map[int]int64{}
	var sum, total int64
	for _, ev := range scans {
		if ev.Rating == nil {
			continue
		}
		byStars[*ev.Rating]++
		sum += int64(*ev.Rating)
		total++
	}

	out := &analyticsdomain.RatingBreakdown{Total: total}
	for stars := 5; stars >= 1; stars-- {
		out.Counts = append(out.Counts, analyticsdomain.RatingCount{Stars: stars, Count: byStars[stars]})
	}
	if total > 0 {
		avg := round1(float64(sum) / float64(total))
		out.Average = &avg
	}
	return out, nil
}

// TopQuestions groups questions by lowercased, trimmed text and returns
// the most frequent groups with one representative original per group.
func (s *Service) TopQuestions(ctx context.Context, companyID snowflake.ID, period string, limit int) ([]analyticsdomain.TopQuestion, error) {
	if limit <= 0 {
		limit = defaultTopQuestionLimit
	}

	opts := []option.QueryOption{option.WithOrder("recorded_at ASC")}
	if start, ok := windowStart(s.clock.Now(), period); ok {
		opts = append(opts, option.WithCondition("recorded_at >= ?", start))
	}
	events, err := s.questions.Find(ctx, &analyticsdomain.QuestionEvent{CompanyID: companyID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	itemNames, err := s.itemNames(ctx, companyID)
	if err != nil {
		return nil, err
	}

	groups := map[string]*analyticsdomain.TopQuestion{}
	order := []string{}
	for _, ev := range events {
		key := strings.ToLower(strings.TrimSpace(ev.Question))
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &analyticsdomain.TopQuestion{
				Question:   strings.TrimSpace(ev.Question),
				StepNumber: ev.StepNumber,
				ItemID:     ev.ItemID,
				ItemName:   itemNames[ev.ItemID],
			}
			groups[key] = g
			order = append(order, key)
		}
		g.Count++
	}

	out := make([]analyticsdomain.TopQuestion, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) scansInWindow(ctx context.Context, companyID snowflake.ID, period string) ([]*analyticsdomain.ScanEvent, error) {
	opts := []option.QueryOption{option.WithOrder("recorded_at ASC")}
	if start, ok := windowStart(s.clock.Now(), period); ok {
		opts = append(opts, option.WithCondition("recorded_at >= ?", start))
	}
	scans, err := s.scans.Find(ctx, &analyticsdomain.ScanEvent{CompanyID: companyID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	return scans, nil
}

func (s *Service) itemNames(ctx context.Context, companyID snowflake.ID) (map[snowflake.ID]string, error) {
	items, err := s.items.Find(ctx, &itemdomain.Item{CompanyID: companyID})
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	names := make(map[snowflake.ID]string, len(items))
	for _, it := range items {
		names[it.ID] = it.Name
	}
	return names, nil
}

// windowStart reports the window lower bound for a period preset.
// Unrecognized periods are unbounded.
func windowStart(now time.Time, period string) (time.Time, bool) {
	days, ok := periodDays[period]
	if !ok {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -days), true
}

func granularityFor(period string) string {
	switch days := periodDays[period]; {
	case days == 0:
		return "month"
	case days <= 30:
		return "day"
	case days <= 180:
		return "week"
	default:
		return "month"
	}
}

func bucketKey(t time.Time, granularity string) string {
	t = t.UTC()
	switch granularity {
	case "day":
		return t.Format("2006-01-02")
	case "week":
		// Week buckets are keyed by their Sunday start.
		sunday := t.AddDate(0, 0, -int(t.Weekday()))
		return sunday.Format("2006-01-02")
	default:
		return t.Format("2006-01")
	}
}

func hourBucketIndex(hour int) int {
	switch {
	case hour >= 6 && hour < 9:
		return 0
	case hour >= 9 && hour < 12:
		return 1
	case hour >= 12 && hour < 15:
		return 2
	case hour >= 15 && hour < 18:
		return 3
	case hour >= 18 && hour < 21:
		return 4
	default:
		return 5
	}
}

func sessionOrAnonymous(sessionID string) string {
	if strings.TrimSpace(sessionID) == "" {
		return analyticsdomain.AnonymousSession
	}
	return sessionID
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
