package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"MindTrack/pkg/llm"
	"MindTrack/pkg/locale"
	"MindTrack/pkg/logger"
	"MindTrack/pkg/messaging"
	"MindTrack/pkg/model"
	"MindTrack/pkg/repository"
)

type analyzerFunc func(ctx context.Context, token string, req *llm.AnalysisRequest) (*llm.RawResponse, error)

func (f analyzerFunc) Analyze(ctx context.Context, token string, req *llm.AnalysisRequest) (*llm.RawResponse, error) {
	return f(ctx, token, req)
}

func respond(status int, body string) analyzerFunc {
	return func(ctx context.Context, token string, req *llm.AnalysisRequest) (*llm.RawResponse, error) {
		return &llm.RawResponse{Status: status, Body: []byte(body)}, nil
	}
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*model.LastAnalysis
	getErr  error
}

func (c *memoryCache) Get(ctx context.Context, userID string) (*model.LastAnalysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.entries[userID], nil
}

func (c *memoryCache) Set(ctx context.Context, userID string, last *model.LastAnalysis) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]*model.LastAnalysis)
	}
	c.entries[userID] = last
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

type failingInsights struct{}

var errStore = errors.New("store down")

func (failingInsights) CreateInsights(context.Context, []*model.AIInsight) error { return errStore }
func (failingInsights) ListInsights(context.Context, string, int) ([]model.AIInsight, error) {
	return nil, errStore
}
func (failingInsights) LatestInsightByType(context.Context, string, string) (*model.AIInsight, error) {
	return nil, errStore
}
func (failingInsights) MarkInsightRead(context.Context, string, string) error { return errStore }
func (failingInsights) DismissInsight(context.Context, string, string) error  { return errStore }

func successBody() string {
	return `{"analysis": ` + fullAnalysisJSON + `, "usage": {"input_tokens": 1200, "output_tokens": 800}, "generated_at": "2024-03-30T10:00:00Z"}`
}

func newService(store *repository.MemoryStore, client Analyzer) *Service {
	return NewService(Deps{
		Events:   store,
		Checkins: store,
		Insights: store,
		Client:   client,
		Logger:   logger.Discard(),
	}, Options{DefaultLocale: locale.English})
}

func makeEvents(n int) []model.HealthEvent {
	events := make([]model.HealthEvent, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		sleep := 4.0
		events = append(events, model.HealthEvent{
			UserID: "u1", EventType: "seizure", Intensity: 8, SleepHours: &sleep,
			RecentFood: []string{"coffee"}, DayOfWeek: 2, HourOfDay: 9,
			StartedAt: now.Add(-time.Duration(i+1) * time.Hour),
		})
	}
	return events
}

func seed(t *testing.T, store *repository.MemoryStore, events []model.HealthEvent) {
	t.Helper()
	for i := range events {
		if err := store.CreateEvent(context.Background(), &events[i]); err != nil {
			t.Fatalf("CreateEvent: %v", err)
		}
	}
}

func TestRunAIAnalysisInsufficientData(t *testing.T) {
	called := false
	svc := newService(repository.NewMemoryStore(), analyzerFunc(func(context.Context, string, *llm.AnalysisRequest) (*llm.RawResponse, error) {
		called = true
		return nil, nil
	}))

	_, err := svc.RunAIAnalysis(context.Background(), Caller{UserID: "u1", Locale: locale.Hebrew}, makeEvents(4), nil)
	var analysisErr *Error
	if !errors.As(err, &analysisErr) || analysisErr.Kind != KindInsufficientData {
		t.Fatalf("want insufficient data error, got %v", err)
	}
	if !strings.Contains(err.Error(), "5") || !strings.Contains(err.Error(), "4") {
		t.Errorf("message must cite required and current counts: %q", err.Error())
	}
	if analysisErr.Required != 5 || analysisErr.Current != 4 {
		t.Errorf("counts: %d/%d", analysisErr.Required, analysisErr.Current)
	}
	if called {
		t.Error("analysis service must not be called")
	}
}

func TestRunAIAnalysisApplicationErrorIn200(t *testing.T) {
	svc := newService(repository.NewMemoryStore(), respond(http.StatusOK, `{"error":"quota exceeded"}`))
	_, err := svc.RunAIAnalysis(context.Background(), Caller{UserID: "u1"}, makeEvents(6), nil)
	if err == nil || err.Error() != "quota exceeded" {
		t.Fatalf("want exactly \"quota exceeded\", got %v", err)
	}
	if KindOf(err) != KindApplication {
		t.Errorf("kind: %v", KindOf(err))
	}
}

func TestRunAIAnalysisHTTPErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		message string
	}{
		{"server message", http.StatusBadRequest, `{"error":"bad input"}`, KindApplication, "bad input"},
		{"generic fallback", http.StatusBadGateway, `{}`, KindApplication, "Server error (502)"},
		{"non-json body", http.StatusBadGateway, `<html>oops</html>`, KindMalformedResponse, "The server returned an invalid response (502). Please try again."},
		{"missing key insights", http.StatusOK, `{"analysis":{"analysis_summary":{"trend_description":"x"}}}`, KindMalformedResponse, "Invalid response from server. Please try again."},
		{"missing analysis", http.StatusOK, `{"usage":{}}`, KindMalformedResponse, "Invalid response from server. Please try again."},
	}
	for _, tc := range cases {
		svc := newService(repository.NewMemoryStore(), respond(tc.status, tc.body))
		_, err := svc.RunAIAnalysis(context.Background(), Caller{UserID: "u1", Locale: locale.English}, makeEvents(5), nil)
		if KindOf(err) != tc.kind {
			t.Errorf("%s: kind %v, want %v (err %v)", tc.name, KindOf(err), tc.kind, err)
			continue
		}
		if err.Error() != tc.message {
			t.Errorf("%s: message %q, want %q", tc.name, err.Error(), tc.message)
		}
	}
}

func TestRunAIAnalysisNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	svc := newService(repository.NewMemoryStore(), llm.NewClient(url, "anon"))
	_, err := svc.RunAIAnalysis(context.Background(), Caller{UserID: "u1", Locale: locale.English}, makeEvents(5), nil)
	if KindOf(err) != KindNetwork {
		t.Fatalf("want network error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "Network error reaching the analysis server") {
		t.Errorf("message: %q", err.Error())
	}
}

func TestRunAIAnalysisTimeout(t *testing.T) {
	blocking := analyzerFunc(func(ctx context.Context, token string, req *llm.AnalysisRequest) (*llm.RawResponse, error) {
		<-ctx.Done()
		return nil, &llm.TransportError{Err: ctx.Err()}
	})
	svc := NewService(Deps{Client: blocking, Logger: logger.Discard()}, Options{Timeout: 20 * time.Millisecond, DefaultLocale: locale.English})

	_, err := svc.RunAIAnalysis(context.Background(), Caller{UserID: "u1"}, makeEvents(5), nil)
	if KindOf(err) != KindTimeout {
		t.Fatalf("want timeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "took too long") {
		t.Errorf("message: %q", err.Error())
	}
}

func TestRunAIAnalysisBuildsRequest(t *testing.T) {
	var got *llm.AnalysisRequest
	var gotToken string
	client := analyzerFunc(func(ctx context.Context, token string, req *llm.AnalysisRequest) (*llm.RawResponse, error) {
		got, gotToken = req, token
		return &llm.RawResponse{Status: http.StatusOK, Body: []byte(successBody())}, nil
	})
	svc := newService(repository.NewMemoryStore(), client)

	checkins := []model.DailyCheckin{{CheckinDate: "2024-03-01", CheckinType: model.CheckinMorning, Mood: 3}}
	caller := Caller{UserID: "u1", AccessToken: "jwt", Locale: "he", PrimaryCondition: "epilepsy"}
	result, err := svc.RunAIAnalysis(context.Background(), caller, makeEvents(6), checkins)
	if err != nil {
		t.Fatalf("RunAIAnalysis: %v", err)
	}

	if gotToken != "jwt" {
		t.Errorf("token: %q", gotToken)
	}
	if len(got.Events) != 6 || len(got.Checkins) != 1 {
		t.Errorf("payload sizes: %d events, %d checkins", len(got.Events), len(got.Checkins))
	}
	if got.Locale != "he" || got.PrimaryCondition != "epilepsy" {
		t.Errorf("locale/condition: %s/%s", got.Locale, got.PrimaryCondition)
	}
	if len(got.Correlations) == 0 {
		t.Error("correlation hints missing from request")
	}

	if result.Usage.InputTokens != 1200 || result.Usage.OutputTokens != 800 {
		t.Errorf("usage: %+v", result.Usage)
	}
	if !result.GeneratedAt.Equal(time.Date(2024, 3, 30, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("generated_at: %v", result.GeneratedAt)
	}
	if result.Analysis.AnalysisSummary.TrendDescription != "fewer strong events" {
		t.Errorf("analysis: %+v", result.Analysis.AnalysisSummary)
	}
}

func TestRunStatesAndPersistence(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, makeEvents(7))
	publisher := &recordingPublisher{}
	svc := NewService(Deps{
		Events: store, Checkins: store, Insights: store,
		Client:    respond(http.StatusOK, successBody()),
		Publisher: publisher,
		Logger:    logger.Discard(),
	}, Options{})

	var states []State
	result, err := svc.Run(context.Background(), Caller{UserID: "u1"}, func(s State) { states = append(states, s) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	svc.Wait()

	want := []State{StateFetching, StateCorrelating, StateRequesting, StateValidating, StateSuccess}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states: %v, want %v", states, want)
	}

	last := svc.GetLastAnalysis(context.Background(), "u1")
	if last == nil {
		t.Fatal("expected saved analysis")
	}
	if !reflect.DeepEqual(last.Analysis, result.Analysis) {
		t.Errorf("round trip mismatch:\n%+v\n%+v", last.Analysis, result.Analysis)
	}

	row, err := store.LatestInsightByType(context.Background(), "u1", model.InsightTypeFullAnalysis)
	if err != nil {
		t.Fatalf("LatestInsightByType: %v", err)
	}
	if row.Category != model.CategoryFullAnalysis || row.Confidence == nil || *row.Confidence != 0.9 || row.EventsAnalyzed != 7 {
		t.Errorf("saved row: %+v", row)
	}
	if row.DataStartDate >= row.DataEndDate {
		t.Errorf("date range: %s..%s", row.DataStartDate, row.DataEndDate)
	}

	if len(publisher.subjects) != 1 || publisher.subjects[0] != messaging.SubjectAnalysisCompleted {
		t.Errorf("published: %v", publisher.subjects)
	}
}

func TestRunFailureState(t *testing.T) {
	store := repository.NewMemoryStore()
	seed(t, store, makeEvents(2))
	svc := newService(store, respond(http.StatusOK, successBody()))

	var states []State
	_, err := svc.Run(context.Background(), Caller{UserID: "u1"}, func(s State) { states = append(states, s) })
	if KindOf(err) != KindInsufficientData {
		t.Fatalf("want insufficient data, got %v", err)
	}
	want := []State{StateFetching, StateFailed}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states: %v, want %v", states, want)
	}
	if svc.GetLastAnalysis(context.Background(), "u1") != nil {
		t.Error("failed run must not persist anything")
	}
}

func TestSaveAndGetRoundTripThroughCache(t *testing.T) {
	store := repository.NewMemoryStore()
	cache := &memoryCache{}
	svc := NewService(Deps{Events: store, Checkins: store, Insights: store, Cache: cache, Logger: logger.Discard()}, Options{})

	analysis, err := DecodeAnalysis(json.RawMessage(fullAnalysisJSON), locale.English)
	if err != nil {
		t.Fatalf("DecodeAnalysis: %v", err)
	}
	svc.SaveAnalysisResult(context.Background(), "u1", analysis, 12)

	if cache.entries["u1"] == nil {
		t.Fatal("cache not written")
	}

	// 缓存读取失败时回退到数据库
	cache.getErr = errors.New("redis down")
	last := svc.GetLastAnalysis(context.Background(), "u1")
	if last == nil || !reflect.DeepEqual(last.Analysis, analysis) {
		t.Fatalf("fallback read: %+v", last)
	}
}

func TestPersistenceFailuresAreSwallowed(t *testing.T) {
	svc := NewService(Deps{Insights: failingInsights{}, Logger: logger.Discard()}, Options{})
	analysis := &model.AIAnalysisResponse{AnalysisSummary: model.AnalysisSummary{TrendDescription: "x"}}

	svc.SaveAnalysisResult(context.Background(), "u1", analysis, 5)
	if got := svc.GetLastAnalysis(context.Background(), "u1"); got != nil {
		t.Errorf("read failure must yield nil, got %+v", got)
	}
}

func TestGetLastAnalysisEmpty(t *testing.T) {
	svc := newService(repository.NewMemoryStore(), nil)
	if got := svc.GetLastAnalysis(context.Background(), "nobody"); got != nil {
		t.Errorf("want nil, got %+v", got)
	}
}

func TestFetchAnalysisDataWindow(t *testing.T) {
	store := repository.NewMemoryStore()
	now := time.Now()
	seed(t, store, []model.HealthEvent{
		{UserID: "u1", StartedAt: now.Add(-time.Hour)},
		{UserID: "u1", StartedAt: now.AddDate(0, 0, -45)},
	})
	svc := newService(store, nil)

	data, err := svc.FetchAnalysisData(context.Background(), "u1", time.UTC)
	if err != nil {
		t.Fatalf("FetchAnalysisData: %v", err)
	}
	if len(data.Events) != 1 {
		t.Errorf("events in window: %d", len(data.Events))
	}
	if data.Checkins == nil {
		t.Error("checkins must be an empty list, not nil")
	}
}

func TestFetchAnalysisDataUsesLocalCheckinDates(t *testing.T) {
	loc, err := time.LoadLocation("Pacific/Auckland")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	store := repository.NewMemoryStore()
	ctx := context.Background()
	// UTC 仍是 3 月 9 日，本地已经是 3 月 10 日
	now := time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)
	for _, date := range []string{"2024-03-10", "2024-02-08"} {
		c := &model.DailyCheckin{UserID: "u1", CheckinDate: date, CheckinType: model.CheckinMorning}
		if err := store.CreateCheckin(ctx, c); err != nil {
			t.Fatalf("CreateCheckin: %v", err)
		}
	}
	svc := newService(store, nil)
	svc.now = func() time.Time { return now }

	data, err := svc.FetchAnalysisData(ctx, "u1", loc)
	if err != nil {
		t.Fatalf("FetchAnalysisData: %v", err)
	}
	if len(data.Checkins) != 1 || data.Checkins[0].CheckinDate != "2024-03-10" {
		t.Errorf("checkins: %+v", data.Checkins)
	}

	utc, err := svc.FetchAnalysisData(ctx, "u1", time.UTC)
	if err != nil {
		t.Fatalf("FetchAnalysisData: %v", err)
	}
	if len(utc.Checkins) != 1 || utc.Checkins[0].CheckinDate != "2024-02-08" {
		t.Errorf("utc window: %+v", utc.Checkins)
	}
}
