package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"MindTrack/pkg/config"
	"MindTrack/pkg/correlation"
	"MindTrack/pkg/llm"
	"MindTrack/pkg/locale"
	"MindTrack/pkg/logger"
	"MindTrack/pkg/messaging"
	"MindTrack/pkg/model"
	"MindTrack/pkg/repository"
)

// fullAnalysisConfidence 完整分析行的固定置信度
const fullAnalysisConfidence = 0.9

// State 单次分析的执行阶段
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching-data"
	StateCorrelating State = "correlating"
	StateRequesting  State = "requesting"
	StateValidating  State = "validating"
	StateSuccess     State = "success"
	StateFailed      State = "failed"
)

// Observer 接收状态变化
type Observer func(State)

// Analyzer 外部分析服务
type Analyzer interface {
	Analyze(ctx context.Context, token string, request *llm.AnalysisRequest) (*llm.RawResponse, error)
}

// Cache 最近一次分析的缓存
type Cache interface {
	Get(ctx context.Context, userID string) (*model.LastAnalysis, error)
	Set(ctx context.Context, userID string, last *model.LastAnalysis) error
}

// Caller 发起分析的用户会话
type Caller struct {
	UserID           string
	AccessToken      string
	Locale           string
	PrimaryCondition string
	// Location 用户时区，决定签到日期窗口；为空时使用默认时区
	Location *time.Location
}

// Data 分析窗口内的数据
type Data struct {
	Events   []model.HealthEvent  `json:"events"`
	Checkins []model.DailyCheckin `json:"checkins"`
}

// Result 一次成功的分析
type Result struct {
	Analysis    *model.AIAnalysisResponse `json:"analysis"`
	Usage       model.TokenUsage          `json:"usage"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// Options 分析参数
type Options struct {
	Timeout       time.Duration
	SaveTimeout   time.Duration
	WindowDays    int
	MinEvents     int
	DefaultLocale string
}

// OptionsFromConfig 从配置构建分析参数
func OptionsFromConfig(cfg config.AnalysisConfig) Options {
	return Options{
		Timeout:       cfg.Timeout,
		SaveTimeout:   cfg.SaveTimeout,
		WindowDays:    cfg.WindowDays,
		MinEvents:     cfg.MinEvents,
		DefaultLocale: cfg.DefaultLocale,
	}
}

// Deps 分析服务依赖，Cache 与 Publisher 可为空
type Deps struct {
	Events    repository.EventStore
	Checkins  repository.CheckinStore
	Insights  repository.InsightStore
	Client    Analyzer
	Cache     Cache
	Publisher messaging.Publisher
	Logger    *log.Logger
}

// Service AI 分析编排
type Service struct {
	events    repository.EventStore
	checkins  repository.CheckinStore
	insights  repository.InsightStore
	client    Analyzer
	cache     Cache
	publisher messaging.Publisher
	opts      Options
	logger    *log.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

// NewService 创建分析服务
func NewService(deps Deps, opts Options) *Service {
	def := OptionsFromConfig(config.Default().Analysis)
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = def.SaveTimeout
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = def.WindowDays
	}
	if opts.MinEvents <= 0 {
		opts.MinEvents = def.MinEvents
	}
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = def.DefaultLocale
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}

	return &Service{
		events:    deps.Events,
		checkins:  deps.Checkins,
		insights:  deps.Insights,
		client:    deps.Client,
		cache:     deps.Cache,
		publisher: publisher,
		opts:      opts,
		logger:    logger.Or(deps.Logger),
		now:       time.Now,
	}
}

// FetchAnalysisData 读取窗口期内的事件与签到，无数据时返回空列表。
// 签到日期是用户本地日期，窗口边界按 loc 换算。
func (s *Service) FetchAnalysisData(ctx context.Context, userID string, loc *time.Location) (*Data, error) {
	if loc == nil {
		loc = (&model.User{}).Location()
	}
	now := s.now()
	from := now.AddDate(0, 0, -s.opts.WindowDays)

	events, err := s.events.ListEventsByRange(ctx, userID, from, now)
	if err != nil {
		return nil, fmt.Errorf("读取事件失败: %w", err)
	}
	checkins, err := s.checkins.ListCheckinsByRange(ctx, userID,
		from.In(loc).Format(model.DateLayout), now.In(loc).Format(model.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("读取签到失败: %w", err)
	}

	if events == nil {
		events = []model.HealthEvent{}
	}
	if checkins == nil {
		checkins = []model.DailyCheckin{}
	}
	return &Data{Events: events, Checkins: checkins}, nil
}

// Run 执行完整流程：读取数据、相关性预分析、请求、校验，成功后在后台保存结果
func (s *Service) Run(ctx context.Context, caller Caller, observe Observer) (*Result, error) {
	notify := func(st State) {
		if observe != nil {
			observe(st)
		}
	}

	notify(StateFetching)
	data, err := s.FetchAnalysisData(ctx, caller.UserID, caller.Location)
	if err != nil {
		notify(StateFailed)
		return nil, err
	}

	result, err := s.analyze(ctx, caller, data.Events, data.Checkins, notify)
	if err != nil {
		notify(StateFailed)
		s.logger.Warn("AI分析失败", "user_id", caller.UserID, "kind", KindOf(err), "err", err)
		return nil, err
	}
	notify(StateSuccess)

	s.persistAsync(caller.UserID, result, len(data.Events))
	return result, nil
}

// RunAIAnalysis 对给定数据执行分析，不保存结果
func (s *Service) RunAIAnalysis(ctx context.Context, caller Caller, events []model.HealthEvent, checkins []model.DailyCheckin) (*Result, error) {
	return s.analyze(ctx, caller, events, checkins, func(State) {})
}

func (s *Service) analyze(ctx context.Context, caller Caller, events []model.HealthEvent, checkins []model.DailyCheckin, notify func(State)) (*Result, error) {
	lang := s.lang(caller.Locale)

	if len(events) < s.opts.MinEvents {
		return nil, &Error{
			Kind:     KindInsufficientData,
			Message:  locale.T(lang, locale.InsufficientData, locale.Args{"Required": s.opts.MinEvents, "Current": len(events)}),
			Required: s.opts.MinEvents,
			Current:  len(events),
		}
	}

	notify(StateCorrelating)
	request := &llm.AnalysisRequest{
		Events:           llm.NewEventSamples(events),
		Checkins:         llm.NewCheckinSamples(checkins),
		Correlations:     correlation.Analyze(events, correlation.AnalysisVariant),
		Locale:           lang,
		PrimaryCondition: caller.PrimaryCondition,
	}

	notify(StateRequesting)
	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	resp, err := s.client.Analyze(callCtx, caller.AccessToken, request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Message: locale.T(lang, locale.Timeout), Err: err}
		}
		detail := err.Error()
		var transportErr *llm.TransportError
		if errors.As(err, &transportErr) {
			detail = transportErr.Err.Error()
		}
		return nil, &Error{Kind: KindNetwork, Message: locale.T(lang, locale.NetworkError, locale.Args{"Detail": detail}), Err: err}
	}

	notify(StateValidating)
	return s.decodeResponse(resp, lang)
}

// decodeResponse 区分非 JSON 响应、服务端错误与结构不合法的结果
func (s *Service) decodeResponse(resp *llm.RawResponse, lang string) (*Result, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(resp.Body, &fields); err != nil {
		return nil, &Error{
			Kind:    KindMalformedResponse,
			Message: locale.T(lang, locale.InvalidBody, locale.Args{"Status": resp.Status}),
			Status:  resp.Status,
			Err:     err,
		}
	}

	serverMsg, hasError := errorField(fields["error"])
	if !resp.OK() || hasError {
		if serverMsg == "" {
			serverMsg = locale.T(lang, locale.ServerError, locale.Args{"Status": resp.Status})
		}
		return nil, &Error{Kind: KindApplication, Message: serverMsg, Status: resp.Status}
	}

	analysis, err := DecodeAnalysis(fields["analysis"], lang)
	if err != nil {
		return nil, &Error{
			Kind:    KindMalformedResponse,
			Message: locale.T(lang, locale.InvalidResponse),
			Status:  resp.Status,
			Err:     err,
		}
	}

	result := &Result{Analysis: analysis, GeneratedAt: s.now().UTC()}
	if raw, ok := fields["usage"]; ok {
		_ = json.Unmarshal(raw, &result.Usage)
	}
	if raw, ok := fields["generated_at"]; ok {
		var generatedAt time.Time
		if json.Unmarshal(raw, &generatedAt) == nil && !generatedAt.IsZero() {
			result.GeneratedAt = generatedAt
		}
	}
	return result, nil
}

// errorField 解析 error 字段，空字符串、null 与 false 视为没有错误
func errorField(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var msg string
	if json.Unmarshal(raw, &msg) == nil {
		return msg, msg != ""
	}
	switch strings.TrimSpace(string(raw)) {
	case "null", "false", "0":
		return "", false
	}
	return "", true
}

// SaveAnalysisResult 保存完整分析。失败只记录日志
func (s *Service) SaveAnalysisResult(ctx context.Context, userID string, analysis *model.AIAnalysisResponse, eventsAnalyzed int) {
	now := s.now().UTC()
	raw, err := json.Marshal(analysis)
	if err != nil {
		s.logger.Error("序列化分析结果失败", "user_id", userID, "err", err)
		return
	}

	text := analysis.AnalysisSummary.TrendDescription
	if text == "" {
		text = locale.T(s.opts.DefaultLocale, locale.FullAnalysis)
	}
	confidence := fullAnalysisConfidence
	insight := &model.AIInsight{
		UserID:         userID,
		InsightText:    text,
		InsightType:    model.InsightTypeFullAnalysis,
		Category:       model.CategoryFullAnalysis,
		Confidence:     &confidence,
		DataStartDate:  now.AddDate(0, 0, -s.opts.WindowDays).Format(model.DateLayout),
		DataEndDate:    now.Format(model.DateLayout),
		EventsAnalyzed: eventsAnalyzed,
		GeneratedAt:    now,
		RawAnalysis:    raw,
	}
	if err := s.insights.CreateInsights(ctx, []*model.AIInsight{insight}); err != nil {
		s.logger.Error("保存分析结果失败", "user_id", userID, "err", err)
		return
	}

	s.cacheSet(ctx, userID, &model.LastAnalysis{Analysis: analysis, GeneratedAt: now})
}

// GetLastAnalysis 返回最近一次保存的完整分析，不存在或读取失败时返回 nil
func (s *Service) GetLastAnalysis(ctx context.Context, userID string) *model.LastAnalysis {
	if s.cache != nil {
		last, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("读取分析缓存失败", "user_id", userID, "err", err)
		} else if last != nil && last.Analysis != nil {
			return last
		}
	}

	row, err := s.insights.LatestInsightByType(ctx, userID, model.InsightTypeFullAnalysis)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("读取最近分析失败", "user_id", userID, "err", err)
		}
		return nil
	}
	if len(row.RawAnalysis) == 0 {
		return nil
	}

	var analysis model.AIAnalysisResponse
	if err := json.Unmarshal(row.RawAnalysis, &analysis); err != nil {
		s.logger.Warn("解析已保存的分析失败", "user_id", userID, "insight_id", row.ID, "err", err)
		return nil
	}

	last := &model.LastAnalysis{Analysis: &analysis, GeneratedAt: row.GeneratedAt}
	s.cacheSet(ctx, userID, last)
	return last
}

// Wait 等待后台保存完成
func (s *Service) Wait() {
	s.wg.Wait()
}

// persistAsync 后台保存结果、写缓存并发布完成消息，不影响本次分析的成功
func (s *Service) persistAsync(userID string, result *Result, eventsAnalyzed int) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
		defer cancel()

		s.SaveAnalysisResult(ctx, userID, result.Analysis, eventsAnalyzed)

		err := s.publisher.Publish(messaging.SubjectAnalysisCompleted, messaging.AnalysisCompleted{
			UserID:         userID,
			EventsAnalyzed: eventsAnalyzed,
			Trend:          result.Analysis.AnalysisSummary.Trend,
			InputTokens:    result.Usage.InputTokens,
			OutputTokens:   result.Usage.OutputTokens,
			GeneratedAt:    result.GeneratedAt,
		})
		if err != nil {
			s.logger.Warn("发布分析完成消息失败", "user_id", userID, "err", err)
		}
		s.logger.Info("分析完成", "user_id", userID, "events", eventsAnalyzed,
			"input_tokens", result.Usage.InputTokens, "output_tokens", result.Usage.OutputTokens)
	}()
}

func (s *Service) cacheSet(ctx context.Context, userID string, last *model.LastAnalysis) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, userID, last); err != nil {
		s.logger.Warn("写入分析缓存失败", "user_id", userID, "err", err)
	}
}

func (s *Service) lang(requested string) string {
	if requested == "" {
		requested = s.opts.DefaultLocale
	}
	return locale.Normalize(requested)
}
