package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"MindTrack/pkg/correlation"
	"MindTrack/pkg/locale"
	"MindTrack/pkg/logger"
	"MindTrack/pkg/messaging"
	"MindTrack/pkg/model"
	"MindTrack/pkg/repository"
)

const (
	// DefaultLimit 洞察列表默认条数
	DefaultLimit = 20
	// WindowDays 本地分析的时间窗口
	WindowDays = 30
)

// Invalidator 删除用户缓存
type Invalidator interface {
	Delete(ctx context.Context, userID string) error
}

// Deps 洞察服务依赖，Users、Cache 与 Publisher 可为空
type Deps struct {
	Store         repository.Store
	Users         repository.UserStore
	Cache         Invalidator
	Publisher     messaging.Publisher
	Logger        *log.Logger
	DefaultLocale string
}

// Service 本地洞察生成与状态管理
type Service struct {
	store         repository.Store
	users         repository.UserStore
	cache         Invalidator
	publisher     messaging.Publisher
	logger        *log.Logger
	defaultLocale string
	now           func() time.Time
}

// NewService 创建洞察服务
func NewService(deps Deps) *Service {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	users := deps.Users
	if users == nil {
		users = deps.Store
	}
	return &Service{
		store:         deps.Store,
		users:         users,
		cache:         deps.Cache,
		publisher:     publisher,
		logger:        logger.Or(deps.Logger),
		defaultLocale: locale.Normalize(deps.DefaultLocale),
		now:           time.Now,
	}
}

// Generate 对最近 30 天的事件运行相关性分析，每条发现保存为一条洞察。
// 事件不足时不生成，直接返回当前列表。
func (s *Service) Generate(ctx context.Context, userID string) ([]model.AIInsight, error) {
	now := s.now()
	from := now.AddDate(0, 0, -WindowDays)

	events, err := s.store.ListEventsByRange(ctx, userID, from, now)
	if err != nil {
		return nil, fmt.Errorf("读取事件失败: %w", err)
	}
	if len(events) < correlation.MinEvents {
		return s.List(ctx, userID, DefaultLimit)
	}

	findings := correlation.Analyze(events, correlation.InsightsVariant)
	if len(findings) > 0 {
		lang := s.userLocale(ctx, userID)
		rows := make([]*model.AIInsight, 0, len(findings))
		for _, c := range findings {
			rows = append(rows, s.newInsight(userID, lang, c, from, now, len(events)))
		}
		if err := s.store.CreateInsights(ctx, rows); err != nil {
			return nil, fmt.Errorf("保存洞察失败: %w", err)
		}

		err := s.publisher.Publish(messaging.SubjectInsightsGenerated, messaging.InsightsGenerated{
			UserID:         userID,
			Count:          len(rows),
			EventsAnalyzed: len(events),
			GeneratedAt:    now.UTC(),
		})
		if err != nil {
			s.logger.Warn("发布洞察消息失败", "user_id", userID, "err", err)
		}
		s.logger.Info("洞察已生成", "user_id", userID, "count", len(rows), "events", len(events))
	}

	return s.List(ctx, userID, DefaultLimit)
}

func (s *Service) newInsight(userID, lang string, c model.Correlation, from, to time.Time, eventsAnalyzed int) *model.AIInsight {
	confidence := c.Confidence
	raw, _ := json.Marshal(c)
	return &model.AIInsight{
		UserID:         userID,
		InsightText:    locale.Describe(lang, c),
		InsightType:    c.Type,
		Category:       c.Category,
		Confidence:     &confidence,
		DataStartDate:  from.UTC().Format(model.DateLayout),
		DataEndDate:    to.UTC().Format(model.DateLayout),
		EventsAnalyzed: eventsAnalyzed,
		GeneratedAt:    to.UTC(),
		RawAnalysis:    raw,
	}
}

// GenerateIfReady 窗口内事件达到阈值时才重新生成，返回是否生成
func (s *Service) GenerateIfReady(ctx context.Context, userID string) (bool, error) {
	count, err := s.store.CountEventsSince(ctx, userID, s.now().AddDate(0, 0, -WindowDays))
	if err != nil {
		return false, fmt.Errorf("统计事件失败: %w", err)
	}
	if count < correlation.MinEvents {
		return false, nil
	}
	if _, err := s.Generate(ctx, userID); err != nil {
		return false, err
	}
	return true, nil
}

// RefreshActive 为最近 activeDays 天内有事件的用户重新生成洞察，返回生成的用户数
func (s *Service) RefreshActive(ctx context.Context, activeDays int) (int, error) {
	users, err := s.store.ActiveUsersSince(ctx, s.now().AddDate(0, 0, -activeDays))
	if err != nil {
		return 0, fmt.Errorf("查询活跃用户失败: %w", err)
	}

	refreshed := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		ok, err := s.GenerateIfReady(ctx, userID)
		if err != nil {
			s.logger.Error("重新生成洞察失败", "user_id", userID, "err", err)
			continue
		}
		if ok {
			refreshed++
		}
	}
	return refreshed, nil
}

// List 未忽略的洞察，按生成时间倒序
func (s *Service) List(ctx context.Context, userID string, limit int) ([]model.AIInsight, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	insights, err := s.store.ListInsights(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("读取洞察失败: %w", err)
	}
	if insights == nil {
		insights = []model.AIInsight{}
	}
	return insights, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, insightID string) error {
	return s.store.MarkInsightRead(ctx, userID, insightID)
}

func (s *Service) Dismiss(ctx context.Context, userID, insightID string) error {
	return s.store.DismissInsight(ctx, userID, insightID)
}

// DeleteAllData 删除用户的全部事件、签到与洞察，并清除分析缓存
func (s *Service) DeleteAllData(ctx context.Context, userID string) error {
	if err := s.store.DeleteUserData(ctx, userID); err != nil {
		return fmt.Errorf("删除用户数据失败: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, userID); err != nil {
			s.logger.Warn("清除分析缓存失败", "user_id", userID, "err", err)
		}
	}
	s.logger.Info("用户数据已删除", "user_id", userID)
	return nil
}

func (s *Service) userLocale(ctx context.Context, userID string) string {
	if s.users == nil {
		return s.defaultLocale
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil || user.Locale == "" {
		return s.defaultLocale
	}
	return locale.Normalize(user.Locale)
}
