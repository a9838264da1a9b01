package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"MindTrack/pkg/model"
)

// MemoryStore 内存存储，用于开发环境与测试
type MemoryStore struct {
	events   map[string]*model.HealthEvent
	checkins map[string]*model.DailyCheckin
	insights map[string]*model.AIInsight
	users    map[string]*model.User
	mutex    sync.RWMutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string]*model.HealthEvent),
		checkins: make(map[string]*model.DailyCheckin),
		insights: make(map[string]*model.AIInsight),
		users:    make(map[string]*model.User),
	}
}

// CreateEvent 保存事件
func (r *MemoryStore) CreateEvent(ctx context.Context, event *model.HealthEvent) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	now := time.Now()
	event.CreatedAt, event.UpdatedAt = now, now

	stored := *event
	r.events[event.ID] = &stored
	return nil
}

// ListEvents 获取最近的事件
func (r *MemoryStore) ListEvents(ctx context.Context, userID string, limit int) ([]model.HealthEvent, error) {
	events := r.filterEvents(func(e *model.HealthEvent) bool { return e.UserID == userID })
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// ListEventsByRange 获取时间范围内的事件
func (r *MemoryStore) ListEventsByRange(ctx context.Context, userID string, from, to time.Time) ([]model.HealthEvent, error) {
	return r.filterEvents(func(e *model.HealthEvent) bool {
		return e.UserID == userID && !e.StartedAt.Before(from) && !e.StartedAt.After(to)
	}), nil
}

// CountEventsSince 统计事件数量
func (r *MemoryStore) CountEventsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	events := r.filterEvents(func(e *model.HealthEvent) bool {
		return e.UserID == userID && !e.StartedAt.Before(since)
	})
	return int64(len(events)), nil
}

// DeleteEvent 删除事件
func (r *MemoryStore) DeleteEvent(ctx context.Context, userID, eventID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	event, exists := r.events[eventID]
	if !exists || event.UserID != userID {
		return ErrNotFound
	}
	delete(r.events, eventID)
	return nil
}

// ActiveUsersSince 获取近期有事件的用户
func (r *MemoryStore) ActiveUsersSince(ctx context.Context, since time.Time) ([]string, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	seen := make(map[string]bool)
	var users []string
	for _, e := range r.events {
		if !e.StartedAt.Before(since) && !seen[e.UserID] {
			seen[e.UserID] = true
			users = append(users, e.UserID)
		}
	}
	sort.Strings(users)
	return users, nil
}

func (r *MemoryStore) filterEvents(keep func(*model.HealthEvent) bool) []model.HealthEvent {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]model.HealthEvent, 0)
	for _, e := range r.events {
		if keep(e) {
			result = append(result, *e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result
}

// CreateCheckin 保存签到
func (r *MemoryStore) CreateCheckin(ctx context.Context, checkin *model.DailyCheckin) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, c := range r.checkins {
		if c.UserID == checkin.UserID && c.CheckinDate == checkin.CheckinDate && c.CheckinType == checkin.CheckinType {
			return ErrDuplicate
		}
	}
	if checkin.ID == "" {
		checkin.ID = uuid.New().String()
	}
	checkin.CreatedAt = time.Now()

	stored := *checkin
	r.checkins[checkin.ID] = &stored
	return nil
}

// CheckinsOn 获取某天的签到
func (r *MemoryStore) CheckinsOn(ctx context.Context, userID, date string) ([]model.DailyCheckin, error) {
	return r.ListCheckinsByRange(ctx, userID, date, date)
}

// ListCheckinsByRange 获取日期范围内的签到
func (r *MemoryStore) ListCheckinsByRange(ctx context.Context, userID, fromDate, toDate string) ([]model.DailyCheckin, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]model.DailyCheckin, 0)
	for _, c := range r.checkins {
		if c.UserID == userID && c.CheckinDate >= fromDate && c.CheckinDate <= toDate {
			result = append(result, *c)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CheckinDate != result[j].CheckinDate {
			return result[i].CheckinDate > result[j].CheckinDate
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// CreateInsights 批量保存洞察
func (r *MemoryStore) CreateInsights(ctx context.Context, insights []*model.AIInsight) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, insight := range insights {
		if insight.ID == "" {
			insight.ID = uuid.New().String()
		}
		if insight.GeneratedAt.IsZero() {
			insight.GeneratedAt = time.Now()
		}
		stored := *insight
		r.insights[insight.ID] = &stored
	}
	return nil
}

// ListInsights 获取未忽略的洞察
func (r *MemoryStore) ListInsights(ctx context.Context, userID string, limit int) ([]model.AIInsight, error) {
	return r.filterInsights(func(i *model.AIInsight) bool {
		return i.UserID == userID && !i.IsDismissed
	}, limit), nil
}

// LatestInsightByType 获取指定类型最新的洞察
func (r *MemoryStore) LatestInsightByType(ctx context.Context, userID, insightType string) (*model.AIInsight, error) {
	result := r.filterInsights(func(i *model.AIInsight) bool {
		return i.UserID == userID && i.InsightType == insightType
	}, 1)
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return &result[0], nil
}

// MarkInsightRead 标记已读
func (r *MemoryStore) MarkInsightRead(ctx context.Context, userID, insightID string) error {
	return r.updateInsight(userID, insightID, func(i *model.AIInsight) { i.IsRead = true })
}

// DismissInsight 忽略洞察
func (r *MemoryStore) DismissInsight(ctx context.Context, userID, insightID string) error {
	return r.updateInsight(userID, insightID, func(i *model.AIInsight) { i.IsDismissed = true })
}

func (r *MemoryStore) updateInsight(userID, insightID string, mutate func(*model.AIInsight)) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	insight, exists := r.insights[insightID]
	if !exists || insight.UserID != userID {
		return ErrNotFound
	}
	mutate(insight)
	return nil
}

func (r *MemoryStore) filterInsights(keep func(*model.AIInsight) bool, limit int) []model.AIInsight {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make([]model.AIInsight, 0)
	for _, i := range r.insights {
		if keep(i) {
			result = append(result, *i)
		}
	}
	sort.SliceStable(result, func(a, b int) bool {
		return result[a].GeneratedAt.After(result[b].GeneratedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// CreateUser 创建用户，邮箱重复时返回 ErrDuplicate
func (r *MemoryStore) CreateUser(ctx context.Context, user *model.User) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	now := time.Now()
	user.CreatedAt, user.UpdatedAt = now, now

	stored := *user
	r.users[user.ID] = &stored
	return nil
}

// GetUserByID 按 ID 获取用户
func (r *MemoryStore) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	user, exists := r.users[userID]
	if !exists {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// GetUserByEmail 按邮箱获取用户
func (r *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateProfile 更新用户资料
func (r *MemoryStore) UpdateProfile(ctx context.Context, userID string, updates map[string]interface{}) error {
	return r.updateUser(userID, func(u *model.User) {
		for column, value := range updates {
			switch column {
			case "display_name":
				u.DisplayName = value.(string)
			case "primary_condition":
				u.PrimaryCondition = value.(string)
			case "timezone":
				u.Timezone = value.(string)
			case "locale":
				u.Locale = value.(string)
			case "notifications_enabled":
				u.NotificationsEnabled = value.(bool)
			case "onboarding_completed":
				u.OnboardingCompleted = value.(bool)
			}
		}
	})
}

// UpdatePassword 更新密码哈希
func (r *MemoryStore) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return r.updateUser(userID, func(u *model.User) { u.PasswordHash = passwordHash })
}

// UpdateLastLogin 更新最后登录时间
func (r *MemoryStore) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return r.updateUser(userID, func(u *model.User) { u.LastLoginAt = &at })
}

func (r *MemoryStore) updateUser(userID string, mutate func(*model.User)) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	user, exists := r.users[userID]
	if !exists {
		return ErrNotFound
	}
	mutate(user)
	user.UpdatedAt = time.Now()
	return nil
}

// DeleteUserData 删除用户的全部健康数据
func (r *MemoryStore) DeleteUserData(ctx context.Context, userID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for id, e := range r.events {
		if e.UserID == userID {
			delete(r.events, id)
		}
	}
	for id, c := range r.checkins {
		if c.UserID == userID {
			delete(r.checkins, id)
		}
	}
	for id, i := range r.insights {
		if i.UserID == userID {
			delete(r.insights, id)
		}
	}
	return nil
}
