package repository

import (
	"context"
	"errors"
	"time"

	"MindTrack/pkg/model"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("记录不存在")
	// ErrDuplicate 违反唯一约束
	ErrDuplicate = errors.New("记录已存在")
)

// EventStore 症状事件存储
type EventStore interface {
	CreateEvent(ctx context.Context, event *model.HealthEvent) error
	// ListEvents 按开始时间倒序返回最近的事件
	ListEvents(ctx context.Context, userID string, limit int) ([]model.HealthEvent, error)
	// ListEventsByRange 返回 [from, to] 内的事件，按开始时间倒序
	ListEventsByRange(ctx context.Context, userID string, from, to time.Time) ([]model.HealthEvent, error)
	CountEventsSince(ctx context.Context, userID string, since time.Time) (int64, error)
	DeleteEvent(ctx context.Context, userID, eventID string) error
	// ActiveUsersSince 返回 since 之后有事件的用户
	ActiveUsersSince(ctx context.Context, since time.Time) ([]string, error)
}

// CheckinStore 每日签到存储，同一用户同一天同一类型只能有一条
type CheckinStore interface {
	CreateCheckin(ctx context.Context, checkin *model.DailyCheckin) error
	CheckinsOn(ctx context.Context, userID, date string) ([]model.DailyCheckin, error)
	// ListCheckinsByRange 日期格式 2006-01-02，闭区间，按日期倒序
	ListCheckinsByRange(ctx context.Context, userID, fromDate, toDate string) ([]model.DailyCheckin, error)
}

// InsightStore 洞察存储
type InsightStore interface {
	CreateInsights(ctx context.Context, insights []*model.AIInsight) error
	// ListInsights 返回未忽略的洞察，按生成时间倒序
	ListInsights(ctx context.Context, userID string, limit int) ([]model.AIInsight, error)
	LatestInsightByType(ctx context.Context, userID, insightType string) (*model.AIInsight, error)
	MarkInsightRead(ctx context.Context, userID, insightID string) error
	DismissInsight(ctx context.Context, userID, insightID string) error
}

// UserStore 用户账户存储
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, userID string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, userID string, updates map[string]interface{}) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// Store 全部存储能力
type Store interface {
	EventStore
	CheckinStore
	InsightStore
	UserStore
	// DeleteUserData 删除用户的事件、签到与洞察
	DeleteUserData(ctx context.Context, userID string) error
}
