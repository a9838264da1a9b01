// pkg/database/event.go
package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"MindTrack/pkg/model"
)

type EventDB struct {
	db *gorm.DB
}

func (e *EventDB) CreateEvent(ctx context.Context, event *model.HealthEvent) error {
	event.StartedAt = event.StartedAt.UTC()
	return translate(e.db.WithContext(ctx).Create(event).Error, "保存事件失败")
}

func (e *EventDB) ListEvents(ctx context.Context, userID string, limit int) ([]model.HealthEvent, error) {
	var events []model.HealthEvent
	query := e.db.WithContext(ctx).Where("user_id = ?", userID).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&events).Error; err != nil {
		return nil, translate(err, "查询事件失败")
	}
	return events, nil
}

func (e *EventDB) ListEventsByRange(ctx context.Context, userID string, from, to time.Time) ([]model.HealthEvent, error) {
	var events []model.HealthEvent
	err := e.db.WithContext(ctx).
		Where("user_id = ? AND started_at >= ? AND started_at <= ?", userID, from.UTC(), to.UTC()).
		Order("started_at DESC").
		Find(&events).Error
	if err != nil {
		return nil, translate(err, "按时间范围查询事件失败")
	}
	return events, nil
}

func (e *EventDB) CountEventsSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	var count int64
	err := e.db.WithContext(ctx).Model(&model.HealthEvent{}).
		Where("user_id = ? AND started_at >= ?", userID, since.UTC()).
		Count(&count).Error
	if err != nil {
		return 0, translate(err, "统计事件失败")
	}
	return count, nil
}

// DeleteEvent 只删除属于该用户的事件
func (e *EventDB) DeleteEvent(ctx context.Context, userID, eventID string) error {
	result := e.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", eventID, userID).
		Delete(&model.HealthEvent{})
	return affected(result, "删除事件失败")
}

func (e *EventDB) ActiveUsersSince(ctx context.Context, since time.Time) ([]string, error) {
	var users []string
	err := e.db.WithContext(ctx).Model(&model.HealthEvent{}).
		Distinct("user_id").
		Where("started_at >= ?", since.UTC()).
		Order("user_id").
		Pluck("user_id", &users).Error
	if err != nil {
		return nil, translate(err, "查询活跃用户失败")
	}
	return users, nil
}
