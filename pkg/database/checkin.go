// pkg/database/checkin.go
package database

import (
	"context"

	"gorm.io/gorm"

	"MindTrack/pkg/model"
)

type CheckinDB struct {
	db *gorm.DB
}

// CreateCheckin 同一天同类型重复签到返回 repository.ErrDuplicate
func (c *CheckinDB) CreateCheckin(ctx context.Context, checkin *model.DailyCheckin) error {
	return translate(c.db.WithContext(ctx).Create(checkin).Error, "保存签到失败")
}

func (c *CheckinDB) CheckinsOn(ctx context.Context, userID, date string) ([]model.DailyCheckin, error) {
	var checkins []model.DailyCheckin
	err := c.db.WithContext(ctx).
		Where("user_id = ? AND checkin_date = ?", userID, date).
		Order("created_at ASC").
		Find(&checkins).Error
	if err != nil {
		return nil, translate(err, "查询当日签到失败")
	}
	return checkins, nil
}

func (c *CheckinDB) ListCheckinsByRange(ctx context.Context, userID, fromDate, toDate string) ([]model.DailyCheckin, error) {
	var checkins []model.DailyCheckin
	err := c.db.WithContext(ctx).
		Where("user_id = ? AND checkin_date >= ? AND checkin_date <= ?", userID, fromDate, toDate).
		Order("checkin_date DESC, created_at DESC").
		Find(&checkins).Error
	if err != nil {
		return nil, translate(err, "按日期查询签到失败")
	}
	return checkins, nil
}
