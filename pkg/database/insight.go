// pkg/database/insight.go
package database

import (
	"context"

	"gorm.io/gorm"

	"MindTrack/pkg/model"
)

type InsightDB struct {
	db *gorm.DB
}

func (i *InsightDB) CreateInsights(ctx context.Context, insights []*model.AIInsight) error {
	if len(insights) == 0 {
		return nil
	}
	return translate(i.db.WithContext(ctx).Create(insights).Error, "保存洞察失败")
}

func (i *InsightDB) ListInsights(ctx context.Context, userID string, limit int) ([]model.AIInsight, error) {
	var insights []model.AIInsight
	query := i.db.WithContext(ctx).
		Where("user_id = ? AND is_dismissed = ?", userID, false).
		Order("generated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&insights).Error; err != nil {
		return nil, translate(err, "查询洞察失败")
	}
	return insights, nil
}

func (i *InsightDB) LatestInsightByType(ctx context.Context, userID, insightType string) (*model.AIInsight, error) {
	var insight model.AIInsight
	err := i.db.WithContext(ctx).
		Where("user_id = ? AND insight_type = ?", userID, insightType).
		Order("generated_at DESC").
		First(&insight).Error
	if err != nil {
		return nil, translate(err, "查询最近洞察失败")
	}
	return &insight, nil
}

func (i *InsightDB) MarkInsightRead(ctx context.Context, userID, insightID string) error {
	return i.setFlag(ctx, userID, insightID, "is_read")
}

func (i *InsightDB) DismissInsight(ctx context.Context, userID, insightID string) error {
	return i.setFlag(ctx, userID, insightID, "is_dismissed")
}

func (i *InsightDB) setFlag(ctx context.Context, userID, insightID, column string) error {
	result := i.db.WithContext(ctx).Model(&model.AIInsight{}).
		Where("id = ? AND user_id = ?", insightID, userID).
		Update(column, true)
	return affected(result, "更新洞察失败")
}
