// pkg/model/insight.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 完整 AI 分析在 ai_insights 表中的类型与分类
const (
	InsightTypeFullAnalysis = "ai_full_analysis"
	CategoryFullAnalysis    = "full_analysis"
)

// AIInsight 面向用户的洞察，来源为本地相关性分析或完整 AI 分析
type AIInsight struct {
	ID             string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string         `gorm:"type:uuid;not null;index:idx_insights_user_generated,priority:1" json:"user_id"`
	InsightText    string         `gorm:"type:text;not null" json:"insight_text"`
	InsightType    string         `gorm:"type:varchar(40);not null;index" json:"insight_type"`
	Category       string         `gorm:"type:varchar(40)" json:"category"`
	Confidence     *float64       `json:"confidence"`
	DataStartDate  string         `gorm:"type:varchar(10)" json:"data_start_date"`
	DataEndDate    string         `gorm:"type:varchar(10)" json:"data_end_date"`
	EventsAnalyzed int            `gorm:"default:0" json:"events_analyzed"`
	IsRead         bool           `gorm:"default:false" json:"is_read"`
	IsDismissed    bool           `gorm:"default:false;index" json:"is_dismissed"`
	GeneratedAt    time.Time      `gorm:"not null;index:idx_insights_user_generated,priority:2" json:"generated_at"`
	RawAnalysis    datatypes.JSON `json:"raw_analysis,omitempty"`
}

func (i *AIInsight) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.GeneratedAt.IsZero() {
		i.GeneratedAt = time.Now()
	}
	return nil
}

func (AIInsight) TableName() string {
	return "ai_insights"
}
