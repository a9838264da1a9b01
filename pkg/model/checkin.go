// pkg/model/checkin.go
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CheckinType 签到类型
type CheckinType string

const (
	CheckinMorning CheckinType = "morning"
	CheckinEvening CheckinType = "evening"
)

// 早间签到截止小时（本地时间）
const morningCutoffHour = 14

// DateLayout 签到日期格式
const DateLayout = "2006-01-02"

// DailyCheckin 每日情绪签到，(user_id, checkin_date, checkin_type) 唯一
type DailyCheckin struct {
	ID               string      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string      `gorm:"type:uuid;not null;uniqueIndex:uidx_checkin_user_date_type,priority:1" json:"user_id"`
	CheckinType      CheckinType `gorm:"type:varchar(10);not null;uniqueIndex:uidx_checkin_user_date_type,priority:3" json:"checkin_type"`
	CheckinDate      string      `gorm:"type:varchar(10);not null;uniqueIndex:uidx_checkin_user_date_type,priority:2" json:"checkin_date"`
	Mood             int         `gorm:"not null" json:"mood"`
	EnergyLevel      *int        `json:"energy_level"`
	SleepQuality     *int        `json:"sleep_quality"`
	SleepHours       *float64    `json:"sleep_hours"`
	StressLevel      *int        `json:"stress_level"`
	PhysicalActivity *string     `gorm:"type:varchar(30)" json:"physical_activity"`
	Notes            *string     `gorm:"type:text" json:"notes"`
	CreatedAt        time.Time   `json:"created_at"`
}

func (c *DailyCheckin) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

func (DailyCheckin) TableName() string {
	return "daily_checkins"
}

// CheckinInput 客户端提交的签到字段
type CheckinInput struct {
	CheckinType      CheckinType `json:"checkin_type" binding:"omitempty,oneof=morning evening"`
	Mood             int         `json:"mood" binding:"required,min=1,max=5"`
	EnergyLevel      *int        `json:"energy_level" binding:"omitempty,min=1,max=5"`
	SleepQuality     *int        `json:"sleep_quality" binding:"omitempty,min=1,max=5"`
	SleepHours       *float64    `json:"sleep_hours" binding:"omitempty,min=0,max=24"`
	StressLevel      *int        `json:"stress_level" binding:"omitempty,min=1,max=5"`
	PhysicalActivity *string     `json:"physical_activity"`
	Notes            *string     `json:"notes"`
}

// CheckinTypeAt 按本地小时推导签到类型
func CheckinTypeAt(local time.Time) CheckinType {
	if local.Hour() < morningCutoffHour {
		return CheckinMorning
	}
	return CheckinEvening
}

// NewDailyCheckin 校验输入并生成签到，日期取 loc 时区的当天
func NewDailyCheckin(userID string, in CheckinInput, loc *time.Location, now time.Time) (*DailyCheckin, error) {
	if in.Mood < 1 || in.Mood > 5 {
		return nil, fmt.Errorf("心情必须在 1 到 5 之间: %d", in.Mood)
	}
	for name, v := range map[string]*int{"energy_level": in.EnergyLevel, "sleep_quality": in.SleepQuality, "stress_level": in.StressLevel} {
		if v != nil && (*v < 1 || *v > 5) {
			return nil, fmt.Errorf("%s 必须在 1 到 5 之间: %d", name, *v)
		}
	}
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)

	checkinType := in.CheckinType
	switch checkinType {
	case "":
		checkinType = CheckinTypeAt(local)
	case CheckinMorning, CheckinEvening:
	default:
		return nil, fmt.Errorf("无效的签到类型: %s", checkinType)
	}

	return &DailyCheckin{
		UserID:           userID,
		CheckinType:      checkinType,
		CheckinDate:      local.Format(DateLayout),
		Mood:             in.Mood,
		EnergyLevel:      in.EnergyLevel,
		SleepQuality:     in.SleepQuality,
		SleepHours:       in.SleepHours,
		StressLevel:      in.StressLevel,
		PhysicalActivity: in.PhysicalActivity,
		Notes:            in.Notes,
	}, nil
}
