// pkg/model/event.go
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 强度范围
const (
	MinIntensity = 1
	MaxIntensity = 10
)

// HealthEvent 一次记录的症状事件
type HealthEvent struct {
	ID               string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           string     `gorm:"type:uuid;not null;index:idx_events_user_started,priority:1" json:"user_id"`
	EventType        string     `gorm:"type:varchar(50);not null" json:"event_type"`
	Intensity        int        `gorm:"not null" json:"intensity"`
	PreSymptoms      []string   `gorm:"serializer:json" json:"pre_symptoms"`
	RecentFood       []string   `gorm:"serializer:json" json:"recent_food"`
	FoodNotes        *string    `gorm:"type:text" json:"food_notes"`
	LocationType     *string    `gorm:"type:varchar(30)" json:"location_type"`
	LocationLat      *float64   `json:"location_lat"`
	LocationLng      *float64   `json:"location_lng"`
	SleepHours       *float64   `json:"sleep_hours"`
	StressLevel      *int       `json:"stress_level"`
	Notes            *string    `gorm:"type:text" json:"notes"`
	WeatherTemp      *float64   `json:"weather_temp"`
	WeatherCondition *string    `gorm:"type:varchar(30)" json:"weather_condition"`
	DayOfWeek        int        `gorm:"not null" json:"day_of_week"`
	HourOfDay        int        `gorm:"not null" json:"hour_of_day"`
	DurationMinutes  *int       `json:"duration_minutes"`
	StartedAt        time.Time  `gorm:"not null;index:idx_events_user_started,priority:2" json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (e *HealthEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

func (HealthEvent) TableName() string {
	return "events"
}

// EventInput 客户端提交的事件字段，星期与小时由服务端推导
type EventInput struct {
	EventType        string     `json:"event_type" binding:"required"`
	Intensity        int        `json:"intensity" binding:"required,min=1,max=10"`
	PreSymptoms      []string   `json:"pre_symptoms"`
	RecentFood       []string   `json:"recent_food"`
	FoodNotes        *string    `json:"food_notes"`
	LocationType     *string    `json:"location_type"`
	LocationLat      *float64   `json:"location_lat"`
	LocationLng      *float64   `json:"location_lng"`
	SleepHours       *float64   `json:"sleep_hours" binding:"omitempty,min=0,max=24"`
	StressLevel      *int       `json:"stress_level" binding:"omitempty,min=1,max=10"`
	Notes            *string    `json:"notes"`
	WeatherTemp      *float64   `json:"weather_temp"`
	WeatherCondition *string    `json:"weather_condition"`
	DurationMinutes  *int       `json:"duration_minutes" binding:"omitempty,min=0"`
	StartedAt        *time.Time `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
}

// NewHealthEvent 校验输入并生成事件，day_of_week/hour_of_day 按 loc 时区从开始时间推导
func NewHealthEvent(userID string, in EventInput, loc *time.Location, now time.Time) (*HealthEvent, error) {
	if in.EventType == "" {
		return nil, fmt.Errorf("事件类型不能为空")
	}
	if in.Intensity < MinIntensity || in.Intensity > MaxIntensity {
		return nil, fmt.Errorf("强度必须在 %d 到 %d 之间: %d", MinIntensity, MaxIntensity, in.Intensity)
	}
	if loc == nil {
		loc = time.UTC
	}

	startedAt := now
	if in.StartedAt != nil && !in.StartedAt.IsZero() {
		startedAt = *in.StartedAt
	}
	if in.EndedAt != nil && in.EndedAt.Before(startedAt) {
		return nil, fmt.Errorf("结束时间早于开始时间")
	}
	local := startedAt.In(loc)

	return &HealthEvent{
		UserID:           userID,
		EventType:        in.EventType,
		Intensity:        in.Intensity,
		PreSymptoms:      nonNil(in.PreSymptoms),
		RecentFood:       nonNil(in.RecentFood),
		FoodNotes:        in.FoodNotes,
		LocationType:     in.LocationType,
		LocationLat:      in.LocationLat,
		LocationLng:      in.LocationLng,
		SleepHours:       in.SleepHours,
		StressLevel:      in.StressLevel,
		Notes:            in.Notes,
		WeatherTemp:      in.WeatherTemp,
		WeatherCondition: in.WeatherCondition,
		DayOfWeek:        int(local.Weekday()),
		HourOfDay:        local.Hour(),
		DurationMinutes:  in.DurationMinutes,
		StartedAt:        startedAt.UTC(),
		EndedAt:          in.EndedAt,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
