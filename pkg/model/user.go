// pkg/model/user.go
package model

import (
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 默认用户设置
const (
	DefaultLocale   = "he"
	DefaultTimezone = "Asia/Jerusalem"
)

// User 用户账户及资料
type User struct {
	ID                   string     `gorm:"type:uuid;primaryKey" json:"id"`
	Email                string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash         string     `gorm:"not null" json:"-"`
	DisplayName          string     `json:"display_name"`
	PrimaryCondition     string     `gorm:"type:varchar(50)" json:"primary_condition"`
	Timezone             string     `gorm:"type:varchar(64)" json:"timezone"`
	Locale               string     `gorm:"type:varchar(8)" json:"locale"`
	NotificationsEnabled bool       `json:"notifications_enabled"`
	OnboardingCompleted  bool       `json:"onboarding_completed"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	LastLoginAt          *time.Time `json:"last_login_at,omitempty"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// Location 返回用户所在时区，无法解析时回退到默认时区
func (u *User) Location() *time.Location {
	name := u.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ProfileUpdate 可修改的资料字段，nil 表示不修改
type ProfileUpdate struct {
	DisplayName          *string `json:"display_name"`
	PrimaryCondition     *string `json:"primary_condition"`
	Timezone             *string `json:"timezone"`
	Locale               *string `json:"locale" binding:"omitempty,oneof=he en"`
	NotificationsEnabled *bool   `json:"notifications_enabled"`
	OnboardingCompleted  *bool   `json:"onboarding_completed"`
}

// Updates 转换为列更新映射
func (p ProfileUpdate) Updates() map[string]interface{} {
	updates := make(map[string]interface{})
	if p.DisplayName != nil {
		updates["display_name"] = *p.DisplayName
	}
	if p.PrimaryCondition != nil {
		updates["primary_condition"] = *p.PrimaryCondition
	}
	if p.Timezone != nil {
		updates["timezone"] = *p.Timezone
	}
	if p.Locale != nil {
		updates["locale"] = *p.Locale
	}
	if p.NotificationsEnabled != nil {
		updates["notifications_enabled"] = *p.NotificationsEnabled
	}
	if p.OnboardingCompleted != nil {
		updates["onboarding_completed"] = *p.OnboardingCompleted
	}
	return updates
}
