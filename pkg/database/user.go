// pkg/database/user.go
package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"MindTrack/pkg/model"
)

type UserDB struct {
	db *gorm.DB
}

// CreateUser 邮箱重复时返回 repository.ErrDuplicate
func (u *UserDB) CreateUser(ctx context.Context, user *model.User) error {
	return translate(u.db.WithContext(ctx).Create(user).Error, "创建用户失败")
}

func (u *UserDB) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	var user model.User
	if err := u.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, translate(err, "获取用户信息失败")
	}
	return &user, nil
}

func (u *UserDB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := u.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, translate(err, "根据邮箱获取用户信息失败")
	}
	return &user, nil
}

func (u *UserDB) UpdateProfile(ctx context.Context, userID string, updates map[string]interface{}) error {
	changes := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		changes[k] = v
	}
	changes["updated_at"] = time.Now().UTC()

	result := u.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(changes)
	return affected(result, "更新用户信息失败")
}

func (u *UserDB) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	result := u.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"password_hash": passwordHash,
			"updated_at":    time.Now().UTC(),
		})
	return affected(result, "更新密码失败")
}

func (u *UserDB) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	result := u.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_login_at", at.UTC())
	return affected(result, "更新登录时间失败")
}
