// pkg/database/database.go
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"MindTrack/pkg/config"
	"MindTrack/pkg/model"
	"MindTrack/pkg/repository"
)

// 支持的驱动
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB gorm 数据库连接
type DB struct {
	db *gorm.DB
}

// Open 按配置打开数据库连接
func Open(cfg config.DatabaseConfig) (*DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres:
		dialector = postgres.Open(cfg.DSN())
	case DriverSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取连接池失败: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// SQLite 只允许单写连接
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("测试数据库连接失败: %w", err)
	}
	return &DB{db: db}, nil
}

// Migrate 自动迁移全部表
func (d *DB) Migrate() error {
	err := d.db.AutoMigrate(
		&model.User{},
		&model.HealthEvent{},
		&model.DailyCheckin{},
		&model.AIInsight{},
	)
	if err != nil {
		return fmt.Errorf("迁移数据库失败: %w", err)
	}
	return nil
}

// Ping 检查连接
func (d *DB) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭数据库连接
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *DB) Events() *EventDB {
	return &EventDB{db: d.db}
}

func (d *DB) Checkins() *CheckinDB {
	return &CheckinDB{db: d.db}
}

func (d *DB) Insights() *InsightDB {
	return &InsightDB{db: d.db}
}

func (d *DB) Users() *UserDB {
	return &UserDB{db: d.db}
}

// Store 组合各表访问对象，实现 repository.Store
type Store struct {
	*EventDB
	*CheckinDB
	*InsightDB
	*UserDB
	conn *gorm.DB
}

var _ repository.Store = (*Store)(nil)

// Store 返回完整存储
func (d *DB) Store() *Store {
	return &Store{
		EventDB:   d.Events(),
		CheckinDB: d.Checkins(),
		InsightDB: d.Insights(),
		UserDB:    d.Users(),
		conn:      d.db,
	}
}

// DeleteUserData 在一个事务中删除用户的事件、签到与洞察
func (s *Store) DeleteUserData(ctx context.Context, userID string) error {
	return s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&model.HealthEvent{}).Error; err != nil {
			return fmt.Errorf("删除事件失败: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.DailyCheckin{}).Error; err != nil {
			return fmt.Errorf("删除签到失败: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&model.AIInsight{}).Error; err != nil {
			return fmt.Errorf("删除洞察失败: %w", err)
		}
		return nil
	})
}

// translate 将驱动错误映射为 repository 的哨兵错误
func translate(err error, action string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repository.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isUniqueViolation(err):
		return repository.ErrDuplicate
	}
	return fmt.Errorf("%s: %w", action, err)
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

// affected 更新或删除未命中任何行时返回 ErrNotFound
func affected(result *gorm.DB, action string) error {
	if result.Error != nil {
		return translate(result.Error, action)
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
