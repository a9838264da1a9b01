// pkg/app/app.go
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"MindTrack/pkg/analysis"
	"MindTrack/pkg/auth"
	"MindTrack/pkg/cache"
	"MindTrack/pkg/config"
	"MindTrack/pkg/database"
	"MindTrack/pkg/insight"
	"MindTrack/pkg/llm"
	"MindTrack/pkg/logger"
	"MindTrack/pkg/messaging"
	"MindTrack/pkg/monitor"
	"MindTrack/pkg/repository"
)

// DriverMemory 进程内存储，仅用于本地调试
const DriverMemory = "memory"

// App 进程共享的组件
type App struct {
	Config    *config.Config
	Logger    *log.Logger
	Store     repository.Store
	Publisher messaging.Publisher
	NATS      *messaging.NATSClient
	Analysis  *analysis.Service
	Insights  *insight.Service
	Auth      *auth.Service
	Monitor   *monitor.Monitor

	closers []func() error
}

// New 按配置组装存储、缓存、消息与业务服务。
// Redis 与 NATS 不可用时降级运行，数据库不可用时返回错误。
func New(ctx context.Context, cfg *config.Config, l *log.Logger) (*App, error) {
	l = logger.Or(l)
	a := &App{
		Config:    cfg,
		Logger:    l,
		Publisher: messaging.NopPublisher{},
		Monitor: monitor.NewMonitor(func(component, status, message string) {
			l.Warn("组件状态异常", "component", component, "status", status, "message", message)
		}),
	}

	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}

	var analysisCache analysis.Cache
	var invalidator insight.Invalidator
	var revoker auth.Revoker
	if cfg.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			l.Warn("Redis 不可用，禁用缓存", "addr", cfg.Redis.Addr, "err", err)
		} else {
			a.closers = append(a.closers, client.Close)
			c := cache.NewAnalysisCache(client, cfg.Redis.TTL)
			analysisCache, invalidator = c, c
			revoker = cache.NewRevocationList(client)
			a.Monitor.Register("redis", c.Ping)
		}
	}

	if cfg.NATS.URL != "" {
		nc, err := messaging.NewNATSClient(cfg.NATS.URL, cfg.NATS.ClientID, l)
		if err != nil {
			l.Warn("NATS 不可用，不发布消息", "url", cfg.NATS.URL, "err", err)
		} else {
			a.NATS = nc
			a.Publisher = nc
			a.closers = append(a.closers, nc.Close)
			a.Monitor.Register("nats", nc.Ping)
		}
	}

	if cfg.Analysis.ServiceURL != "" {
		a.Monitor.Register("analysis_service", monitor.HTTPCheck(nil, cfg.Analysis.ServiceURL))
	}

	a.Analysis = analysis.NewService(analysis.Deps{
		Events:    a.Store,
		Checkins:  a.Store,
		Insights:  a.Store,
		Client:    llm.NewClient(cfg.Analysis.ServiceURL, cfg.Auth.AnonKey),
		Cache:     analysisCache,
		Publisher: a.Publisher,
		Logger:    l,
	}, analysis.OptionsFromConfig(cfg.Analysis))

	a.Insights = insight.NewService(insight.Deps{
		Store:         a.Store,
		Cache:         invalidator,
		Publisher:     a.Publisher,
		Logger:        l,
		DefaultLocale: cfg.Analysis.DefaultLocale,
	})

	a.Auth = auth.NewService(a.Store, revoker, auth.NewMailer(cfg.SMTP, l),
		auth.OptionsFromConfig(cfg.Auth, cfg.SMTP), l)

	return a, nil
}

func (a *App) openStore() error {
	if a.Config.Database.Driver == DriverMemory {
		a.Logger.Warn("使用内存存储，进程退出后数据丢失")
		a.Store = repository.NewMemoryStore()
		return nil
	}

	db, err := database.Open(a.Config.Database)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)

	// SQLite 用于开发环境，启动时自动迁移
	if a.Config.Database.Driver == database.DriverSQLite {
		if err := db.Migrate(); err != nil {
			return err
		}
	}

	a.Store = db.Store()
	a.Monitor.Register("database", db.Ping)
	return nil
}

// Close 按创建的逆序释放资源，先等待后台保存完成
func (a *App) Close() error {
	if a.Analysis != nil {
		a.Analysis.Wait()
	}

	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("释放资源失败: %w", err)
		}
	}
	a.closers = nil
	return firstErr
}

// LoadConfig 读取 CONFIG_PATH 指定的配置，未设置时按 APP_ENV 选择
func LoadConfig() (*config.Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	return config.LoadConfig(path)
}
