package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MindTrack/pkg/api"
	"MindTrack/pkg/app"
	"MindTrack/pkg/logger"
)

func main() {
	// 加载配置
	cfg, err := app.LoadConfig()
	if err != nil {
		logger.Default().Fatal("加载配置失败", "err", err)
	}
	if err := logger.Init(cfg.Log, "api"); err != nil {
		logger.Default().Fatal("初始化日志失败", "err", err)
	}
	l := logger.Default()
	l.Info("启动API服务...", "env", cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Fatal("初始化失败", "err", err)
	}

	// 后台巡检依赖组件
	a.Monitor.StartChecking(ctx, time.Minute)

	handlers := api.NewHandlers(api.Deps{
		Auth:      a.Auth,
		Store:     a.Store,
		Analysis:  a.Analysis,
		Insights:  a.Insights,
		Publisher: a.Publisher,
		Monitor:   a.Monitor,
		Logger:    l,
	})

	server := api.NewServer(cfg.API, l)
	server.SetupRoutes(handlers)

	runErr := server.Run(ctx)
	if runErr != nil {
		l.Error("API服务异常退出", "err", runErr)
	}

	// 等待进行中的分析结果落库
	if err := a.Close(); err != nil {
		l.Error("释放资源失败", "err", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
