package main

import (
	"context"
	"os/signal"
	"syscall"

	"MindTrack/pkg/app"
	"MindTrack/pkg/logger"
	"MindTrack/pkg/messaging"
	"MindTrack/pkg/scheduler"
)

const insightsConsumer = "insights-worker"

func main() {
	// 加载配置
	cfg, err := app.LoadConfig()
	if err != nil {
		logger.Default().Fatal("加载配置失败", "err", err)
	}
	if err := logger.Init(cfg.Log, "worker"); err != nil {
		logger.Default().Fatal("初始化日志失败", "err", err)
	}
	l := logger.Default()
	l.Info("启动后台任务服务...", "env", cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Fatal("初始化失败", "err", err)
	}

	// 新事件触发洞察生成，NATS 不可用时只运行定时任务
	if a.NATS != nil {
		handler := a.Insights.EventCreatedHandler(ctx)
		if err := a.NATS.Subscribe(messaging.StreamEvents, insightsConsumer, messaging.SubjectEventCreated, handler); err != nil {
			l.Error("订阅事件失败", "err", err)
		}
	}

	sched := scheduler.NewScheduler(cfg.Scheduler, a.Insights, a.Monitor, l)
	if err := sched.Start(); err != nil {
		a.Close()
		l.Fatal("启动调度器失败", "err", err)
	}

	<-ctx.Done()
	l.Info("正在关闭后台任务服务...")

	sched.Stop()
	if err := a.Close(); err != nil {
		l.Error("释放资源失败", "err", err)
	}
	l.Info("后台任务服务已关闭")
}
