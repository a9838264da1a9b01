package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"MindTrack/pkg/config"
	"MindTrack/pkg/logger"
)

// InsightRefresher 为活跃用户重新生成洞察
type InsightRefresher interface {
	RefreshActive(ctx context.Context, activeDays int) (int, error)
}

// HealthChecker 组件健康检查
type HealthChecker interface {
	CheckAll(ctx context.Context) bool
}

// Scheduler 任务调度器
type Scheduler struct {
	cron     *cron.Cron
	insights InsightRefresher
	health   HealthChecker
	cfg      config.SchedulerConfig
	logger   *log.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewScheduler 创建任务调度器，health 可为空
func NewScheduler(cfg config.SchedulerConfig, insights InsightRefresher, health HealthChecker, l *log.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		insights: insights,
		health:   health,
		cfg:      cfg,
		logger:   logger.Or(l),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 注册任务并启动调度器
func (s *Scheduler) Start() error {
	// 每晚为近期活跃用户重新生成洞察
	if _, err := s.cron.AddFunc(s.cfg.InsightsSpec, s.refreshInsights); err != nil {
		return fmt.Errorf("注册洞察任务失败: %w", err)
	}

	// 每分钟检查依赖组件
	if s.health != nil {
		if _, err := s.cron.AddFunc("0 * * * * *", s.monitorHealth); err != nil {
			return fmt.Errorf("注册健康检查任务失败: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("调度器已启动", "insights_spec", s.cfg.InsightsSpec)
	return nil
}

// Stop 停止调度器并等待正在运行的任务结束
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// refreshInsights 重新生成近期活跃用户的洞察
func (s *Scheduler) refreshInsights() {
	start := time.Now()
	n, err := s.insights.RefreshActive(s.ctx, s.cfg.ActiveWindowDays)
	if err != nil {
		s.logger.Error("重新生成洞察失败", "err", err)
		return
	}
	s.logger.Info("洞察已刷新", "users", n, "elapsed", time.Since(start))
}

// monitorHealth 检查依赖组件状态
func (s *Scheduler) monitorHealth() {
	if !s.health.CheckAll(s.ctx) {
		s.logger.Warn("部分组件不健康")
	}
}
