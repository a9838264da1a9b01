package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"MindTrack/pkg/config"
	"MindTrack/pkg/logger"
)

// Server API服务器
type Server struct {
	router          *gin.Engine
	srv             *http.Server
	logger          *log.Logger
	shutdownTimeout time.Duration
}

// NewServer 创建新的API服务器
func NewServer(cfg config.APIConfig, l *log.Logger) *Server {
	l = logger.Or(l)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(l))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Server{router: router, srv: srv, logger: l, shutdownTimeout: timeout}
}

// Handler 返回路由，供测试使用
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetupRoutes 设置路由
func (s *Server) SetupRoutes(h *Handlers) {
	// 健康检查
	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/ready", h.ReadinessCheck)

	v1 := s.router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/signup", h.SignUp)
		authGroup.POST("/signin", h.SignIn)
		authGroup.POST("/signout", h.SignOut)
		authGroup.POST("/reset", h.ResetPassword)
		authGroup.POST("/reset/confirm", h.ConfirmReset)
		authGroup.GET("/session", h.requireAuth, h.GetSession)
	}

	private := v1.Group("", h.requireAuth)
	{
		private.GET("/me/profile", h.GetProfile)
		private.PUT("/me/profile", h.UpdateProfile)
		private.DELETE("/me/data", h.DeleteAllData)

		private.POST("/events", h.CreateEvent)
		private.GET("/events", h.ListEvents)
		private.GET("/events/range", h.ListEventsByRange)
		private.GET("/events/count", h.CountEvents)
		private.DELETE("/events/:id", h.DeleteEvent)

		private.POST("/checkins", h.CreateCheckin)
		private.GET("/checkins/today", h.TodayCheckins)
		private.GET("/checkins/range", h.ListCheckinsByRange)

		private.GET("/insights", h.ListInsights)
		private.POST("/insights/generate", h.GenerateInsights)
		private.POST("/insights/:id/read", h.MarkInsightRead)
		private.POST("/insights/:id/dismiss", h.DismissInsight)

		private.POST("/analysis", h.RunAnalysis)
		private.GET("/analysis/last", h.LastAnalysis)
		private.GET("/analysis/data", h.AnalysisData)
	}
}

// Run 启动服务器，ctx 取消后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API服务器启动", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("服务器已关闭")
	return nil
}

func requestLogger(l *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Debug("请求",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}
