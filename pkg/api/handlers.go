package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"MindTrack/pkg/analysis"
	"MindTrack/pkg/auth"
	"MindTrack/pkg/insight"
	"MindTrack/pkg/logger"
	"MindTrack/pkg/messaging"
	"MindTrack/pkg/model"
	"MindTrack/pkg/monitor"
	"MindTrack/pkg/repository"
)

const sessionKey = "session"

// Deps API处理程序依赖，Publisher 与 Monitor 可为空
type Deps struct {
	Auth      *auth.Service
	Store     repository.Store
	Analysis  *analysis.Service
	Insights  *insight.Service
	Publisher messaging.Publisher
	Monitor   *monitor.Monitor
	Logger    *log.Logger
}

// Handlers API处理程序
type Handlers struct {
	auth      *auth.Service
	store     repository.Store
	analysis  *analysis.Service
	insights  *insight.Service
	publisher messaging.Publisher
	monitor   *monitor.Monitor
	logger    *log.Logger
	now       func() time.Time
}

// NewHandlers 创建新的API处理程序
func NewHandlers(deps Deps) *Handlers {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	return &Handlers{
		auth:      deps.Auth,
		store:     deps.Store,
		analysis:  deps.Analysis,
		insights:  deps.Insights,
		publisher: publisher,
		monitor:   deps.Monitor,
		logger:    logger.Or(deps.Logger),
		now:       time.Now,
	}
}

// HealthCheck 健康检查处理程序
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReadinessCheck 检查全部已注册组件
func (h *Handlers) ReadinessCheck(c *gin.Context) {
	if h.monitor == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	if !h.monitor.CheckAll(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"components": h.monitor.GetAllStatus(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ready",
		"components": h.monitor.GetAllStatus(),
	})
}

// requireAuth 校验 Bearer 令牌并把会话放入上下文
func (h *Handlers) requireAuth(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少访问令牌"})
		return
	}
	session, err := h.auth.CurrentSession(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, err)
		c.Abort()
		return
	}
	c.Set(sessionKey, session)
	c.Next()
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func currentSession(c *gin.Context) *auth.Session {
	return c.MustGet(sessionKey).(*auth.Session)
}

func currentUser(c *gin.Context) *model.User {
	return currentSession(c).User
}

// fail 将错误映射为状态码，响应体只包含 error 字段
func (h *Handlers) fail(c *gin.Context, err error) {
	var analysisErr *analysis.Error
	switch {
	case errors.As(err, &analysisErr):
		c.JSON(analysisStatus(analysisErr.Kind), gin.H{"error": analysisErr.Message})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrDuplicate), errors.Is(err, auth.ErrAlreadyRegistered):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrInvalidTimezone):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("请求处理失败", "path", c.FullPath(), "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}

func analysisStatus(kind analysis.Kind) int {
	switch kind {
	case analysis.KindInsufficientData:
		return http.StatusUnprocessableEntity
	case analysis.KindTimeout:
		return http.StatusGatewayTimeout
	case analysis.KindNetwork, analysis.KindMalformedResponse, analysis.KindApplication:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求参数: " + err.Error()})
}

func queryLimit(c *gin.Context, def int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
