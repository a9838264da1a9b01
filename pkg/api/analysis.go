package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"MindTrack/pkg/analysis"
	"MindTrack/pkg/insight"
)

func (h *Handlers) ListInsights(c *gin.Context) {
	insights, err := h.insights.List(c.Request.Context(), currentUser(c).ID, queryLimit(c, insight.DefaultLimit))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": insights})
}

// GenerateInsights 事件不足时返回当前列表
func (h *Handlers) GenerateInsights(c *gin.Context) {
	insights, err := h.insights.Generate(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": insights})
}

func (h *Handlers) MarkInsightRead(c *gin.Context) {
	if err := h.insights.MarkRead(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) DismissInsight(c *gin.Context) {
	if err := h.insights.Dismiss(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RunAnalysis 同步执行完整 AI 分析，结果在后台保存
func (h *Handlers) RunAnalysis(c *gin.Context) {
	session := currentSession(c)
	caller := analysis.Caller{
		UserID:           session.User.ID,
		AccessToken:      session.AccessToken,
		Locale:           session.User.Locale,
		PrimaryCondition: session.User.PrimaryCondition,
		Location:         session.User.Location(),
	}
	if lang := c.Query("locale"); lang != "" {
		caller.Locale = lang
	}

	result, err := h.analysis.Run(c.Request.Context(), caller, nil)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// LastAnalysis 没有保存的分析时 last_analysis 为 null
func (h *Handlers) LastAnalysis(c *gin.Context) {
	last := h.analysis.GetLastAnalysis(c.Request.Context(), currentUser(c).ID)
	c.JSON(http.StatusOK, gin.H{"last_analysis": last})
}

func (h *Handlers) AnalysisData(c *gin.Context) {
	user := currentUser(c)
	data, err := h.analysis.FetchAnalysisData(c.Request.Context(), user.ID, user.Location())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}
