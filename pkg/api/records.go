package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"MindTrack/pkg/messaging"
	"MindTrack/pkg/model"
)

const defaultEventLimit = 50

// CreateEvent 保存事件并发布 events.created
func (h *Handlers) CreateEvent(c *gin.Context) {
	var in model.EventInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	user := currentUser(c)
	event, err := model.NewHealthEvent(user.ID, in, user.Location(), h.now())
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.store.CreateEvent(c.Request.Context(), event); err != nil {
		h.fail(c, err)
		return
	}

	err = h.publisher.Publish(messaging.SubjectEventCreated, messaging.EventCreated{
		UserID:    user.ID,
		EventID:   event.ID,
		Intensity: event.Intensity,
		StartedAt: event.StartedAt,
	})
	if err != nil {
		h.logger.Warn("发布事件消息失败", "user_id", user.ID, "event_id", event.ID, "err", err)
	}

	c.JSON(http.StatusCreated, event)
}

func (h *Handlers) ListEvents(c *gin.Context) {
	events, err := h.store.ListEvents(c.Request.Context(), currentUser(c).ID, queryLimit(c, defaultEventLimit))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

// ListEventsByRange from/to 为 RFC3339 时间，闭区间
func (h *Handlers) ListEventsByRange(c *gin.Context) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		badRequest(c, fmt.Errorf("from: %w", err))
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		badRequest(c, fmt.Errorf("to: %w", err))
		return
	}

	events, err := h.store.ListEventsByRange(c.Request.Context(), currentUser(c).ID, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}

// CountEvents since 缺省为 30 天前
func (h *Handlers) CountEvents(c *gin.Context) {
	since := h.now().AddDate(0, 0, -30)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, fmt.Errorf("since: %w", err))
			return
		}
		since = parsed
	}

	count, err := h.store.CountEventsSince(c.Request.Context(), currentUser(c).ID, since)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *Handlers) DeleteEvent(c *gin.Context) {
	if err := h.store.DeleteEvent(c.Request.Context(), currentUser(c).ID, c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateCheckin 同一天同类型重复签到返回 409
func (h *Handlers) CreateCheckin(c *gin.Context) {
	var in model.CheckinInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	user := currentUser(c)
	checkin, err := model.NewDailyCheckin(user.ID, in, user.Location(), h.now())
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := h.store.CreateCheckin(c.Request.Context(), checkin); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, checkin)
}

func (h *Handlers) TodayCheckins(c *gin.Context) {
	user := currentUser(c)
	today := h.now().In(user.Location()).Format(model.DateLayout)

	checkins, err := h.store.CheckinsOn(c.Request.Context(), user.ID, today)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": today, "data": checkins})
}

// ListCheckinsByRange from/to 格式 2006-01-02
func (h *Handlers) ListCheckinsByRange(c *gin.Context) {
	from, to := c.Query("from"), c.Query("to")
	for name, value := range map[string]string{"from": from, "to": to} {
		if _, err := time.Parse(model.DateLayout, value); err != nil {
			badRequest(c, fmt.Errorf("%s: %w", name, err))
			return
		}
	}

	checkins, err := h.store.ListCheckinsByRange(c.Request.Context(), currentUser(c).ID, from, to)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": checkins})
}
