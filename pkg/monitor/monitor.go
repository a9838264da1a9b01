package monitor

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// 组件状态
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthStatus 健康状态
type HealthStatus struct {
	Component   string    `json:"component"`
	Status      string    `json:"status"`
	LastChecked time.Time `json:"last_checked"`
	Message     string    `json:"message,omitempty"`
}

// CheckFunc 组件健康检查，返回错误表示不健康
type CheckFunc func(ctx context.Context) error

// Monitor 组件健康注册表
type Monitor struct {
	components map[string]*HealthStatus
	checks     map[string]CheckFunc
	mutex      sync.RWMutex
	alertFunc  func(component, status, message string)
}

// NewMonitor 创建新的监控系统，alertFunc 在组件状态变为非健康时调用
func NewMonitor(alertFunc func(component, status, message string)) *Monitor {
	return &Monitor{
		components: make(map[string]*HealthStatus),
		checks:     make(map[string]CheckFunc),
		alertFunc:  alertFunc,
	}
}

// Register 注册组件及其检查函数
func (m *Monitor) Register(component string, check CheckFunc) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.checks[component] = check
	m.components[component] = &HealthStatus{
		Component:   component,
		Status:      StatusUnknown,
		LastChecked: time.Now(),
	}
}

// UpdateStatus 更新组件状态
func (m *Monitor) UpdateStatus(component, status, message string) {
	m.mutex.Lock()
	if _, exists := m.components[component]; !exists {
		m.components[component] = &HealthStatus{Component: component}
	}
	current := m.components[component]
	oldStatus := current.Status
	current.Status = status
	current.LastChecked = time.Now()
	current.Message = message
	m.mutex.Unlock()

	if oldStatus != status && status != StatusHealthy && m.alertFunc != nil {
		m.alertFunc(component, status, message)
	}
}

// GetStatus 获取组件状态
func (m *Monitor) GetStatus(component string) *HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if status, exists := m.components[component]; exists {
		copied := *status
		return &copied
	}
	return nil
}

// GetAllStatus 获取所有组件状态，按名称排序
func (m *Monitor) GetAllStatus() []HealthStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	statuses := make([]HealthStatus, 0, len(m.components))
	for _, status := range m.components {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Component < statuses[j].Component })
	return statuses
}

// CheckAll 执行全部检查，返回是否全部健康
func (m *Monitor) CheckAll(ctx context.Context) bool {
	m.mutex.RLock()
	checks := make(map[string]CheckFunc, len(m.checks))
	for name, check := range m.checks {
		checks[name] = check
	}
	m.mutex.RUnlock()

	healthy := true
	for name, check := range checks {
		if err := check(ctx); err != nil {
			healthy = false
			m.UpdateStatus(name, StatusUnhealthy, err.Error())
			continue
		}
		m.UpdateStatus(name, StatusHealthy, "")
	}
	return healthy
}

// StartChecking 定期执行检查，ctx 取消后停止
func (m *Monitor) StartChecking(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.CheckAll(ctx)
			}
		}
	}()
}

// HTTPCheck 检查 HTTP 端点可达，5xx 视为不健康
func HTTPCheck(client *http.Client, url string) CheckFunc {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP请求失败: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("HTTP状态码异常: %d", resp.StatusCode)
		}
		return nil
	}
}
