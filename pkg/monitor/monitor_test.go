package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestCheckAllUpdatesStatusAndAlerts(t *testing.T) {
	var alerts []string
	m := NewMonitor(func(component, status, message string) {
		alerts = append(alerts, component+":"+status)
	})

	failing := errors.New("connection refused")
	var redisErr error
	m.Register("database", func(context.Context) error { return nil })
	m.Register("redis", func(context.Context) error { return redisErr })

	if !m.CheckAll(context.Background()) {
		t.Fatal("all components should be healthy")
	}

	redisErr = failing
	if m.CheckAll(context.Background()) {
		t.Fatal("redis failure must make the check fail")
	}
	status := m.GetStatus("redis")
	if status.Status != StatusUnhealthy || status.Message != "connection refused" {
		t.Errorf("redis status: %+v", status)
	}

	// 状态未变化时不重复告警
	m.CheckAll(context.Background())
	if len(alerts) != 1 || alerts[0] != "redis:unhealthy" {
		t.Errorf("alerts: %v", alerts)
	}

	all := m.GetAllStatus()
	if len(all) != 2 || all[0].Component != "database" || all[1].Component != "redis" {
		t.Errorf("statuses: %+v", all)
	}
}

func TestHTTPCheck(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusOK)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	check := HTTPCheck(server.Client(), server.URL)
	if err := check(context.Background()); err != nil {
		t.Fatalf("healthy endpoint: %v", err)
	}
	// 分析服务对 HEAD 返回 4xx 仍视为可达
	status.Store(http.StatusMethodNotAllowed)
	if err := check(context.Background()); err != nil {
		t.Errorf("4xx should count as reachable: %v", err)
	}
	status.Store(http.StatusServiceUnavailable)
	if err := check(context.Background()); err == nil {
		t.Error("5xx should fail")
	}
}

func TestGetStatusUnknownComponent(t *testing.T) {
	m := NewMonitor(nil)
	if m.GetStatus("nope") != nil {
		t.Error("want nil")
	}
	m.UpdateStatus("adhoc", StatusDegraded, "slow")
	if got := m.GetStatus("adhoc"); got == nil || got.Status != StatusDegraded {
		t.Errorf("adhoc: %+v", got)
	}
}
