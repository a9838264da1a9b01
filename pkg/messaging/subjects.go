package messaging

import (
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// 主题
const (
	SubjectEventCreated      = "events.created"
	SubjectAnalysisCompleted = "analysis.completed"
	SubjectInsightsGenerated = "insights.generated"
)

// Streams
const (
	StreamEvents   = "HEALTH_EVENTS"
	StreamAnalysis = "ANALYSIS"
	StreamInsights = "INSIGHTS"
)

// EventCreated 新事件写入后发布
type EventCreated struct {
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	Intensity int       `json:"intensity"`
	StartedAt time.Time `json:"started_at"`
}

// AnalysisCompleted 完整 AI 分析成功后发布
type AnalysisCompleted struct {
	UserID         string    `json:"user_id"`
	EventsAnalyzed int       `json:"events_analyzed"`
	Trend          string    `json:"trend"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// InsightsGenerated 本地洞察生成后发布
type InsightsGenerated struct {
	UserID         string    `json:"user_id"`
	Count          int       `json:"count"`
	EventsAnalyzed int       `json:"events_analyzed"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Publisher 发布消息的最小接口
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// NopPublisher 未配置 NATS 时使用
type NopPublisher struct{}

func (NopPublisher) Publish(subject string, data interface{}) error { return nil }

// StreamConfigs 基础 Streams 配置
func StreamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        StreamEvents,
			Subjects:    []string{"events.*"},
			Description: "症状事件流",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     100000,
			MaxBytes:    100 * 1024 * 1024, // 100MB
			MaxAge:      7 * 24 * time.Hour,
		},
		{
			Name:        StreamAnalysis,
			Subjects:    []string{"analysis.*"},
			Description: "AI 分析结果流",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     50000,
			MaxBytes:    50 * 1024 * 1024,
			MaxAge:      30 * 24 * time.Hour,
		},
		{
			Name:        StreamInsights,
			Subjects:    []string{"insights.*"},
			Description: "本地洞察流",
			Retention:   jetstream.LimitsPolicy,
			MaxMsgs:     50000,
			MaxBytes:    50 * 1024 * 1024,
			MaxAge:      7 * 24 * time.Hour,
		},
	}
}
