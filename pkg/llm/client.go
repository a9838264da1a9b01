package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"MindTrack/pkg/model"
)

// Client AI 分析服务客户端
type Client struct {
	apiURL  string
	anonKey string
	client  *http.Client
}

// EventSample 发送给分析服务的精简事件
type EventSample struct {
	Date       time.Time `json:"date"`
	Type       string    `json:"type"`
	Intensity  int       `json:"intensity"`
	Symptoms   []string  `json:"symptoms"`
	Food       []string  `json:"food"`
	Location   *string   `json:"location"`
	SleepHours *float64  `json:"sleep_hours"`
	Stress     *int      `json:"stress"`
	Day        int       `json:"day"`
	Hour       int       `json:"hour"`
	Weather    *string   `json:"weather"`
	Notes      *string   `json:"notes"`
}

// CheckinSample 发送给分析服务的精简签到
type CheckinSample struct {
	Date         string   `json:"date"`
	Type         string   `json:"type"`
	Mood         int      `json:"mood"`
	Energy       *int     `json:"energy"`
	SleepQuality *int     `json:"sleep_quality"`
	SleepHours   *float64 `json:"sleep_hours"`
	Stress       *int     `json:"stress"`
	Activity     *string  `json:"activity"`
}

// AnalysisRequest 分析请求体
type AnalysisRequest struct {
	Events           []EventSample       `json:"events"`
	Checkins         []CheckinSample     `json:"checkins"`
	Correlations     []model.Correlation `json:"correlations"`
	Locale           string              `json:"locale"`
	PrimaryCondition string              `json:"primary_condition"`
}

// RawResponse 服务返回的原始响应，JSON 解析由调用方负责
type RawResponse struct {
	Status int
	Body   []byte
}

// OK 是否为 2xx 状态
func (r *RawResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// TransportError 未收到任何响应的网络错误
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("请求分析服务失败: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewClient 创建分析服务客户端，超时由调用方通过 context 控制
func NewClient(apiURL, anonKey string) *Client {
	return &Client{
		apiURL:  apiURL,
		anonKey: anonKey,
		client:  &http.Client{},
	}
}

// Analyze 发送分析请求。token 为空时使用匿名密钥
func (c *Client) Analyze(ctx context.Context, token string, request *AnalysisRequest) (*RawResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("读取响应失败: %w", err)}
	}

	return &RawResponse{Status: resp.StatusCode, Body: body}, nil
}

// NewEventSamples 将事件投影为分析所需字段
func NewEventSamples(events []model.HealthEvent) []EventSample {
	samples := make([]EventSample, 0, len(events))
	for _, e := range events {
		samples = append(samples, EventSample{
			Date:       e.StartedAt,
			Type:       e.EventType,
			Intensity:  e.Intensity,
			Symptoms:   orEmpty(e.PreSymptoms),
			Food:       orEmpty(e.RecentFood),
			Location:   e.LocationType,
			SleepHours: e.SleepHours,
			Stress:     e.StressLevel,
			Day:        e.DayOfWeek,
			Hour:       e.HourOfDay,
			Weather:    e.WeatherCondition,
			Notes:      e.Notes,
		})
	}
	return samples
}

// NewCheckinSamples 将签到投影为分析所需字段
func NewCheckinSamples(checkins []model.DailyCheckin) []CheckinSample {
	samples := make([]CheckinSample, 0, len(checkins))
	for _, c := range checkins {
		samples = append(samples, CheckinSample{
			Date:         c.CheckinDate,
			Type:         string(c.CheckinType),
			Mood:         c.Mood,
			Energy:       c.EnergyLevel,
			SleepQuality: c.SleepQuality,
			SleepHours:   c.SleepHours,
			Stress:       c.StressLevel,
			Activity:     c.PhysicalActivity,
		})
	}
	return samples
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
