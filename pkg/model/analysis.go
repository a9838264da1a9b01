// pkg/model/analysis.go
package model

import "time"

// 趋势
const (
	TrendImproving = "improving"
	TrendWorsening = "worsening"
	TrendStable    = "stable"
)

// 洞察严重程度
const (
	SeverityInfo      = "info"
	SeverityAttention = "attention"
	SeverityImportant = "important"
)

// InsightCategories 关键洞察允许的分类
var InsightCategories = []string{
	"sleep", "food", "stress", "time", "location", "symptoms", "mood", "cross_correlation",
}

// AIAnalysisResponse 一次完整分析的结构化结果
type AIAnalysisResponse struct {
	AnalysisSummary   AnalysisSummary   `json:"analysis_summary"`
	KeyInsights       []KeyInsight      `json:"key_insights"`
	TriggerEquations  []TriggerEquation `json:"trigger_equations"`
	SymptomSignature  SymptomSignature  `json:"symptom_signature"`
	TimelinePatterns  TimelinePatterns  `json:"timeline_patterns"`
	PositiveFindings  []PositiveFinding `json:"positive_findings"`
	DataQuality       DataQuality       `json:"data_quality"`
	MedicalDisclaimer string            `json:"medical_disclaimer"`
}

type AnalysisSummary struct {
	TotalEventsAnalyzed int     `json:"total_events_analyzed"`
	DateRange           string  `json:"date_range"`
	AvgIntensity        float64 `json:"avg_intensity"`
	Trend               string  `json:"trend"`
	TrendDescription    string  `json:"trend_description"`
}

type KeyInsight struct {
	ID            int        `json:"id"`
	Emoji         string     `json:"emoji"`
	Title         string     `json:"title"`
	Body          string     `json:"body"`
	Category      string     `json:"category"`
	Confidence    float64    `json:"confidence"`
	Severity      string     `json:"severity"`
	ActionableTip string     `json:"actionable_tip"`
	DataPoints    DataPoints `json:"data_points"`
}

type DataPoints struct {
	Statistic  string `json:"statistic"`
	Comparison string `json:"comparison"`
	SampleSize string `json:"sample_size"`
}

// TriggerEquation 2-3 个因素组合及其对应的发作概率
type TriggerEquation struct {
	Factors        []string `json:"factors"`
	Probability    float64  `json:"probability"`
	Description    string   `json:"description"`
	EventsMatching int      `json:"events_matching"`
	EventsTotal    int      `json:"events_total"`
}

type SymptomSignature struct {
	MostCommon           []string `json:"most_common"`
	PreEventPattern      string   `json:"pre_event_pattern"`
	HighIntensityMarkers []string `json:"high_intensity_markers"`
}

type TimelinePatterns struct {
	PeakHours          []string `json:"peak_hours"`
	PeakDays           []string `json:"peak_days"`
	CycleDays          *int     `json:"cycle_days"`
	ClusterDescription string   `json:"cluster_description"`
}

type PositiveFinding struct {
	Emoji string `json:"emoji"`
	Text  string `json:"text"`
}

type DataQuality struct {
	Completeness    float64 `json:"completeness"`
	MissingDataNote string  `json:"missing_data_note"`
	Recommendation  string  `json:"recommendation"`
}

// TokenUsage 分析服务报告的 token 用量
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// LastAnalysis 最近一次保存的完整分析
type LastAnalysis struct {
	Analysis    *AIAnalysisResponse `json:"analysis"`
	GeneratedAt time.Time           `json:"generated_at"`
}
