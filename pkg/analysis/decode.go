package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"MindTrack/pkg/locale"
	"MindTrack/pkg/model"
)

var (
	errInvalidShape = errors.New("分析结果缺少必需字段")
	validate        = validator.New()
)

// requiredShape 第一阶段只校验的字段
type requiredShape struct {
	Summary struct {
		TrendDescription string `json:"trend_description" validate:"required"`
	} `json:"analysis_summary"`
	KeyInsights []json.RawMessage `json:"key_insights" validate:"required"`
}

// DecodeAnalysis 两阶段解析外部分析结果。
// 第一阶段只要求 analysis_summary.trend_description 为非空字符串、key_insights 为数组；
// 第二阶段逐字段宽松解析，类型不符的字段保留默认值，其余字段不受影响。
func DecodeAnalysis(raw json.RawMessage, lang string) (*model.AIAnalysisResponse, error) {
	if !isObject(raw) {
		return nil, errInvalidShape
	}
	var shape requiredShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidShape, err)
	}
	if err := validate.Struct(shape); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidShape, err)
	}

	fields, _ := asObject(raw)
	summary, _ := asObject(fields["analysis_summary"])

	analysis := &model.AIAnalysisResponse{
		AnalysisSummary:  decodeSummary(summary),
		KeyInsights:      decodeEach(fields["key_insights"], decodeKeyInsight),
		TriggerEquations: decodeEach(fields["trigger_equations"], decodeTriggerEquation),
		PositiveFindings: decodeEach(fields["positive_findings"], decodePositiveFinding),
		SymptomSignature: defaultSymptomSignature(),
		TimelinePatterns: defaultTimelinePatterns(),
		DataQuality:      defaultDataQuality(),
	}

	// 对象字段在默认值之上逐字段合并
	if o, ok := asObject(fields["symptom_signature"]); ok {
		o.strings("most_common", &analysis.SymptomSignature.MostCommon)
		o.string("pre_event_pattern", &analysis.SymptomSignature.PreEventPattern)
		o.strings("high_intensity_markers", &analysis.SymptomSignature.HighIntensityMarkers)
	}
	if o, ok := asObject(fields["timeline_patterns"]); ok {
		o.strings("peak_hours", &analysis.TimelinePatterns.PeakHours)
		o.strings("peak_days", &analysis.TimelinePatterns.PeakDays)
		o.intPtr("cycle_days", &analysis.TimelinePatterns.CycleDays)
		o.string("cluster_description", &analysis.TimelinePatterns.ClusterDescription)
	}
	if o, ok := asObject(fields["data_quality"]); ok {
		o.float("completeness", &analysis.DataQuality.Completeness)
		o.string("missing_data_note", &analysis.DataQuality.MissingDataNote)
		o.string("recommendation", &analysis.DataQuality.Recommendation)
	}
	fields.string("medical_disclaimer", &analysis.MedicalDisclaimer)

	Sanitize(analysis, lang)
	return analysis, nil
}

// Sanitize 将缺失的可选数组置为空数组、空免责声明替换为默认文本，不改变已有字段。
// 对已经处理过的结果再次调用不会产生变化。
func Sanitize(a *model.AIAnalysisResponse, lang string) {
	if a.KeyInsights == nil {
		a.KeyInsights = []model.KeyInsight{}
	}
	if a.TriggerEquations == nil {
		a.TriggerEquations = []model.TriggerEquation{}
	}
	for i := range a.TriggerEquations {
		a.TriggerEquations[i].Factors = nonNil(a.TriggerEquations[i].Factors)
	}
	if a.PositiveFindings == nil {
		a.PositiveFindings = []model.PositiveFinding{}
	}
	a.SymptomSignature.MostCommon = nonNil(a.SymptomSignature.MostCommon)
	a.SymptomSignature.HighIntensityMarkers = nonNil(a.SymptomSignature.HighIntensityMarkers)
	a.TimelinePatterns.PeakHours = nonNil(a.TimelinePatterns.PeakHours)
	a.TimelinePatterns.PeakDays = nonNil(a.TimelinePatterns.PeakDays)
	if a.MedicalDisclaimer == "" {
		a.MedicalDisclaimer = locale.T(lang, locale.DefaultDisclaimer)
	}
}

func decodeSummary(o object) model.AnalysisSummary {
	var s model.AnalysisSummary
	o.int("total_events_analyzed", &s.TotalEventsAnalyzed)
	o.string("date_range", &s.DateRange)
	o.float("avg_intensity", &s.AvgIntensity)
	o.string("trend", &s.Trend)
	o.string("trend_description", &s.TrendDescription)
	return s
}

func decodeKeyInsight(o object) model.KeyInsight {
	var k model.KeyInsight
	o.int("id", &k.ID)
	o.string("emoji", &k.Emoji)
	o.string("title", &k.Title)
	o.string("body", &k.Body)
	o.string("category", &k.Category)
	o.float("confidence", &k.Confidence)
	o.string("severity", &k.Severity)
	o.string("actionable_tip", &k.ActionableTip)
	if dp, ok := asObject(o["data_points"]); ok {
		dp.string("statistic", &k.DataPoints.Statistic)
		dp.string("comparison", &k.DataPoints.Comparison)
		dp.string("sample_size", &k.DataPoints.SampleSize)
	}
	return k
}

func decodeTriggerEquation(o object) model.TriggerEquation {
	var e model.TriggerEquation
	o.strings("factors", &e.Factors)
	o.float("probability", &e.Probability)
	o.string("description", &e.Description)
	o.int("events_matching", &e.EventsMatching)
	o.int("events_total", &e.EventsTotal)
	return e
}

func decodePositiveFinding(o object) model.PositiveFinding {
	var f model.PositiveFinding
	o.string("emoji", &f.Emoji)
	o.string("text", &f.Text)
	return f
}

func defaultSymptomSignature() model.SymptomSignature {
	return model.SymptomSignature{MostCommon: []string{}, HighIntensityMarkers: []string{}}
}

func defaultTimelinePatterns() model.TimelinePatterns {
	return model.TimelinePatterns{PeakHours: []string{}, PeakDays: []string{}}
}

func defaultDataQuality() model.DataQuality {
	return model.DataQuality{Completeness: 0.5}
}

// decodeEach 逐个解析数组元素，非对象元素被跳过；raw 不是数组时返回 nil
func decodeEach[T any](raw json.RawMessage, decode func(object) T) []T {
	if !isArray(raw) {
		return nil
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	result := make([]T, 0, len(items))
	for _, item := range items {
		if o, ok := asObject(item); ok {
			result = append(result, decode(o))
		}
	}
	return result
}

// object JSON 对象的字段读取器，无法转换的字段不修改目标
type object map[string]json.RawMessage

func asObject(raw json.RawMessage) (object, bool) {
	if !isObject(raw) {
		return nil, false
	}
	var o object
	if json.Unmarshal(raw, &o) != nil {
		return nil, false
	}
	return o, true
}

// string 接受字符串、数字与布尔值
func (o object) string(key string, dst *string) {
	if s, ok := scalarText(o[key]); ok {
		*dst = s
	}
}

// float 接受数字与数字字符串
func (o object) float(key string, dst *float64) {
	if f, ok := scalarNumber(o[key]); ok {
		*dst = f
	}
}

// int 接受数字与数字字符串，小数四舍五入
func (o object) int(key string, dst *int) {
	if f, ok := scalarNumber(o[key]); ok {
		*dst = int(math.Round(f))
	}
}

func (o object) intPtr(key string, dst **int) {
	if f, ok := scalarNumber(o[key]); ok {
		n := int(math.Round(f))
		*dst = &n
	}
}

// strings 接受数组，丢弃无法转换为文本的元素
func (o object) strings(key string, dst *[]string) {
	raw := o[key]
	if !isArray(raw) {
		return
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return
	}
	result := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := scalarText(item); ok {
			result = append(result, s)
		}
	}
	*dst = result
}

func scalarText(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return "", false
		}
		return s, true
	case 't', 'f':
		var b bool
		if json.Unmarshal(raw, &b) != nil {
			return "", false
		}
		return strconv.FormatBool(b), true
	case '{', '[', 'n':
		return "", false
	}
	var n json.Number
	if json.Unmarshal(raw, &n) != nil {
		return "", false
	}
	return n.String(), true
}

func scalarNumber(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) != nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	var f float64
	if json.Unmarshal(raw, &f) != nil {
		return 0, false
	}
	return f, true
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
