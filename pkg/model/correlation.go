// pkg/model/correlation.go
package model

// 相关性类型
const (
	CorrelationSleep  = "sleep_correlation"
	CorrelationTime   = "time_correlation"
	CorrelationDay    = "day_correlation"
	CorrelationStress = "stress_correlation"
	CorrelationFood   = "food_correlation"
)

// Correlation 本地统计预分析得到的一条发现
type Correlation struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Category    string  `json:"category"`

	// 结构化证据，用于本地化渲染
	Subject string  `json:"subject,omitempty"`
	Count   int     `json:"count,omitempty"`
	Total   int     `json:"total,omitempty"`
	Value   float64 `json:"value,omitempty"`
	Compare float64 `json:"compare,omitempty"`
}
