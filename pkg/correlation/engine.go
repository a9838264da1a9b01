// pkg/correlation/engine.go
package correlation

import (
	"fmt"
	"math"
	"sort"

	"MindTrack/pkg/model"
)

// MinEvents 进行相关性分析所需的最少事件数
const MinEvents = 5

// 各维度阈值
const (
	highIntensity       = 7
	highStress          = 7
	minSleepSamples     = 3
	minHighSleepSamples = 2
	minStressSamples    = 3
	minFoodOccurrences  = 3
	sleepDeltaHours     = 1.0
	periodShare         = 0.4
	dayShare            = 0.25
	stressShare         = 0.5
	dayConfidence       = 0.6
	stressConfidence    = 0.75
	maxSleepConfidence  = 0.9
	maxFoodConfidence   = 0.85
)

// 时段名称
const (
	PeriodMorning   = "morning"
	PeriodAfternoon = "afternoon"
	PeriodEvening   = "evening"
	PeriodNight     = "night"
)

// DayNames 星期名称，下标与 day_of_week 一致
var DayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Period 一个时段窗口 [From, To)，未命中任何窗口的小时归入夜间
type Period struct {
	Name string
	From int
	To   int
}

// Variant 一组固定的公式参数
type Variant struct {
	Name     string
	Periods  []Period
	Day      bool
	Stress   bool
	TopFoods int
}

// AnalysisVariant AI 分析请求前的预分析
var AnalysisVariant = Variant{
	Name: "analysis",
	Periods: []Period{
		{Name: PeriodMorning, From: 6, To: 12},
		{Name: PeriodAfternoon, From: 12, To: 17},
		{Name: PeriodEvening, From: 17, To: 22},
	},
	Day:      true,
	Stress:   false,
	TopFoods: 3,
}

// InsightsVariant 本地洞察生成
var InsightsVariant = Variant{
	Name: "insights",
	Periods: []Period{
		{Name: PeriodMorning, From: 0, To: 12},
		{Name: PeriodAfternoon, From: 12, To: 17},
		{Name: PeriodEvening, From: 17, To: 21},
	},
	Day:      true,
	Stress:   true,
	TopFoods: 2,
}

// VariantByName 按名称查找公式组
func VariantByName(name string) (Variant, error) {
	switch name {
	case "", AnalysisVariant.Name:
		return AnalysisVariant, nil
	case InsightsVariant.Name:
		return InsightsVariant, nil
	}
	return Variant{}, fmt.Errorf("未知的分析变体: %s", name)
}

// Analyze 计算事件的相关性发现，输出顺序固定为 睡眠、时段、星期、压力、饮食。
// 少于 MinEvents 个事件时返回空列表。
func Analyze(events []model.HealthEvent, v Variant) []model.Correlation {
	correlations := make([]model.Correlation, 0)
	if len(events) < MinEvents {
		return correlations
	}

	if c, ok := sleepCorrelation(events); ok {
		correlations = append(correlations, c)
	}
	if c, ok := timeCorrelation(events, v.Periods); ok {
		correlations = append(correlations, c)
	}
	if v.Day {
		if c, ok := dayCorrelation(events); ok {
			correlations = append(correlations, c)
		}
	}
	if v.Stress {
		if c, ok := stressCorrelation(events); ok {
			correlations = append(correlations, c)
		}
	}
	return append(correlations, foodCorrelations(events, v.TopFoods)...)
}

func sleepCorrelation(events []model.HealthEvent) (model.Correlation, bool) {
	var sum, highSum float64
	var withSleep, high int
	for _, e := range events {
		if e.SleepHours == nil {
			continue
		}
		withSleep++
		sum += *e.SleepHours
		if e.Intensity >= highIntensity {
			high++
			highSum += *e.SleepHours
		}
	}
	if withSleep < minSleepSamples || high < minHighSleepSamples {
		return model.Correlation{}, false
	}

	avg := sum / float64(withSleep)
	highAvg := highSum / float64(high)
	if math.Abs(highAvg-avg) <= sleepDeltaHours {
		return model.Correlation{}, false
	}

	return model.Correlation{
		Type:        model.CorrelationSleep,
		Description: fmt.Sprintf("avg sleep on high-intensity events: %.1fh vs overall %.1fh", highAvg, avg),
		Confidence:  math.Min(maxSleepConfidence, float64(high)/float64(len(events))+0.3),
		Category:    "sleep",
		Count:       high,
		Total:       len(events),
		Value:       highAvg,
		Compare:     avg,
	}, true
}

func periodOf(hour int, periods []Period) string {
	for _, p := range periods {
		if hour >= p.From && hour < p.To {
			return p.Name
		}
	}
	return PeriodNight
}

func timeCorrelation(events []model.HealthEvent, periods []Period) (model.Correlation, bool) {
	counts := make(map[string]int, len(periods)+1)
	for _, e := range events {
		counts[periodOf(e.HourOfDay, periods)]++
	}

	// 并列时取声明顺序中靠前的时段
	order := make([]string, 0, len(periods)+1)
	for _, p := range periods {
		order = append(order, p.Name)
	}
	order = append(order, PeriodNight)

	best, bestCount := "", 0
	for _, name := range order {
		if counts[name] > bestCount {
			best, bestCount = name, counts[name]
		}
	}

	share := float64(bestCount) / float64(len(events))
	if share <= periodShare {
		return model.Correlation{}, false
	}

	return model.Correlation{
		Type:        model.CorrelationTime,
		Description: fmt.Sprintf("%d%% of events occur during %s", percent(share), best),
		Confidence:  share,
		Category:    "time",
		Subject:     best,
		Count:       bestCount,
		Total:       len(events),
	}, true
}

func dayCorrelation(events []model.HealthEvent) (model.Correlation, bool) {
	var counts [7]int
	for _, e := range events {
		if e.DayOfWeek >= 0 && e.DayOfWeek < len(counts) {
			counts[e.DayOfWeek]++
		}
	}

	// 并列时取较小的星期下标
	best := 0
	for d := 1; d < len(counts); d++ {
		if counts[d] > counts[best] {
			best = d
		}
	}

	share := float64(counts[best]) / float64(len(events))
	if share <= dayShare {
		return model.Correlation{}, false
	}

	return model.Correlation{
		Type: model.CorrelationDay,
		Description: fmt.Sprintf("Peak day: %s with %d events (%d%%)",
			DayNames[best], counts[best], percent(share)),
		Confidence: dayConfidence,
		Category:   "time",
		Subject:    DayNames[best],
		Count:      counts[best],
		Total:      len(events),
	}, true
}

func stressCorrelation(events []model.HealthEvent) (model.Correlation, bool) {
	var withStress, high, intensitySum int
	for _, e := range events {
		if e.StressLevel == nil {
			continue
		}
		withStress++
		if *e.StressLevel >= highStress {
			high++
			intensitySum += e.Intensity
		}
	}
	if withStress < minStressSamples || float64(high)/float64(withStress) <= stressShare {
		return model.Correlation{}, false
	}

	avg := float64(intensitySum) / float64(high)
	return model.Correlation{
		Type:        model.CorrelationStress,
		Description: fmt.Sprintf("at high stress levels the average event intensity is %.1f/10", avg),
		Confidence:  stressConfidence,
		Category:    "stress",
		Count:       high,
		Total:       withStress,
		Value:       avg,
	}, true
}

type foodCount struct {
	name      string
	count     int
	intensity int
}

func foodCorrelations(events []model.HealthEvent, top int) []model.Correlation {
	index := make(map[string]int)
	var foods []foodCount
	for _, e := range events {
		for _, f := range e.RecentFood {
			i, ok := index[f]
			if !ok {
				i = len(foods)
				index[f] = i
				foods = append(foods, foodCount{name: f})
			}
			foods[i].count++
			foods[i].intensity += e.Intensity
		}
	}

	kept := foods[:0]
	for _, f := range foods {
		if f.count >= minFoodOccurrences {
			kept = append(kept, f)
		}
	}
	// 稳定排序，并列按首次出现顺序
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].count > kept[j].count })
	if len(kept) > top {
		kept = kept[:top]
	}

	total := len(events)
	out := make([]model.Correlation, 0, len(kept))
	for _, f := range kept {
		share := float64(f.count) / float64(total)
		out = append(out, model.Correlation{
			Type:        model.CorrelationFood,
			Description: fmt.Sprintf("%q appears in %d/%d events (%d%%)", f.name, f.count, total, percent(share)),
			Confidence:  math.Min(maxFoodConfidence, share+0.2),
			Category:    "food",
			Subject:     f.name,
			Count:       f.count,
			Total:       total,
			Value:       float64(f.intensity) / float64(f.count),
		})
	}
	return out
}

func percent(share float64) int {
	return int(math.Round(share * 100))
}
