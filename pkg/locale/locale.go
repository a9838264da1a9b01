// pkg/locale/locale.go
package locale

import (
	"embed"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"MindTrack/pkg/model"
)

// 支持的语言，希伯来语为默认语言
const (
	Hebrew  = "he"
	English = "en"
)

// Key 消息 ID
type Key string

const (
	InsufficientData  Key = "insufficient_data"
	NetworkError      Key = "network_error"
	Timeout           Key = "timeout"
	InvalidBody       Key = "invalid_body"
	InvalidResponse   Key = "invalid_response"
	ServerError       Key = "server_error"
	DefaultDisclaimer Key = "default_disclaimer"
	FullAnalysis      Key = "full_analysis"

	SleepLow  Key = "sleep_low"
	SleepHigh Key = "sleep_high"
	TimeShare Key = "time_share"
	PeakDay   Key = "peak_day"
	Stress    Key = "stress"
	Food      Key = "food"
)

// Keys 全部消息，每种语言都必须提供
var Keys = []Key{
	InsufficientData, NetworkError, Timeout, InvalidBody, InvalidResponse, ServerError,
	DefaultDisclaimer, FullAnalysis, SleepLow, SleepHigh, TimeShare, PeakDay, Stress, Food,
}

// Args 模板参数
type Args map[string]interface{}

//go:embed messages/*.yaml
var messageFiles embed.FS

var bundle = loadBundle()

func loadBundle() *i18n.Bundle {
	b := i18n.NewBundle(language.Hebrew)
	b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	entries, err := messageFiles.ReadDir("messages")
	if err != nil {
		panic(fmt.Sprintf("读取消息文件失败: %v", err))
	}
	for _, entry := range entries {
		data, err := messageFiles.ReadFile("messages/" + entry.Name())
		if err != nil {
			panic(fmt.Sprintf("读取消息文件失败: %v", err))
		}
		b.MustParseMessageFileBytes(data, entry.Name())
	}
	return b
}

// Normalize 返回受支持的语言代码，按基础语言匹配（en-US 视为 en），未知语言回退到希伯来语
func Normalize(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return Hebrew
	}
	base, _ := tag.Base()
	for _, supported := range bundle.LanguageTags() {
		if b, _ := supported.Base(); b == base {
			return b.String()
		}
	}
	return Hebrew
}

// T 渲染指定语言的消息，缺少译文时回退到希伯来语
func T(lang string, key Key, args ...Args) string {
	var data Args
	if len(args) > 0 {
		data = args[0]
	}
	msg, ok := localize(lang, string(key), data)
	if !ok {
		return string(key)
	}
	return msg
}

// localize 默认语言命中时 go-i18n 同时返回译文与 MessageNotFoundErr
func localize(lang, id string, data Args) (string, bool) {
	localizer := i18n.NewLocalizer(bundle, Normalize(lang))
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: map[string]interface{}(data),
	})
	if msg == "" && err != nil {
		return "", false
	}
	return msg, true
}

// Describe 将相关性发现渲染为面向用户的文本
func Describe(lang string, c model.Correlation) string {
	lang = Normalize(lang)
	switch c.Type {
	case model.CorrelationSleep:
		if c.Value < c.Compare {
			return T(lang, SleepLow, Args{"Hours": c.Value})
		}
		return T(lang, SleepHigh, Args{"Hours": c.Value})
	case model.CorrelationTime:
		return T(lang, TimeShare, Args{"Percent": share(c), "Period": name(lang, "period_", c.Subject)})
	case model.CorrelationDay:
		return T(lang, PeakDay, Args{"Day": name(lang, "day_", c.Subject), "Count": c.Count, "Percent": share(c)})
	case model.CorrelationStress:
		return T(lang, Stress, Args{"Intensity": c.Value})
	case model.CorrelationFood:
		return T(lang, Food, Args{"Food": c.Subject, "Count": c.Count, "Intensity": c.Value})
	}
	return c.Description
}

// name 时段与星期名，没有译文时原样返回
func name(lang, prefix, subject string) string {
	if msg, ok := localize(lang, prefix+subject, nil); ok {
		return msg
	}
	return subject
}

func share(c model.Correlation) int {
	if c.Total == 0 {
		return 0
	}
	return (c.Count*100 + c.Total/2) / c.Total
}
