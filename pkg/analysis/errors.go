package analysis

import "errors"

// Kind 分析失败的类别
type Kind int

const (
	KindUnknown Kind = iota
	// KindInsufficientData 事件数不足
	KindInsufficientData
	// KindNetwork 无法连接分析服务
	KindNetwork
	// KindTimeout 分析服务超时
	KindTimeout
	// KindMalformedResponse 响应不是 JSON 或缺少必需字段
	KindMalformedResponse
	// KindApplication 服务返回了明确的错误信息
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindInsufficientData:
		return "insufficient_data"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindMalformedResponse:
		return "malformed_response"
	case KindApplication:
		return "application"
	}
	return "unknown"
}

// Error 面向用户的分析错误，Error() 只返回本地化消息
type Error struct {
	Kind    Kind
	Message string
	// Status 分析服务返回的 HTTP 状态码，未收到响应时为 0
	Status int
	// Required/Current 仅用于 KindInsufficientData
	Required int
	Current  int
	Err      error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf 返回错误的类别
func KindOf(err error) Kind {
	var analysisErr *Error
	if errors.As(err, &analysisErr) {
		return analysisErr.Kind
	}
	return KindUnknown
}
