package insight

import (
	"context"
	"encoding/json"
	"time"

	"MindTrack/pkg/messaging"
)

// consumeTimeout 单条消息的处理上限
const consumeTimeout = 30 * time.Second

// EventCreatedHandler 返回 events.created 的消息处理函数。
// 无法解析的消息直接确认丢弃，生成失败时返回错误让 JetStream 重投。
func (s *Service) EventCreatedHandler(ctx context.Context) messaging.MessageHandler {
	return func(data []byte) error {
		var msg messaging.EventCreated
		if err := json.Unmarshal(data, &msg); err != nil || msg.UserID == "" {
			s.logger.Warn("丢弃无法解析的事件消息", "bytes", len(data), "err", err)
			return nil
		}

		handleCtx, cancel := context.WithTimeout(ctx, consumeTimeout)
		defer cancel()

		generated, err := s.GenerateIfReady(handleCtx, msg.UserID)
		if err != nil {
			return err
		}
		if generated {
			s.logger.Debug("新事件触发洞察生成", "user", msg.UserID, "event", msg.EventID)
		}
		return nil
	}
}
