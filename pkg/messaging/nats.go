// pkg/messaging/nats.go
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"MindTrack/pkg/logger"
)

// NATSClient NATS JetStream客户端
type NATSClient struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	natsURL   string
	ctx       context.Context
	cancel    context.CancelFunc
	consumers map[string]jetstream.Consumer // 消费者管理
	mu        sync.RWMutex                  // 保护consumers
	wg        sync.WaitGroup
	logger    *log.Logger
}

// MessageHandler 通用消息处理函数类型
type MessageHandler func(data []byte) error

// NewNATSClient 创建新的NATS客户端
func NewNATSClient(natsURL, clientName string, l *log.Logger) (*NATSClient, error) {
	l = logger.Or(l)

	nc, err := nats.Connect(natsURL,
		nats.Name(clientName),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // 无限重连
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			l.Warn("NATS连接断开", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			l.Info("NATS重新连接成功")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("创建JetStream失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	client := &NATSClient{
		conn:      nc,
		jetStream: js,
		natsURL:   natsURL,
		ctx:       ctx,
		cancel:    cancel,
		consumers: make(map[string]jetstream.Consumer),
		logger:    l,
	}

	if err := client.setupStreams(); err != nil {
		l.Warn("设置Streams失败", "err", err)
	}

	return client, nil
}

// setupStreams 设置基础的Streams
func (c *NATSClient) setupStreams() error {
	var errs []error
	for _, streamConfig := range StreamConfigs() {
		if _, err := c.jetStream.CreateOrUpdateStream(c.ctx, streamConfig); err != nil {
			errs = append(errs, fmt.Errorf("创建/更新Stream %s 失败: %w", streamConfig.Name, err))
			continue
		}
		c.logger.Debug("Stream 设置成功", "stream", streamConfig.Name)
	}
	return errors.Join(errs...)
}

// Publish 发布消息到指定主题
func (c *NATSClient) Publish(subject string, data interface{}) error {
	var payload []byte
	var err error

	switch v := data.(type) {
	case []byte:
		payload = v
	case string:
		payload = []byte(v)
	default:
		payload, err = json.Marshal(data)
		if err != nil {
			return fmt.Errorf("序列化数据失败: %w", err)
		}
	}

	_, err = c.jetStream.Publish(c.ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", subject, err)
	}

	c.logger.Debug("发布消息", "subject", subject, "bytes", len(payload))
	return nil
}

// Subscribe 订阅指定主题的消息
func (c *NATSClient) Subscribe(streamName, consumerName, filterSubject string, handler MessageHandler) error {
	consumerConfig := jetstream.ConsumerConfig{
		Durable:       consumerName,
		Description:   fmt.Sprintf("%s 消费者", consumerName),
		FilterSubject: filterSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := c.jetStream.CreateOrUpdateConsumer(c.ctx, streamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("创建消费者 %s 失败: %w", consumerName, err)
	}

	c.mu.Lock()
	c.consumers[consumerName] = consumer
	c.mu.Unlock()

	c.wg.Add(1)
	go c.consumeMessages(consumer, consumerName, handler)

	c.logger.Info("已订阅", "subject", filterSubject, "stream", streamName, "consumer", consumerName)
	return nil
}

// consumeMessages 消费消息的通用逻辑
func (c *NATSClient) consumeMessages(consumer jetstream.Consumer, consumerName string, handler MessageHandler) {
	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("消费者异常退出", "consumer", consumerName, "panic", r)
		}
	}()

	iter, err := consumer.Messages(jetstream.PullMaxMessages(10))
	if err != nil {
		c.logger.Error("获取消息迭代器失败", "consumer", consumerName, "err", err)
		return
	}
	go func() {
		<-c.ctx.Done()
		iter.Stop()
	}()

	for {
		msg, err := iter.Next()
		if err != nil {
			if errors.Is(err, jetstream.ErrMsgIteratorClosed) || c.ctx.Err() != nil {
				c.logger.Info("消费者收到停止信号", "consumer", consumerName)
				return
			}
			c.logger.Warn("获取消息失败", "consumer", consumerName, "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		if err := handler(msg.Data()); err != nil {
			c.logger.Error("处理消息失败", "consumer", consumerName, "err", err)
			msg.Nak()
		} else {
			msg.Ack()
		}
	}
}

// Close 关闭连接
func (c *NATSClient) Close() error {
	c.logger.Info("正在关闭NATS连接...")

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	c.consumers = make(map[string]jetstream.Consumer)
	c.mu.Unlock()

	if c.conn != nil {
		c.conn.Drain()
	}

	c.logger.Info("NATS连接已关闭")
	return nil
}

// IsConnected 检查连接状态
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Ping 供健康检查使用
func (c *NATSClient) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("NATS未连接: %s", c.natsURL)
	}
	return nil
}
