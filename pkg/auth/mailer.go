// pkg/auth/mailer.go
package auth

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/charmbracelet/log"

	"MindTrack/pkg/config"
)

// ResetMessage 重置密码邮件内容
type ResetMessage struct {
	To        string
	Name      string
	Link      string
	ExpiresAt time.Time
}

// Mailer 发送账户邮件
type Mailer interface {
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
}

var resetTemplate = template.Must(template.New("reset").Parse(`Hello{{if .Name}} {{.Name}}{{end}},

We received a request to reset your MindTrack password.
Open the link below to choose a new one:

{{.Link}}

The link expires at {{.ExpiresAt.Format "2006-01-02 15:04 MST"}}.
If you did not ask for this you can ignore this email.
`))

func renderReset(msg ResetMessage) (string, error) {
	var buf bytes.Buffer
	if err := resetTemplate.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("渲染邮件模板失败: %w", err)
	}
	return buf.String(), nil
}

// SMTPMailer 通过 SMTP 发送邮件
type SMTPMailer struct {
	config config.SMTPConfig
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{config: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	body, err := renderReset(msg)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("From: %s\r\n", m.config.From)
	message += fmt.Sprintf("To: %s\r\n", msg.To)
	message += "Subject: MindTrack password reset\r\n"
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	var auth smtp.Auth
	if m.config.Username != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	if err := m.send(addr, auth, m.config.From, []string{msg.To}, []byte(message)); err != nil {
		return fmt.Errorf("发送邮件失败: %w", err)
	}
	return nil
}

// LogMailer 未配置 SMTP 时只写日志
type LogMailer struct {
	logger *log.Logger
}

func NewLogMailer(l *log.Logger) *LogMailer {
	return &LogMailer{logger: l}
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, msg ResetMessage) error {
	m.logger.Info("SMTP 未配置，跳过重置邮件", "to", msg.To, "expires_at", msg.ExpiresAt)
	return nil
}

// NewMailer Host 为空时返回 LogMailer
func NewMailer(cfg config.SMTPConfig, l *log.Logger) Mailer {
	if cfg.Host == "" {
		return NewLogMailer(l)
	}
	return NewSMTPMailer(cfg)
}
