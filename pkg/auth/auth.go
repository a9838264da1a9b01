// pkg/auth/auth.go
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"MindTrack/pkg/config"
	"MindTrack/pkg/logger"
	"MindTrack/pkg/model"
	"MindTrack/pkg/repository"
)

var (
	ErrAlreadyRegistered  = errors.New("该邮箱已注册")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrInvalidToken       = errors.New("令牌无效或已过期")
	ErrWeakPassword       = errors.New("密码太短")
	ErrInvalidEmail       = errors.New("邮箱格式错误")
	ErrInvalidTimezone    = errors.New("未知时区")
)

// 会话状态事件
const (
	EventSignedIn         = "signed_in"
	EventSignedOut        = "signed_out"
	EventPasswordRecovery = "password_recovery"
	EventUserUpdated      = "user_updated"
)

// 令牌用途
const (
	purposeAccess = "access"
	purposeReset  = "reset"
)

// StateChange 推送给订阅者的会话变化
type StateChange struct {
	Event  string    `json:"event"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// Session 登录会话
type Session struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        *model.User `json:"user"`
}

type claims struct {
	Email   string `json:"email,omitempty"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// Revoker 记录已注销的令牌
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Options 认证参数
type Options struct {
	Secret            []byte
	TokenTTL          time.Duration
	ResetTTL          time.Duration
	MinPasswordLength int
	ResetURL          string
}

// OptionsFromConfig 从配置构建认证参数
func OptionsFromConfig(cfg config.AuthConfig, smtp config.SMTPConfig) Options {
	return Options{
		Secret:            []byte(cfg.JWTSecret),
		TokenTTL:          cfg.TokenTTL,
		ResetTTL:          cfg.ResetTTL,
		MinPasswordLength: cfg.MinPasswordLength,
		ResetURL:          smtp.ResetURL,
	}
}

// Service 账户、会话与资料
type Service struct {
	users   repository.UserStore
	revoked Revoker
	mailer  Mailer
	opts    Options
	logger  *log.Logger
	now     func() time.Time

	mu          sync.Mutex
	nextID      int
	subscribers map[int]func(StateChange)
}

// NewService 创建认证服务，revoked 与 mailer 为空时使用内存实现与日志邮件
func NewService(users repository.UserStore, revoked Revoker, mailer Mailer, opts Options, l *log.Logger) *Service {
	l = logger.Or(l)
	if revoked == nil {
		revoked = NewMemoryRevoker()
	}
	if mailer == nil {
		mailer = NewLogMailer(l)
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 7 * 24 * time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	if opts.MinPasswordLength <= 0 {
		opts.MinPasswordLength = 6
	}
	if len(opts.Secret) == 0 {
		l.Warn("未配置 JWT 密钥，使用随机密钥，重启后已签发的令牌失效")
		opts.Secret = randomSecret()
	}
	return &Service{
		users:       users,
		revoked:     revoked,
		mailer:      mailer,
		opts:        opts,
		logger:      l,
		now:         time.Now,
		subscribers: make(map[int]func(StateChange)),
	}
}

func randomSecret() []byte {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		// crypto/rand 不可用时退化为两个 UUID
		return []byte(uuid.New().String() + uuid.New().String())
	}
	return secret
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp 注册新用户
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*model.User, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < s.opts.MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	user := &model.User{
		Email:                email,
		PasswordHash:         string(hash),
		DisplayName:          displayName,
		Locale:               model.DefaultLocale,
		Timezone:             model.DefaultTimezone,
		NotificationsEnabled: true,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	s.logger.Info("用户注册", "user_id", user.ID)
	return user, nil
}

// SignIn 校验密码并签发访问令牌
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	token, expiresAt, err := s.sign(user.ID, user.Email, purposeAccess, s.opts.TokenTTL)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("更新登录时间失败", "user_id", user.ID, "err", err)
	}
	user.LastLoginAt = &now

	s.notify(EventSignedIn, user.ID)
	return &Session{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt, User: user}, nil
}

// SignOut 注销令牌直到其过期
func (s *Service) SignOut(ctx context.Context, token string) error {
	c, err := s.parse(ctx, token, purposeAccess)
	if err != nil {
		return err
	}
	if err := s.revoked.Revoke(ctx, c.ID, c.ExpiresAt.Time); err != nil {
		return fmt.Errorf("注销令牌失败: %w", err)
	}
	s.notify(EventSignedOut, c.Subject)
	return nil
}

// CurrentSession 校验签名、过期与注销状态并加载用户
func (s *Service) CurrentSession(ctx context.Context, token string) (*Session, error) {
	c, err := s.parse(ctx, token, purposeAccess)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetUserByID(ctx, c.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return &Session{AccessToken: token, TokenType: "bearer", ExpiresAt: c.ExpiresAt.Time, User: user}, nil
}

// ResetPassword 发送重置链接，未注册的邮箱同样返回成功
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}

	token, expiresAt, err := s.sign(user.ID, user.Email, purposeReset, s.opts.ResetTTL)
	if err != nil {
		return err
	}
	link := token
	if s.opts.ResetURL != "" {
		link = s.opts.ResetURL + "?token=" + token
	}
	if err := s.mailer.SendPasswordReset(ctx, ResetMessage{To: user.Email, Name: user.DisplayName, Link: link, ExpiresAt: expiresAt}); err != nil {
		return fmt.Errorf("发送重置邮件失败: %w", err)
	}

	s.notify(EventPasswordRecovery, user.ID)
	return nil
}

// ConfirmReset 使用重置令牌设置新密码，令牌只能使用一次
func (s *Service) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < s.opts.MinPasswordLength {
		return ErrWeakPassword
	}
	c, err := s.parse(ctx, token, purposeReset)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("密码加密失败: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, c.Subject, string(hash)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if err := s.revoked.Revoke(ctx, c.ID, c.ExpiresAt.Time); err != nil {
		s.logger.Warn("注销重置令牌失败", "user_id", c.Subject, "err", err)
	}

	s.notify(EventUserUpdated, c.Subject)
	return nil
}

func (s *Service) Profile(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// UpdateProfile 只修改提供的字段
func (s *Service) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) (*model.User, error) {
	if update.Timezone != nil {
		if _, err := time.LoadLocation(*update.Timezone); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, *update.Timezone)
		}
	}
	if changes := update.Updates(); len(changes) > 0 {
		if err := s.users.UpdateProfile(ctx, userID, changes); err != nil {
			return nil, err
		}
		s.notify(EventUserUpdated, userID)
	}
	return s.users.GetUserByID(ctx, userID)
}

// Subscribe 注册会话变化回调，返回取消函数
func (s *Service) Subscribe(fn func(StateChange)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Service) notify(event, userID string) {
	s.mu.Lock()
	subscribers := make([]func(StateChange), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subscribers = append(subscribers, fn)
	}
	s.mu.Unlock()

	change := StateChange{Event: event, UserID: userID, At: s.now()}
	for _, fn := range subscribers {
		fn(change)
	}
}

func (s *Service) sign(userID, email, purpose string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.opts.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("签发令牌失败: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *Service) parse(ctx context.Context, token, purpose string) (*claims, error) {
	c := &claims{}
	parsed, err := jwt.ParseWithClaims(token, c, func(t *jwt.Token) (interface{}, error) {
		return s.opts.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || c.Purpose != purpose || c.Subject == "" || c.ID == "" {
		return nil, ErrInvalidToken
	}

	revoked, err := s.revoked.IsRevoked(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	return c, nil
}

// MemoryRevoker 进程内注销列表
type MemoryRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{revoked: make(map[string]time.Time)}
}

func (m *MemoryRevoker) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, exp := range m.revoked {
		if exp.Before(now) {
			delete(m.revoked, id)
		}
	}
	m.revoked[tokenID] = until
	return nil
}

func (m *MemoryRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[tokenID]
	return ok, nil
}
