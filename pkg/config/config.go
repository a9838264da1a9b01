package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	App struct {
		Name     string `yaml:"name"`
		Env      string `yaml:"env"`
		Timezone string `yaml:"timezone"`
	} `yaml:"app"`

	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	API       APIConfig       `yaml:"api"`
	Auth      AuthConfig      `yaml:"auth"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	SMTP      SMTPConfig      `yaml:"smtp"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DatabaseConfig 数据库配置，driver 取 postgres、sqlite 或 memory
type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"dbname"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlite_path"`
}

// DSN 构建 postgres 连接字符串
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig Redis配置，Addr 为空时不启用缓存
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// NATSConfig NATS配置，URL 为空时不发布消息
type NATSConfig struct {
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"`
}

// APIConfig HTTP 服务配置
type APIConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
	ResetTTL          time.Duration `yaml:"reset_ttl"`
	AnonKey           string        `yaml:"anon_key"`
	MinPasswordLength int           `yaml:"min_password_length"`
}

// AnalysisConfig AI 分析服务配置
type AnalysisConfig struct {
	ServiceURL    string        `yaml:"service_url"`
	Timeout       time.Duration `yaml:"timeout"`
	WindowDays    int           `yaml:"window_days"`
	MinEvents     int           `yaml:"min_events"`
	DefaultLocale string        `yaml:"default_locale"`
	SaveTimeout   time.Duration `yaml:"save_timeout"`
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	InsightsSpec     string `yaml:"insights_spec"`
	ActiveWindowDays int    `yaml:"active_window_days"`
}

// SMTPConfig 邮件配置，Host 为空时重置邮件只写日志
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	ResetURL string `yaml:"reset_url"`
}

// LoadConfig 从文件加载配置
func LoadConfig(path string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	overrideFromEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

// Default 返回只包含默认值的配置
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

// applyDefaults 为未设置的字段填充默认值
func applyDefaults(config *Config) {
	setString(&config.App.Name, "mindtrack")
	setString(&config.App.Env, "dev")
	setString(&config.App.Timezone, "Asia/Jerusalem")

	setString(&config.Log.Level, "info")
	setInt(&config.Log.MaxSizeMB, 10)
	setInt(&config.Log.MaxBackups, 3)
	setInt(&config.Log.MaxAgeDays, 28)

	setString(&config.Database.Driver, "postgres")
	setString(&config.Database.Host, "localhost")
	setInt(&config.Database.Port, 5432)
	setString(&config.Database.User, "postgres")
	setString(&config.Database.DBName, "mindtrack")
	setString(&config.Database.SSLMode, "disable")
	setString(&config.Database.SQLitePath, "mindtrack.db")

	setDuration(&config.Redis.TTL, 30*24*time.Hour)

	setString(&config.NATS.ClientID, "mindtrack")

	setString(&config.API.Port, "8080")
	setDuration(&config.API.ReadTimeout, 15*time.Second)
	// 写超时需覆盖 AI 分析的 55 秒上限
	setDuration(&config.API.WriteTimeout, 70*time.Second)
	setDuration(&config.API.ShutdownTimeout, 5*time.Second)

	setDuration(&config.Auth.TokenTTL, 7*24*time.Hour)
	setDuration(&config.Auth.ResetTTL, time.Hour)
	setInt(&config.Auth.MinPasswordLength, 6)

	setDuration(&config.Analysis.Timeout, 55*time.Second)
	setInt(&config.Analysis.WindowDays, 30)
	setInt(&config.Analysis.MinEvents, 5)
	setString(&config.Analysis.DefaultLocale, "he")
	setDuration(&config.Analysis.SaveTimeout, 10*time.Second)

	setString(&config.Scheduler.InsightsSpec, "0 30 3 * * *")
	setInt(&config.Scheduler.ActiveWindowDays, 7)

	setInt(&config.SMTP.Port, 587)
}

// overrideFromEnv 使用环境变量覆盖配置
func overrideFromEnv(config *Config) {
	envString("APP_NAME", &config.App.Name)
	envString("APP_ENV", &config.App.Env)
	envString("APP_TIMEZONE", &config.App.Timezone)

	envString("LOG_LEVEL", &config.Log.Level)
	envString("LOG_FILE", &config.Log.File)

	// 数据库配置
	envString("DB_DRIVER", &config.Database.Driver)
	envString("DB_HOST", &config.Database.Host)
	envInt("DB_PORT", &config.Database.Port)
	envString("DB_USER", &config.Database.User)
	envString("DB_PASSWORD", &config.Database.Password)
	envString("DB_NAME", &config.Database.DBName)
	envString("DB_SSLMODE", &config.Database.SSLMode)
	envString("SQLITE_PATH", &config.Database.SQLitePath)

	envString("REDIS_ADDR", &config.Redis.Addr)
	envString("REDIS_PASSWORD", &config.Redis.Password)
	envInt("REDIS_DB", &config.Redis.DB)

	envString("NATS_URL", &config.NATS.URL)
	envString("NATS_CLIENT_ID", &config.NATS.ClientID)

	envString("API_PORT", &config.API.Port)

	envString("JWT_SECRET", &config.Auth.JWTSecret)
	envString("ANON_KEY", &config.Auth.AnonKey)

	envString("ANALYSIS_SERVICE_URL", &config.Analysis.ServiceURL)
	envDuration("ANALYSIS_TIMEOUT", &config.Analysis.Timeout)
	envString("DEFAULT_LOCALE", &config.Analysis.DefaultLocale)

	envString("INSIGHTS_CRON", &config.Scheduler.InsightsSpec)

	envString("SMTP_HOST", &config.SMTP.Host)
	envInt("SMTP_PORT", &config.SMTP.Port)
	envString("SMTP_USERNAME", &config.SMTP.Username)
	envString("SMTP_PASSWORD", &config.SMTP.Password)
	envString("SMTP_FROM", &config.SMTP.From)
	envString("RESET_URL", &config.SMTP.ResetURL)
}

// GetDefaultConfigPath 获取默认配置文件路径
func GetDefaultConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev" // 默认开发环境
	}

	return fmt.Sprintf("configs/%s/app.yaml", env)
}

func envString(key string, dst *string) {
	if env := os.Getenv(key); env != "" {
		*dst = env
	}
}

func envInt(key string, dst *int) {
	if env := os.Getenv(key); env != "" {
		if v, err := strconv.Atoi(env); err == nil {
			*dst = v
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if env := os.Getenv(key); env != "" {
		if v, err := time.ParseDuration(env); err == nil {
			*dst = v
		}
	}
}

func setString(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}
