// pkg/logger/logger.go
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"MindTrack/pkg/config"
)

var (
	// Logger 全局日志实例
	Logger *log.Logger

	fallbackOnce sync.Once
	fallback     *log.Logger
)

// Init 按配置初始化全局日志，设置了文件时同时写入 stderr 与滚动文件
func Init(cfg config.LogConfig, prefix string) error {
	var writer io.Writer = os.Stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return err
		}
		writer = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}

	Logger = log.NewWithOptions(writer, log.Options{
		ReportCaller:    level == log.DebugLevel,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          prefix,
	})
	return nil
}

// Default 返回全局日志，未初始化时返回写 stderr 的日志
func Default() *log.Logger {
	if Logger != nil {
		return Logger
	}
	fallbackOnce.Do(func() {
		fallback = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "mindtrack"})
	})
	return fallback
}

// Discard 返回丢弃所有输出的日志，供测试使用
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// Or 在 l 为 nil 时返回默认日志
func Or(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return Default()
}
