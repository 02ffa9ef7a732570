package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewDefault 根据日志级别字符串构造默认的 slog Logger。
//
// 输出为 JSON 格式，写到标准输出；未知级别回退到 info。
func NewDefault(level string) *slog.Logger {
	return New(level, "json")
}

// New 构造 slog Logger。
//
// 参数:
//
//	level: 日志级别 debug / info / warn / error
//	format: 输出格式 json / text
func New(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
