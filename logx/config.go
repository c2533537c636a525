package logx

import (
	"io"
	"log/slog"
	"strings"
)

type RotateMode int

const (
	RotateHourly RotateMode = iota // 按小时切
	RotateSize                     // 按大小切
)

type Config struct {
	AppName string     // 应用名，用于文件名前缀
	Level   slog.Level // 最小日志级别

	// 日志目录；为空则不写文件
	LogDir string

	ConsoleEnabled bool // 是否输出到控制台
	ConsoleColored bool // 控制台是否彩色输出

	// 额外输出（比如测试里收集日志），每条一行 JSON
	Writer io.Writer

	Rotate RotateMode // 滚动模式

	// RotateSize 模式用：超过 size 就切新文件
	MaxFileSizeMB int
	// 最多保留多少个历史文件（按修改时间排序）
	MaxBackups int

	// 异步队列大小（<=0 使用默认 10000）
	QueueSize int
}

// ParseLevel 解析 trace/debug/info/warn(ing)/error，无法识别时返回 info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
