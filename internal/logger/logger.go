package logger // 全局日志记录器及组件日志适配

import (
	"context" // 在日志中传递请求范围的数据
	"fmt"     // 错误包装
	"io"      // I/O接口
	stdlog "log"
	"os"      // 标准输出与日志文件
	"strings" // 前缀处理
	"time"    // 时间戳格式

	"github.com/rs/zerolog"     // 高性能日志库
	"github.com/rs/zerolog/log" // zerolog的全局日志实例
)

var (
	// Logger 默认的全局日志实例，应用中其他地方可以直接使用
	Logger = log.Logger
)

// Config 日志配置结构体
type Config struct {
	Level        string    `json:"level" yaml:"level"`                 // 日志级别：debug, info, warn, error等
	Format       string    `json:"format" yaml:"format"`               // 日志格式：json 或 pretty
	TimeFormat   string    `json:"time_format" yaml:"time_format"`     // 时间戳的格式
	ReportCaller bool      `json:"report_caller" yaml:"report_caller"` // 是否报告调用者的文件名和行号
	File         string    `json:"file" yaml:"file"`                   // 额外写入的日志文件，为空则只写标准输出
	Output       io.Writer `json:"-" yaml:"-"`                         // 控制台输出，默认标准输出
}

// Init 初始化日志系统；返回的 io.Closer 用于关闭日志文件
func Init(config Config) (io.Closer, error) {
	level, err := zerolog.ParseLevel(config.Level) // 解析字符串格式的日志级别
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel // 默认使用Info级别
	}
	zerolog.SetGlobalLevel(level)

	// 控制台输出
	out := config.Output
	if out == nil {
		out = os.Stdout
	}
	console := out
	if config.Format == "pretty" {
		console = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: config.TimeFormat,
		}
	}

	if config.TimeFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	} else {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	// 文件输出始终是 JSON，便于采集
	writers := []io.Writer{console}
	var closer io.Closer = nopCloser{}
	if config.File != "" {
		f, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("打开日志文件失败: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}

	contextLogger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp()

	if config.ReportCaller {
		contextLogger = contextLogger.Caller()
	}

	// 替换全局日志记录器
	Logger = contextLogger.Logger()
	log.Logger = Logger
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Std 返回写入全局 zerolog 的标准库 *log.Logger，供只接受 *log.Logger 的组件使用
// prefix 形如 "[CandidateScorer] "
func Std(prefix string) *stdlog.Logger {
	return stdlog.New(stdWriter{component: strings.Trim(strings.TrimSpace(prefix), "[]")}, "", 0)
}

// stdWriter 把标准库日志行转成 zerolog 事件；每次写入时读取全局 Logger，Init 之后创建的也生效
type stdWriter struct {
	component string
}

func (w stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	ev := Logger.Info()
	switch {
	case strings.Contains(msg, "ERROR") || strings.Contains(msg, "失败"):
		ev = Logger.Error()
	case strings.Contains(msg, "WARN") || strings.Contains(msg, "警告"):
		ev = Logger.Warn()
	case strings.Contains(msg, "DEBUG"):
		ev = Logger.Debug()
	}
	if w.component != "" {
		ev = ev.Str("component", w.component)
	}
	ev.Msg(msg)
	return len(p), nil
}

// Debug 开始一条调试级别的日志事件
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info 开始一条信息级别的日志事件
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn 开始一条警告级别的日志事件
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error 开始一条错误级别的日志事件
func Error() *zerolog.Event {
	return Logger.Error()
}

// Fatal 开始一条致命错误级别的日志事件，记录后程序将退出
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// Ctx 从上下文中获取日志记录器（如果存在）
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithContext 将全局日志记录器添加到上下文中，并返回一个新的上下文
func WithContext(ctx context.Context) context.Context {
	return Logger.WithContext(ctx)
}
