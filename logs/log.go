package logs

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// 定义日志级别常量（数值越大，级别越高）
const (
	LevelTrace   = iota // 0（最低，最详细）
	LevelDebug          // 1
	LevelVerbose        // 2
	LevelInfo           // 3
	LevelWarning        // 4
	LevelError          // 5（最高，最严重）
)

var logLevel atomic.Int32 // 全局日志级别

// 全局 Logger 实例
var std *nodeLogger

// Logger 可注入的日志接口，db / keeper / vm 都只依赖它
type Logger interface {
	Trace(format string, v ...interface{})
	Debug(format string, v ...interface{})
	Verbose(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
}

// nodeLogger 按级别分开的 log.Logger 集合
type nodeLogger struct {
	name          string
	level         int32 // <0 表示跟随全局级别
	traceLogger   *log.Logger
	debugLogger   *log.Logger
	verboseLogger *log.Logger
	infoLogger    *log.Logger
	warnLogger    *log.Logger
	errorLogger   *log.Logger
}

func init() {
	logLevel.Store(LevelInfo)
	std = newNodeLogger("", -1, os.Stdout, os.Stderr)
}

func newNodeLogger(name string, level int32, out, errOut io.Writer) *nodeLogger {
	flags := log.Ldate | log.Ltime | log.Lmicroseconds
	return &nodeLogger{
		name:          name,
		level:         level,
		traceLogger:   log.New(out, "[TRACE]   ", flags),
		debugLogger:   log.New(out, "[DEBUG]   ", flags),
		verboseLogger: log.New(out, "[VERBOSE] ", flags),
		infoLogger:    log.New(out, "[INFO]    ", flags),
		warnLogger:    log.New(out, "[WARN]    ", flags),
		errorLogger:   log.New(errOut, "[ERROR]   ", flags),
	}
}

// NewNodeLogger 创建带名称前缀的 Logger，level<0 时跟随全局级别
func NewNodeLogger(name string, level int) Logger {
	return newNodeLogger(name, int32(level), os.Stdout, os.Stderr)
}

// NewWriterLogger 输出到指定 writer（测试用）
func NewWriterLogger(name string, level int, w io.Writer) Logger {
	return newNodeLogger(name, int32(level), w, w)
}

// SetLevel 设置全局日志级别
func SetLevel(level int) {
	logLevel.Store(int32(level))
}

// ParseLevel 把 "debug" / "info" 等解析成级别常量
func ParseLevel(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "verbose":
		return LevelVerbose, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l *nodeLogger) enabled(level int32) bool {
	min := l.level
	if min < 0 {
		min = logLevel.Load()
	}
	return min <= level
}

func (l *nodeLogger) prefix(format string) string {
	if l.name == "" {
		return format
	}
	return "[" + l.name + "] " + format
}

func (l *nodeLogger) Trace(format string, v ...interface{}) {
	if l.enabled(LevelTrace) {
		l.traceLogger.Printf(l.prefix(format), v...)
	}
}

func (l *nodeLogger) Debug(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.debugLogger.Printf(l.prefix(format), v...)
	}
}

func (l *nodeLogger) Verbose(format string, v ...interface{}) {
	if l.enabled(LevelVerbose) {
		l.verboseLogger.Printf(l.prefix(format), v...)
	}
}

func (l *nodeLogger) Info(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.infoLogger.Printf(l.prefix(format), v...)
	}
}

func (l *nodeLogger) Warn(format string, v ...interface{}) {
	if l.enabled(LevelWarning) {
		l.warnLogger.Printf(l.prefix(format), v...)
	}
}

func (l *nodeLogger) Error(format string, v ...interface{}) {
	if l.enabled(LevelError) {
		l.errorLogger.Printf(l.prefix(format), v...)
	}
}

// 包级别的日志方法
func Trace(format string, v ...interface{})   { std.Trace(format, v...) }
func Debug(format string, v ...interface{})   { std.Debug(format, v...) }
func Verbose(format string, v ...interface{}) { std.Verbose(format, v...) }
func Info(format string, v ...interface{})    { std.Info(format, v...) }
func Warn(format string, v ...interface{})    { std.Warn(format, v...) }
func Error(format string, v ...interface{})   { std.Error(format, v...) }
