package raftelect

import (
	"io"
	"log"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// raftHCLogger adapts slog.Logger to hashicorp/go-hclog.Logger, which
// Raft insists on.
type raftHCLogger struct {
	logger *slog.Logger
}

func (l *raftHCLogger) Log(level hclog.Level, msg string, args ...any) {
	switch level {
	case hclog.Trace, hclog.Debug:
		l.logger.Debug(msg, args...)
	case hclog.Info:
		l.logger.Info(msg, args...)
	case hclog.Warn:
		l.logger.Warn(msg, args...)
	case hclog.Error:
		l.logger.Error(msg, args...)
	default:
		l.logger.Info(msg, args...)
	}
}

func (l *raftHCLogger) Trace(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *raftHCLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *raftHCLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *raftHCLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *raftHCLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *raftHCLogger) IsTrace() bool { return false }
func (l *raftHCLogger) IsDebug() bool { return false }
func (l *raftHCLogger) IsInfo() bool  { return true }
func (l *raftHCLogger) IsWarn() bool  { return true }
func (l *raftHCLogger) IsError() bool { return true }

func (l *raftHCLogger) ImpliedArgs() []any { return nil }

func (l *raftHCLogger) With(args ...any) hclog.Logger {
	return &raftHCLogger{logger: l.logger.With(args...)}
}

func (l *raftHCLogger) Name() string { return "raft" }

func (l *raftHCLogger) Named(name string) hclog.Logger {
	return &raftHCLogger{logger: l.logger.With("component", name)}
}

func (l *raftHCLogger) ResetNamed(name string) hclog.Logger {
	return l.Named(name)
}

func (l *raftHCLogger) SetLevel(level hclog.Level) {}

func (l *raftHCLogger) GetLevel() hclog.Level { return hclog.Info }

func (l *raftHCLogger) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return nil
}

func (l *raftHCLogger) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return nil
}
