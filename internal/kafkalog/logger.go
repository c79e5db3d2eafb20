package kafkalog

import (
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	logpkg "github.com/rzbill/flolog/pkg/log"
)

// kgoLogger routes franz-go client logs to the logging facade. Client info
// logs are chatty and go to debug.
type kgoLogger struct {
	l     logpkg.Logger
	level kgo.LogLevel
}

func newKgoLogger(l logpkg.Logger) kgoLogger {
	level := kgo.LogLevelWarn
	if l.GetLevel() <= logpkg.DebugLevel {
		level = kgo.LogLevelInfo
	}
	return kgoLogger{l: l.WithComponent("kgo"), level: level}
}

func (k kgoLogger) Level() kgo.LogLevel { return k.level }

func (k kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	fields := make([]logpkg.Field, 0, len(keyvals)/2)
	for i := 0; i+1 < len(keyvals); i += 2 {
		fields = append(fields, logpkg.Any(fmt.Sprint(keyvals[i]), keyvals[i+1]))
	}
	switch level {
	case kgo.LogLevelError:
		k.l.Error(msg, fields...)
	case kgo.LogLevelWarn:
		k.l.Warn(msg, fields...)
	default:
		k.l.Debug(msg, fields...)
	}
}
