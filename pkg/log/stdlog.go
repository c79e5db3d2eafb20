package log

import (
	"go.uber.org/zap"
)

// RedirectStdLog routes the standard library logger into l at info level.
// The returned func restores the previous behavior.
func RedirectStdLog(l Logger) func() {
	zl, ok := l.(*zapLogger)
	if !ok {
		return func() {}
	}
	return zap.RedirectStdLog(zl.z.WithOptions(zap.AddCallerSkip(-1)))
}
