package dds

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// logger is the package-level structured logger.
// Set DDS_LOG=DEBUG|INFO|WARN|ERROR to control verbosity at runtime.
// Default is WARN so production binaries are silent.
var logger = func() *slog.Logger {
	level := slog.LevelWarn
	if v := os.Getenv("DDS_LOG"); v != "" {
		_ = level.UnmarshalText([]byte(v))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}()

// SetLogger replaces the package logger. Call it before creating entities.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// panicLogs bounds how often listener panics are logged with their stack.
// A misbehaving listener fires on every sample. It is shared by all
// participants; the most recently built one sets the rate.
var panicLogs atomic.Pointer[rate.Limiter]

func init() {
	setPanicLogRate(DefaultConfig().ListenerErrorLogsPerSecond)
}

func setPanicLogRate(perSecond float64) {
	limit := panicLogLimit(perSecond)
	if cur := panicLogs.Load(); cur != nil && cur.Limit() != limit {
		logger.Debug("listener panic log rate changed", "from", float64(cur.Limit()), "to", perSecond)
	}
	panicLogs.Store(rate.NewLimiter(limit, max(1, int(perSecond))))
}

func panicLogLimit(perSecond float64) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

// safeCall runs fn and recovers any panic, returning it as an error.
// Every listener trampoline goes through it so a user callback can never
// unwind into the runtime's dispatch thread.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if panicLogs.Load().Allow() {
				logger.Error("panic in listener callback",
					"recover", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()))
			}
			err = fmt.Errorf("panic in callback: %v", r)
		}
	}()
	return fn()
}
