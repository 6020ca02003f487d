// Package nlog is a small leveled logger used throughout tscore.
//
// Each line is written straight to stderr under a mutex, prefixed with a
// severity letter and a timestamp; there is no buffering and no
// rotation/file-split machinery.
package nlog

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type severity int32

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{'I', 'W', 'E'}

var (
	toStderr    atomic.Bool
	minSeverity atomic.Int32
	mu          sync.Mutex
)

func init() {
	toStderr.Store(true)
}

// SetOutputToStderr toggles whether log lines are written to stderr.
// Off by default only in tests that want quiet output.
func SetOutputToStderr(v bool) { toStderr.Store(v) }

// SetLevel filters out messages below the given severity ("info", "warn", "error").
func SetLevel(level string) {
	switch level {
	case "warn", "warning":
		minSeverity.Store(int32(sevWarn))
	case "error", "err":
		minSeverity.Store(int32(sevErr))
	default:
		minSeverity.Store(int32(sevInfo))
	}
}

func write(sev severity, format string, args ...any) {
	if int32(sev) < minSeverity.Load() {
		return
	}
	if !toStderr.Load() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().Format("15:04:05.000000")
	fmt.Fprintf(os.Stderr, "%c %s ", sevChar[sev], now)
	if format == "" {
		fmt.Fprintln(os.Stderr, args...)
	} else {
		fmt.Fprintf(os.Stderr, format, args...)
		fmt.Fprintln(os.Stderr)
	}
}

func Infof(format string, args ...any)    { write(sevInfo, format, args...) }
func Infoln(args ...any)                  { write(sevInfo, "", args...) }
func Warningf(format string, args ...any) { write(sevWarn, format, args...) }
func Warningln(args ...any)               { write(sevWarn, "", args...) }
func Errorf(format string, args ...any)   { write(sevErr, format, args...) }
func Errorln(args ...any)                 { write(sevErr, "", args...) }
