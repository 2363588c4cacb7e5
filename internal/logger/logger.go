// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger provides the structured logging every other package
// reaches for (store transactions, the tracer's dispatch loop, the CLI):
// a handler wrapping slog's text or JSON handler that renames the level
// attribute to "severity" and adds a TRACE level below DEBUG for the
// noisiest diagnostic output.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Severity levels: the four standard slog levels plus a trace level
// below debug for per-syscall-volume output.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var defaultLogger = slog.New(newHandler(os.Stderr, "text", LevelInfo))

// Init replaces the package logger, directing output to w in either
// "text" or "json" format at the given minimum severity. Called once
// from cmd/agentfs's root command after flags are parsed.
func Init(w io.Writer, format string, level slog.Level) {
	defaultLogger = slog.New(newHandler(w, format, level))
}

func newHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				a.Key = "severity"
			}
			return a
		},
	}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func Tracef(ctx context.Context, format string, args ...any) {
	defaultLogger.Log(ctx, LevelTrace, sprintf(format, args...))
}

func Debugf(ctx context.Context, format string, args ...any) {
	defaultLogger.Log(ctx, LevelDebug, sprintf(format, args...))
}

func Infof(ctx context.Context, format string, args ...any) {
	defaultLogger.Log(ctx, LevelInfo, sprintf(format, args...))
}

func Warnf(ctx context.Context, format string, args ...any) {
	defaultLogger.Log(ctx, LevelWarn, sprintf(format, args...))
}

func Errorf(ctx context.Context, format string, args ...any) {
	defaultLogger.Log(ctx, LevelError, sprintf(format, args...))
}

// For returns a logger scoped to subsystem, tagging every record it
// writes with a "subsystem" attribute so a multi-package process's log
// stream stays attributable to store/tracer/cmd without per-call-site
// tagging. Callers should fetch one where they log, not cache it in a
// package variable initialized before Init runs.
func For(subsystem string) *slog.Logger {
	return defaultLogger.With("subsystem", subsystem)
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
