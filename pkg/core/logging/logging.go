// Copyright 2025 Philipp Hossner
//
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

// Package logging builds the process logger.
//
// Output is logfmt (slog.TextHandler). Supported levels, case-insensitive:
// ERROR, WARNING (or WARN), INFO, DEBUG. Anything else means INFO.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a logfmt logger writing to stdout.
func NewLogger(level string) *slog.Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo returns a logfmt logger writing to w.
func NewLoggerTo(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLogLevel(level),
	}))
}

// LevelFromVerbosity maps the numeric verbosity used by the config file and
// the VERBOSE environment variable to a level name: 0 is WARNING, 1 is INFO,
// 2 and above is DEBUG. Negative values mean ERROR.
func LevelFromVerbosity(verbose int) string {
	switch {
	case verbose < 0:
		return "ERROR"
	case verbose == 0:
		return "WARNING"
	case verbose == 1:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "ERROR":
		return slog.LevelError
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "INFO":
		return slog.LevelInfo
	case "DEBUG":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
