// SPDX-License-Identifier: MPL-2.0
// Copyright (C) 2024 Emir Aganovic

package media

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is the package-wide structured logger used by C2-C6. Callers embed
// the session's SSRC/remote fields on each call site rather than creating
// per-component sub-loggers, matching the teacher's media package style.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

// SetLogger overrides the package logger. Call once at startup, before any
// session is created.
func SetLogger(l zerolog.Logger) {
	Logger = l
}
