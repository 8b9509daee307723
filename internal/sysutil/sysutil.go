// Package sysutil holds the process bootstrap helpers used by cmd/server:
// logger setup, version resolution, and environment flag parsing.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogOptions configures the global logger.
type LogOptions struct {
	Level   string // debug|info|warn|error|fatal|panic; anything else is info
	Pretty  bool   // human-readable console output for local development
	Service string // stamped on every line as "service"
	Version string // stamped on every line as "version"
	Out     io.Writer
}

// SetupLogging sets the global zerolog level and replaces log.Logger with a
// logger stamped with the service name and version. It returns the level in
// effect.
func SetupLogging(o LogOptions) zerolog.Level {
	level := ParseLevel(o.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := o.Out
	if out == nil {
		out = os.Stderr
	}
	if o.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(out).With().Timestamp()
	if o.Service != "" {
		ctx = ctx.Str("service", o.Service)
	}
	if o.Version != "" {
		ctx = ctx.Str("version", o.Version)
	}
	log.Logger = ctx.Logger()
	return level
}

// ParseLevel maps a configured level name to a zerolog level. "warning" is
// accepted for warn; empty, unknown, and the non-filtering zerolog levels
// (trace, disabled) fall back to info.
func ParseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	switch lvl {
	case zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel,
		zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return lvl
	}
	return zerolog.InfoLevel
}

// IsTruthy reports whether an environment flag value means true:
// "1", "true", "yes", "y", or "on", case-insensitively.
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}

// ResolveVersion prefers a non-blank APP_VERSION over the version linked in
// at build time, and reports "dev" when neither is set.
func ResolveVersion(build string) string {
	for _, v := range []string{os.Getenv("APP_VERSION"), build} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return "dev"
}
