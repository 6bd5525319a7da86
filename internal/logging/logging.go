package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns the relay logger at info level.
func New() *slog.Logger {
	return NewWithLevel("info")
}

// NewWithLevel builds the redacting text logger on stdout. Unknown levels fall
// back to info.
func NewWithLevel(level string) *slog.Logger {
	return NewTo(os.Stdout, level)
}

// NewTo writes redacted key=value records to w.
func NewTo(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redact,
	}))
}

// ParseLevel maps a level name onto slog levels.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if isSecretKey(a.Key) {
		a.Value = slog.StringValue("[redacted]")
	}
	return a
}

// isSecretKey matches signing material and API credentials by attribute name.
func isSecretKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range []string{"secret", "pass", "mnemonic", "private", "credential"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return strings.HasSuffix(k, "token") || strings.HasSuffix(k, "key")
}
