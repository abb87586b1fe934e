package logger

import (
	"log/slog"
	"time"
)

// Error returns an "error" attribute, or an empty Attr for a nil error so it
// can be passed unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// SessionID tags a record with the session identity.
func SessionID(id string) slog.Attr {
	return slog.String("session_id", id)
}

// RemoteAddr tags a record with the peer address.
func RemoteAddr(addr string) slog.Attr {
	return slog.String("remote_addr", addr)
}

// Version tags a record with a document version.
func Version(v uint64) slog.Attr {
	return slog.Uint64("version", v)
}

// Component tags a record with the emitting component.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Elapsed records the time since start.
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
