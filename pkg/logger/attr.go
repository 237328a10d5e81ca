package logger

import (
	"log/slog"
	"time"
)

// Error returns an "error" attribute, or an empty Attr for nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component names the package emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Server records an NTP server address.
func Server(host string) slog.Attr {
	return slog.String("server", host)
}

// Offset records a clock offset in milliseconds, signed.
func Offset(d time.Duration) slog.Attr {
	return slog.Float64("offset_ms", float64(d)/float64(time.Millisecond))
}

func RoundTrip(d time.Duration) slog.Attr {
	return slog.Float64("round_trip_ms", float64(d)/float64(time.Millisecond))
}

// Level records a protection level. Accepts any fmt.Stringer.
func Level(level interface{ String() string }) slog.Attr {
	return slog.String("protection_level", level.String())
}

// EntryID identifies a vault entry.
func EntryID(id interface{ String() string }) slog.Attr {
	return slog.String("entry_id", id.String())
}

func EntryCount(n int) slog.Attr {
	return slog.Int("entry_count", n)
}
