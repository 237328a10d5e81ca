// Package logger builds *slog.Logger values for otpvault components.
//
// New takes functional options for format, level, static attributes and
// context extractors. Every logger it returns also emits the operation name
// stored with WithOperation, so a single password change or clock sync can
// be followed across packages.
//
// # Usage
//
//	log := logger.New(logger.WithEnvironment("production", "otpvault"))
//	logger.SetAsDefault(log)
//
//	ctx = logger.WithOperation(ctx, "change_password")
//	log.InfoContext(ctx, "secrets re-encrypted", logger.EntryCount(n))
//
// Attribute helpers in attr.go keep key names consistent: Error, Component,
// Duration, Server, Offset, RoundTrip, Level, EntryID, EntryCount. Error
// returns an empty attribute for a nil error so call sites need no nil check.
package logger
