// Package logger provides the process-wide structured logger.
//
// It wraps log/slog behind package-level functions so that every component
// logs with the same handler, level and field keys:
//
//	logger.Debug("mounted archive", logger.KeyMountPoint, mp, logger.KeyEntries, n)
//	logger.WarnCtx(ctx, "sync failed", logger.KeyError, err)
//
// The *Ctx variants prepend the LogContext fields stored in the context.
package logger
