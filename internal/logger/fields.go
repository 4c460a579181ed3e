package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements for log aggregation and querying.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for operation correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID

	// ========================================================================
	// Virtual Tree
	// ========================================================================
	KeyMountPoint = "mount_point" // Mount point string form
	KeyParent     = "parent"      // Parent mount point of a nested archive
	KeyScheme     = "scheme"      // Driver scheme: tar, tar.gz, tar.raes, ...
	KeyController = "controller"  // Controller instance ID
	KeyState      = "state"       // Mount state: reset, mounted
	KeyDepth      = "depth"       // Nesting depth of the mount point

	// ========================================================================
	// Entries
	// ========================================================================
	KeyPath    = "path"    // Entry path inside an archive
	KeyType    = "type"    // Entry type: file, directory
	KeySize    = "size"    // Entry or archive size in bytes
	KeyEntries = "entries" // Number of entries in a file system
	KeyDirty   = "dirty"   // Whether unsynchronized changes exist

	// ========================================================================
	// Locking
	// ========================================================================
	KeyLockMode = "lock_mode" // read, write
	KeyAttempt  = "attempt"   // Retry attempt at the escalation boundary

	// ========================================================================
	// Codecs and Keys
	// ========================================================================
	KeyFilter      = "filter"       // Stream filter: gzip, zstd, lz4, raes
	KeyKeyStrength = "key_strength" // AES key strength in bits

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyOperation  = "operation"   // Operation name
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Error code name
	KeyCount      = "count"       // Generic counter
	KeyHostPath   = "host_path"   // Backing file on the host
	KeyEvent      = "event"       // Watcher event
)

// DurationMs returns an attribute for a duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns an attribute for an error; nil errors produce an empty attribute
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
