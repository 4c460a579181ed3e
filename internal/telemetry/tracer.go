package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for archive operations.
const (
	// ========================================================================
	// Virtual tree attributes
	// ========================================================================
	AttrMountPoint = "arcfs.mount_point" // Mount point string form
	AttrScheme     = "arcfs.scheme"      // Driver scheme
	AttrDepth      = "arcfs.depth"       // Nesting depth
	AttrController = "arcfs.controller"  // Controller instance ID

	// ========================================================================
	// Content attributes
	// ========================================================================
	AttrEntries = "fs.entries" // Number of entries

	// ========================================================================
	// Mount state attributes
	// ========================================================================
	AttrAutoCreate = "arcfs.auto_create" // Whether a missing archive is created
	AttrDirty      = "arcfs.dirty"       // Whether the file system had changes
	AttrUnmount    = "arcfs.unmount"     // Whether sync unmounts
	AttrForce      = "arcfs.force"       // Whether sync resets on failure
)

// Span names for operations.
// Format: <component>.<operation>
const (
	SpanControllerMount = "controller.mount"
	SpanControllerSync  = "controller.sync"
	SpanManagerSync     = "manager.sync"
	SpanManagerLookup   = "manager.lookup"
)

// ============================================================================
// Attribute helpers
// ============================================================================

// MountPoint returns an attribute for the mount point.
func MountPoint(mp string) attribute.KeyValue {
	return attribute.String(AttrMountPoint, mp)
}

// Scheme returns an attribute for the driver scheme.
func Scheme(s string) attribute.KeyValue {
	return attribute.String(AttrScheme, s)
}

// Depth returns an attribute for the nesting depth.
func Depth(d int) attribute.KeyValue {
	return attribute.Int(AttrDepth, d)
}

// Controller returns an attribute for the controller ID.
func Controller(id string) attribute.KeyValue {
	return attribute.String(AttrController, id)
}

// Entries returns an attribute for an entry count.
func Entries(n int) attribute.KeyValue {
	return attribute.Int(AttrEntries, n)
}

// AutoCreate returns an attribute for the auto-create flag.
func AutoCreate(v bool) attribute.KeyValue {
	return attribute.Bool(AttrAutoCreate, v)
}

// Dirty returns an attribute for the dirty flag.
func Dirty(v bool) attribute.KeyValue {
	return attribute.Bool(AttrDirty, v)
}

// Unmount returns an attribute for the unmount sync option.
func Unmount(v bool) attribute.KeyValue {
	return attribute.Bool(AttrUnmount, v)
}

// Force returns an attribute for the force sync option.
func Force(v bool) attribute.KeyValue {
	return attribute.Bool(AttrForce, v)
}

// ============================================================================
// Span helpers
// ============================================================================

// StartControllerSpan starts a span for a controller operation on mp.
func StartControllerSpan(ctx context.Context, name, mp, scheme string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs, MountPoint(mp), Scheme(scheme))
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(allAttrs...))
}

// StartManagerSpan starts a span for a manager operation.
func StartManagerSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}
