// Package pkg provides shared utilities for the mxusb device stack.
//
// This package contains common functionality used by the constant-memory,
// descriptor, device and simulation packages:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel errors for protocol and descriptor build failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with component context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogDebug(pkg.ComponentControl, "setup received", "request", setup.String())
//
// # Errors
//
// Errors are sentinel values checked with [errors.Is]:
//
//	if errors.Is(err, pkg.ErrStall) {
//	    // the device rejected the request
//	}
package pkg
