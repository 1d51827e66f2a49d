// SPDX-License-Identifier: MPL-2.0

// Package adapter defines the execution-backend contract (Adapter) and the
// shared services (Base) that every concrete backend under
// internal/adapter/* composes: default merging, environment composition,
// the timeout/cancellation race, result assembly, and error wrapping.
//
// Concrete adapters live under internal/adapter/ since callers interact
// with them only through pkg/engine and the Adapter interface, never by
// importing a backend package directly.
package adapter
