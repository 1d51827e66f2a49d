// SPDX-License-Identifier: MPL-2.0

// Package quote turns template-literal parts and interpolated values into a
// single shell-safe command string. It is the only line of defense against
// shell injection in the engine: every value that reaches a shell-interpreted
// adapter must pass through Interpolate first.
package quote
