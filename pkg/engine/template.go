// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/quote"
)

// Template is the engine's template-literal entry point (§4.10): it joins
// literalParts and values through pkg/quote's interpolation (C1), then runs
// the result as a shell command — the same "tagged template" ergonomics as
// the source system, expressed in Go as a method taking the parts Go's
// template/text or a hand-rolled tag helper would hand it.
//
// literalParts must have one more element than values, matching a template
// literal with N holes (N+1 literal segments); callers assembling this from
// fmt-style call sites typically split on a fixed delimiter first.
func (e *Engine) Template(literalParts []string, values []any) *RunningHandle {
	return e.With().Template(literalParts, values)
}

// Template is Chain's equivalent entry point, honoring whatever adapter/cwd/
// env/timeout configuration the chain already carries.
func (c *Chain) Template(literalParts []string, values []any) *RunningHandle {
	script := quote.Interpolate(quote.Default(), literalParts, values)
	cmd, err := c.build(script, command.WithShell(true))
	if err != nil {
		return failedHandle(err)
	}
	return newHandle(c.engine, cmd)
}
