// SPDX-License-Identifier: MPL-2.0

package adapter

import (
	"context"

	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

// Adapter is the operation set every execution backend implements.
type Adapter interface {
	// Name returns the adapter's tag, used in Result.AdapterTag and in
	// AdapterSelector matching ("local", "ssh", "docker", "mock", or a
	// custom name).
	Name() string

	// Execute runs cmd and returns its Result, or a failure from the §3
	// taxonomy. Exactly one of the two is ever produced.
	Execute(ctx context.Context, cmd *command.Command) (*result.Result, error)

	// ExecuteSync runs cmd synchronously. Adapters that cannot support this
	// (e.g. a live stdin stream, or a backend with no synchronous path)
	// fail with *result.AdapterUnavailableError.
	ExecuteSync(ctx context.Context, cmd *command.Command) (*result.Result, error)

	// IsAvailable is a cheap probe used by the engine for graceful
	// degradation; it must not block on a real execution.
	IsAvailable(ctx context.Context) bool

	// Dispose idempotently releases all pooled resources. Safe to call
	// any number of times.
	Dispose() error
}
