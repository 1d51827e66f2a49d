// SPDX-License-Identifier: MPL-2.0

package engine

import "github.com/corexec/uce/pkg/command"

// Chain is an immutable, chainable configuration view over an Engine:
// each With*/Cd/Env/Timeout/Shell call returns a new Chain carrying
// additional command.Options, sharing the underlying Engine (and its
// adapters) by reference rather than copying it. Calling Run/RunOpts
// applies the accumulated options, in order, on top of whatever the call
// site supplies.
type Chain struct {
	engine *Engine
	opts   []command.Option
}

// With returns the engine's base chain — the starting point for fluent
// configuration, mirroring invowk's registry-backed dispatch generalized
// into a builder.
func (e *Engine) With() *Chain {
	return &Chain{engine: e}
}

func (c *Chain) extend(opt command.Option) *Chain {
	next := make([]command.Option, len(c.opts), len(c.opts)+1)
	copy(next, c.opts)
	next = append(next, opt)
	return &Chain{engine: c.engine, opts: next}
}

// With applies arbitrary command.Options on top of this chain's
// accumulated configuration, returning a new Chain — the Go expression of
// §4.10's `with(partial)`, where "partial" is whatever subset of Command
// fields the caller's Options touch.
func (c *Chain) With(opts ...command.Option) *Chain {
	next := c
	for _, opt := range opts {
		next = next.extend(opt)
	}
	return next
}

// SSH pins the adapter to SSH with the given options.
func (c *Chain) SSH(opts command.SSHOptions) *Chain {
	return c.extend(command.WithSSH(opts))
}

// Docker pins the adapter to Docker with the given options.
func (c *Chain) Docker(opts command.DockerOptions) *Chain {
	return c.extend(command.WithDocker(opts))
}

// Local pins the adapter to the local host, undoing any earlier SSH/Docker
// selection in this chain.
func (c *Chain) Local() *Chain {
	return c.extend(command.WithAdapter(command.AdapterLocal))
}

// Cd sets the working directory.
func (c *Chain) Cd(dir string) *Chain {
	return c.extend(command.WithCwd(dir))
}

// Env merges additional environment variables on top of whatever the chain
// (or the call-site command) already carries.
func (c *Chain) Env(env map[string]string) *Chain {
	return c.extend(command.WithEnv(env))
}

// Timeout sets the wall-clock timeout in milliseconds.
func (c *Chain) Timeout(ms int64) *Chain {
	return c.extend(command.WithTimeout(ms))
}

// Shell enables shell interpretation using the platform default shell.
func (c *Chain) Shell(enabled bool) *Chain {
	return c.extend(command.WithShell(enabled))
}

// Quiet suppresses stdout/stderr passthrough, capturing both as pipes.
func (c *Chain) Quiet() *Chain {
	return c.extend(func(cmd *command.Command) {
		cmd.Stdout = command.StdioPipe
		cmd.Stderr = command.StdioPipe
	})
}

// build constructs a Command for program, applying the chain's accumulated
// options before extra (so a call-site option can still override a chained
// default, since Options are applied in slice order and later writes win).
func (c *Chain) build(program string, extra ...command.Option) (*command.Command, error) {
	all := make([]command.Option, 0, len(c.opts)+len(extra))
	all = append(all, c.opts...)
	all = append(all, extra...)
	return command.New(program, all...)
}

// Run builds and executes program with args through this chain's engine,
// returning a RunningHandle.
func (c *Chain) Run(program string, args ...string) *RunningHandle {
	cmd, err := c.build(program, command.WithArgs(args...))
	if err != nil {
		return failedHandle(err)
	}
	return newHandle(c.engine, cmd)
}

// RunOpts is like Run but accepts arbitrary command.Options, for callers
// needing stdin wiring, explicit adapter overrides, etc.
func (c *Chain) RunOpts(program string, opts ...command.Option) *RunningHandle {
	cmd, err := c.build(program, opts...)
	if err != nil {
		return failedHandle(err)
	}
	return newHandle(c.engine, cmd)
}
