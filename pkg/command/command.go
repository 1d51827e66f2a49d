// SPDX-License-Identifier: MPL-2.0

// Package command defines Command, the immutable description of one
// intended execution, shared by every adapter.
package command

import (
	"context"
	"fmt"
	"io"
)

// StdioMode selects how an adapter wires one of a child's stdout/stderr streams.
type StdioMode int

const (
	// StdioPipe captures the stream (the default).
	StdioPipe StdioMode = iota
	// StdioInherit passes the stream through to the parent's untouched.
	StdioInherit
	// StdioIgnore discards the stream.
	StdioIgnore
)

// StdinKind identifies which of the four stdin shapes a Command carries.
type StdinKind int

const (
	// StdinNone means no stdin is supplied; the adapter closes/inherits
	// an empty stdin per its own convention.
	StdinNone StdinKind = iota
	// StdinBytes supplies inline bytes, written once then closed.
	StdinBytes
	// StdinText supplies inline text, written once then closed.
	StdinText
	// StdinStream supplies a byte stream, piped to the child.
	StdinStream
)

// Stdin carries exactly one of the four stdin shapes. Consumed exactly once
// by the adapter that executes the owning Command.
type Stdin struct {
	Kind   StdinKind
	Bytes  []byte
	Text   string
	Stream io.Reader
}

// NoStdin returns a Stdin carrying no input.
func NoStdin() Stdin { return Stdin{Kind: StdinNone} }

// BytesStdin returns a Stdin carrying inline bytes.
func BytesStdin(b []byte) Stdin { return Stdin{Kind: StdinBytes, Bytes: b} }

// TextStdin returns a Stdin carrying inline text.
func TextStdin(s string) Stdin { return Stdin{Kind: StdinText, Text: s} }

// StreamStdin returns a Stdin carrying a byte stream, piped to the child.
func StreamStdin(r io.Reader) Stdin { return Stdin{Kind: StdinStream, Stream: r} }

// AdapterSelector identifies which adapter should run a Command.
type AdapterSelector string

const (
	// AdapterAuto lets the engine pick based on AdapterOptions, defaulting to local.
	AdapterAuto AdapterSelector = ""
	AdapterLocal  AdapterSelector = "local"
	AdapterSSH    AdapterSelector = "ssh"
	AdapterDocker AdapterSelector = "docker"
	AdapterMock   AdapterSelector = "mock"
)

// SSHAuth carries one SSH authentication method. Exactly one of PrivateKey
// or Password should be set.
type SSHAuth struct {
	PrivateKey []byte // PEM-encoded private key bytes
	Passphrase string // optional, decrypts PrivateKey
	Password   string
}

// SSHOptions carries the SSH-adapter-specific extras for a Command.
type SSHOptions struct {
	Host string
	User string
	Port int // defaults to 22 when 0
	Auth SSHAuth

	// Sudo wraps the command with sudo when true.
	SudoEnabled  bool
	SudoPassword string // when empty, sudo runs with -n (no password)

	// PoolDisabled forces a one-shot connection, closed after the command.
	PoolDisabled bool
}

// DockerOptions carries the Docker-adapter-specific extras for a Command.
type DockerOptions struct {
	Container string // explicit container name; if empty and AutoCreate set, one is synthesized
	Image     string // required when AutoCreate is set and Container doesn't yet exist
	User      string
	WorkDir   string
	Privileged bool
	TTY        bool
	Volumes    []string // "host:container" entries

	AutoCreate      bool
	AutoRemove      bool
	NetworkDisabled bool
}

// AdapterOptions is a tagged union of per-adapter extras. Exactly the field
// matching Command.Adapter (or, for AdapterAuto, whichever of SSH/Docker is
// non-nil) is read.
type AdapterOptions struct {
	SSH    *SSHOptions
	Docker *DockerOptions
}

// Tag reports which adapter these options imply, or AdapterAuto if none do.
func (o AdapterOptions) Tag() AdapterSelector {
	switch {
	case o.SSH != nil:
		return AdapterSSH
	case o.Docker != nil:
		return AdapterDocker
	default:
		return AdapterAuto
	}
}

// Command is the immutable description of one intended execution. Build one
// with New and the With* options; a Command is never mutated after
// submission.
type Command struct {
	Program string
	Args    []string
	Cwd     string
	Env     map[string]string
	Stdin   Stdin

	Stdout StdioMode
	Stderr StdioMode

	// Shell selects shell interpretation. A non-empty string is used verbatim
	// as the shell path; "true"/"false" semantics are carried by ShellEnabled.
	ShellEnabled bool
	ShellPath    string

	// ShellPrefix/ShellPostfix are script fragments spliced immediately
	// before/after the assembled command line when ShellEnabled, e.g.
	// "set -euo pipefail;" — the engine-level analogue of a shell rcfile,
	// configurable via UCE_PREFIX/UCE_POSTFIX (§6).
	ShellPrefix  string
	ShellPostfix string

	TimeoutMs     int64
	TimeoutSignal string

	Cancel *CancelToken

	Adapter        AdapterSelector
	AdapterOptions AdapterOptions

	// ThrowOverride, when non-nil, overrides the engine/adapter default
	// throw_on_nonzero policy for this Command alone (§4.10's RunningHandle
	// no_throw()/fluent throw-policy override).
	ThrowOverride *bool
}

// Option configures a Command under construction.
type Option func(*Command)

// New builds a Command for program with the given options applied in order.
func New(program string, opts ...Option) (*Command, error) {
	c := &Command{
		Program: program,
		Env:     map[string]string{},
		Stdin:   NoStdin(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Command) validate() error {
	if c.TimeoutMs < 0 {
		return fmt.Errorf("command: timeout_ms must be >= 0, got %d", c.TimeoutMs)
	}
	return nil
}

// WithArgs sets the argument list (ignored in shell mode by adapters that
// inline the expression).
func WithArgs(args ...string) Option {
	return func(c *Command) { c.Args = args }
}

// WithCwd sets the working directory.
func WithCwd(dir string) Option {
	return func(c *Command) { c.Cwd = dir }
}

// WithEnv merges env into the Command's environment map.
func WithEnv(env map[string]string) Option {
	return func(c *Command) {
		for k, v := range env {
			c.Env[k] = v
		}
	}
}

// WithStdin sets the stdin source.
func WithStdin(s Stdin) Option {
	return func(c *Command) { c.Stdin = s }
}

// WithStdout sets the stdout wiring mode.
func WithStdout(mode StdioMode) Option {
	return func(c *Command) { c.Stdout = mode }
}

// WithStderr sets the stderr wiring mode.
func WithStderr(mode StdioMode) Option {
	return func(c *Command) { c.Stderr = mode }
}

// WithShell enables shell interpretation using the platform default shell.
func WithShell(enabled bool) Option {
	return func(c *Command) { c.ShellEnabled = enabled }
}

// WithShellPath enables shell interpretation using an explicit shell binary.
func WithShellPath(path string) Option {
	return func(c *Command) {
		c.ShellEnabled = true
		c.ShellPath = path
	}
}

// WithTimeout sets the wall-clock timeout in milliseconds; 0 disables it.
func WithTimeout(ms int64) Option {
	return func(c *Command) { c.TimeoutMs = ms }
}

// WithTimeoutSignal overrides the signal sent when the timeout fires.
func WithTimeoutSignal(sig string) Option {
	return func(c *Command) { c.TimeoutSignal = sig }
}

// WithShellPrefix sets a script fragment spliced before the command line in
// shell mode.
func WithShellPrefix(prefix string) Option {
	return func(c *Command) { c.ShellPrefix = prefix }
}

// WithShellPostfix sets a script fragment spliced after the command line in
// shell mode.
func WithShellPostfix(postfix string) Option {
	return func(c *Command) { c.ShellPostfix = postfix }
}

// WithCancel attaches an external cancellation token.
func WithCancel(tok *CancelToken) Option {
	return func(c *Command) { c.Cancel = tok }
}

// WithThrowOnNonzero overrides the engine/adapter default throw-on-nonzero
// policy for just this Command.
func WithThrowOnNonzero(throw bool) Option {
	return func(c *Command) { c.ThrowOverride = &throw }
}

// WithAdapter pins the adapter selector.
func WithAdapter(sel AdapterSelector) Option {
	return func(c *Command) { c.Adapter = sel }
}

// WithSSH attaches SSH adapter options and pins the adapter selector to SSH.
func WithSSH(opts SSHOptions) Option {
	return func(c *Command) {
		o := opts
		c.AdapterOptions.SSH = &o
		c.Adapter = AdapterSSH
	}
}

// WithSudo is a convenience over WithSSH's SudoEnabled/SudoPassword fields;
// it's a no-op unless SSH options are already attached.
func WithSudo(password string) Option {
	return func(c *Command) {
		if c.AdapterOptions.SSH == nil {
			return
		}
		c.AdapterOptions.SSH.SudoEnabled = true
		c.AdapterOptions.SSH.SudoPassword = password
	}
}

// WithDocker attaches Docker adapter options and pins the adapter selector to Docker.
func WithDocker(opts DockerOptions) Option {
	return func(c *Command) {
		o := opts
		c.AdapterOptions.Docker = &o
		c.Adapter = AdapterDocker
	}
}

// CancelToken is an external cancellation handle, movable once from Pending
// to Cancelled. Cancelling is idempotent.
type CancelToken struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCancelToken creates a token in the Pending state.
func NewCancelToken() *CancelToken {
	ctx, cancel := context.WithCancel(context.Background())
	return &CancelToken{ctx: ctx, cancel: cancel}
}

// Cancel moves the token to Cancelled. Idempotent.
func (t *CancelToken) Cancel() {
	t.cancel()
}

// Done returns a channel closed when the token is cancelled.
func (t *CancelToken) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Cancelled reports whether the token has been cancelled.
func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}
