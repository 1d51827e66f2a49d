// SPDX-License-Identifier: MPL-2.0

// Package engine is the Unified Command Execution Engine's top-level
// surface (C10): construction, adapter selection, chainable configuration,
// template-literal interpolation, and running handles. It generalizes
// invowk's internal/runtime.Registry — a type-keyed map of Runtime with
// Register/Get/Execute — into a selector-keyed map of adapter.Adapter with
// an additional precedence rule for adapter options embedded in a Command.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/corexec/uce/internal/adapter/dockeradapter"
	"github.com/corexec/uce/internal/adapter/localadapter"
	"github.com/corexec/uce/internal/adapter/mockadapter"
	"github.com/corexec/uce/internal/adapter/sshadapter"
	"github.com/corexec/uce/internal/logging"
	"github.com/corexec/uce/pkg/adapter"
	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

// Default configuration values (§4.10).
const (
	DefaultTimeoutMs    = 30_000
	DefaultEncoding     = "utf-8"
	DefaultMaxBufferLen = 10 * 1 << 20
)

// Config holds the engine-level defaults every adapter merges into a
// Command before running it.
type Config struct {
	DefaultTimeoutMs int64
	ThrowOnNonzero   bool
	Encoding         string
	MaxBufferBytes   int64

	Cwd string
	Env map[string]string

	// Shell, ShellPrefix, and ShellPostfix set the engine-wide shell-mode
	// defaults every adapter merges in (§4.2, §6's UCE_SHELL/UCE_PREFIX/
	// UCE_POSTFIX).
	Shell        bool
	ShellPrefix  string
	ShellPostfix string

	// PreferLocal and Detached are carried through from §6's UCE_PREFER_LOCAL
	// and UCE_DETACHED for callers that branch on them explicitly; the
	// engine itself has no local/remote auto-detection or detached-process
	// mode to condition on (see DESIGN.md).
	PreferLocal string
	Detached    bool

	SSHMaxConnections int
	SSHIdleTimeout    int64 // milliseconds; 0 disables the sweeper
	DockerBinary      string

	// SSHSFTPDisabled turns off the SSH adapter's file-transfer subsystem
	// (§4.7); Upload/Download/UploadDirectory then fail fast with
	// AdapterUnavailable("sftp_disabled") instead of dialing sftp.
	SSHSFTPDisabled bool
}

// Defaults returns the engine's zero-config baseline: local adapter as the
// default selection, 30s timeout, utf-8 encoding, 10MiB buffer cap, throw_on_nonzero disabled.
// NewFromEnv starts from this and layers UCE_* overrides on top.
func Defaults() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

var knownEncodings = map[string]bool{"utf-8": true, "ascii": true, "latin-1": true}

func (c *Config) validate() error {
	if c.DefaultTimeoutMs < 0 {
		return fmt.Errorf("engine: default_timeout_ms must be >= 0, got %d", c.DefaultTimeoutMs)
	}
	if c.Encoding != "" && !knownEncodings[c.Encoding] {
		return fmt.Errorf("engine: unknown encoding %q", c.Encoding)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DefaultTimeoutMs == 0 {
		c.DefaultTimeoutMs = DefaultTimeoutMs
	}
	if c.Encoding == "" {
		c.Encoding = DefaultEncoding
	}
	if c.MaxBufferBytes == 0 {
		c.MaxBufferBytes = DefaultMaxBufferLen
	}
}

// Engine dispatches Commands to the adapter their AdapterSelector /
// AdapterOptions names, merging engine-level config defaults into each run.
type Engine struct {
	cfg      Config
	adapters map[command.AdapterSelector]adapter.Adapter
	named    map[string]adapter.Adapter
}

// New constructs an Engine, validating cfg and instantiating the local
// adapter plus any adapter whose config block is non-empty — concretely,
// SSH and Docker adapters are always instantiated since they're cheap
// (pool/CLI-probe) until first use; Mock must be registered explicitly via
// RegisterAdapter since it has no meaningful defaults.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	defaults := adapter.Defaults{
		Cwd:            cfg.Cwd,
		Env:            cfg.Env,
		TimeoutMs:      cfg.DefaultTimeoutMs,
		Shell:          cfg.Shell,
		ShellPrefix:    cfg.ShellPrefix,
		ShellPostfix:   cfg.ShellPostfix,
		ThrowOnNonzero: cfg.ThrowOnNonzero,
		MaxBufferBytes: cfg.MaxBufferBytes,
	}

	e := &Engine{
		cfg:      cfg,
		adapters: map[command.AdapterSelector]adapter.Adapter{},
		named:    map[string]adapter.Adapter{},
	}

	e.RegisterAdapter(command.AdapterLocal, localadapter.New(defaults))
	ssh := sshadapter.New(defaults, cfg.SSHMaxConnections, time.Duration(cfg.SSHIdleTimeout)*time.Millisecond)
	ssh.SFTPDisabled = cfg.SSHSFTPDisabled
	e.RegisterAdapter(command.AdapterSSH, ssh)
	e.RegisterAdapter(command.AdapterDocker, dockeradapter.New(defaults, cfg.DockerBinary))

	return e, nil
}

// RegisterAdapter adds or replaces the adapter bound to selector, and makes
// it reachable by name for custom selectors.
func (e *Engine) RegisterAdapter(selector command.AdapterSelector, a adapter.Adapter) {
	e.adapters[selector] = a
	e.named[string(selector)] = a
	e.named[a.Name()] = a
}

// UseMock is a convenience for tests: registers m under AdapterMock.
func (e *Engine) UseMock(m *mockadapter.Adapter) {
	e.RegisterAdapter(command.AdapterMock, m)
}

// resolve implements §4.10's adapter-selection rule: an explicit non-auto
// selector must be configured or AdapterUnavailable is raised; otherwise
// AdapterOptions' tag wins; otherwise local.
func (e *Engine) resolve(cmd *command.Command) (adapter.Adapter, error) {
	if cmd.Adapter != command.AdapterAuto {
		a, ok := e.named[string(cmd.Adapter)]
		if !ok {
			return nil, &result.AdapterUnavailableError{Adapter: string(cmd.Adapter), Operation: "not_configured"}
		}
		return a, nil
	}
	if tag := cmd.AdapterOptions.Tag(); tag != command.AdapterAuto {
		if a, ok := e.adapters[tag]; ok {
			return a, nil
		}
	}
	return e.adapters[command.AdapterLocal], nil
}

// Execute resolves cmd's adapter and runs it.
func (e *Engine) Execute(ctx context.Context, cmd *command.Command) (*result.Result, error) {
	a, err := e.resolve(cmd)
	if err != nil {
		return nil, err
	}
	return a.Execute(ctx, cmd)
}

// ExecuteSync resolves cmd's adapter and runs it synchronously.
func (e *Engine) ExecuteSync(ctx context.Context, cmd *command.Command) (*result.Result, error) {
	a, err := e.resolve(cmd)
	if err != nil {
		return nil, err
	}
	return a.ExecuteSync(ctx, cmd)
}

// Dispose releases every registered adapter's pooled resources.
func (e *Engine) Dispose() error {
	var firstErr error
	seen := map[adapter.Adapter]bool{}
	for _, a := range e.adapters {
		if seen[a] {
			continue
		}
		seen[a] = true
		if err := a.Dispose(); err != nil && firstErr == nil {
			firstErr = err
			logging.Default().Error("adapter dispose failed", "adapter", a.Name(), "error", err)
		}
	}
	return firstErr
}
