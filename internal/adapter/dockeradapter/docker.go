// SPDX-License-Identifier: MPL-2.0

// Package dockeradapter runs commands inside an existing or auto-created
// container via the host's container CLI (docker or podman), per §4.8. It
// shells out to the CLI binary rather than linking the Docker SDK, the way
// invowk's container package drives docker/podman as subprocesses through
// BaseCLIEngine rather than importing github.com/docker/docker.
package dockeradapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/corexec/uce/internal/logging"
	"github.com/corexec/uce/pkg/adapter"
	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

// Name is this adapter's tag, matching command.AdapterDocker.
const Name = "docker"

// Adapter drives the docker (or podman) CLI as a subprocess.
type Adapter struct {
	base     *adapter.Base
	defaults adapter.Defaults
	logger   *log.Logger

	// Binary is the container engine CLI to invoke ("docker" by default;
	// "podman" is a drop-in substitute since both accept the same flags
	// for the operations this adapter performs).
	Binary string

	ephemeral *ephemeralSet
}

// New constructs a Docker adapter. binary defaults to "docker" when empty.
func New(defaults adapter.Defaults, binary string) *Adapter {
	if binary == "" {
		binary = "docker"
	}
	logger := logging.New(Name)
	return &Adapter{
		base:      adapter.NewBase(Name, logger),
		defaults:  defaults,
		logger:    logger,
		Binary:    binary,
		ephemeral: newEphemeralSet(),
	}
}

// Name returns "docker".
func (a *Adapter) Name() string { return Name }

// IsAvailable shells out to `docker version --format json` once; success
// means the adapter is usable (§4.8's precondition probe). The JSON is
// parsed only to detect a well-formed response, never inspected further.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, a.Binary, "version", "--format", "json")
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	var probe map[string]any
	return json.Unmarshal(out, &probe) == nil
}

// Dispose removes every ephemeral container this adapter created with
// AutoRemove set.
func (a *Adapter) Dispose() error {
	return a.ephemeral.disposeAll(a)
}

// Execute runs cmd inside the resolved container.
func (a *Adapter) Execute(ctx context.Context, cmd *command.Command) (*result.Result, error) {
	return a.run(ctx, cmd)
}

// ExecuteSync is identical to Execute; `docker exec` has no separate
// asynchronous path to support.
func (a *Adapter) ExecuteSync(ctx context.Context, cmd *command.Command) (*result.Result, error) {
	return a.run(ctx, cmd)
}

func (a *Adapter) run(ctx context.Context, cmd *command.Command) (*result.Result, error) {
	merged := a.base.MergeDefaults(cmd, a.defaults)

	if err := a.base.PreSpawnCancelErr(merged); err != nil {
		return nil, err
	}

	opts := merged.AdapterOptions.Docker
	if opts == nil {
		return nil, &result.AdapterUnavailableError{Adapter: Name, Operation: "missing_docker_options"}
	}

	container, err := a.resolveContainer(ctx, opts)
	if err != nil {
		return nil, err
	}

	args := a.execArgs(container, merged, opts)

	runCtx, timedOut, stop := a.base.TimeoutContext(ctx, merged, nil)
	defer stop()

	ecmd := exec.CommandContext(runCtx, a.Binary, args...)
	ecmd.Env = a.base.ComposeEnv(merged, a.defaults)

	stdoutHandler, stderrHandler := a.base.NewOutputHandlers(a.defaults)
	ecmd.Stdout = stdoutHandler
	ecmd.Stderr = stderrHandler
	if merged.Stdin.Kind != command.StdinNone {
		stdin, err := stdinReader(merged.Stdin)
		if err != nil {
			return nil, err
		}
		ecmd.Stdin = stdin
	}

	started := time.Now()
	runErr := ecmd.Run()
	finished := time.Now()

	// Only the local `docker exec` subprocess is killed on timeout; the
	// in-container process may continue running (§4.8's stated limitation).
	if timedOut() {
		return nil, &result.TimeoutError{Command: merged.Program, LimitMs: merged.TimeoutMs}
	}
	if overflowErr := a.base.OverflowErr(stdoutHandler, stderrHandler); overflowErr != nil {
		return nil, overflowErr
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res := a.base.BuildResult(stdoutHandler.Bytes(), stderrHandler.Bytes(), exitErr.ExitCode(), "", started, finished, Name)
			return a.base.ApplyThrowPolicy(a.base.EffectiveThrow(merged, a.defaults.ThrowOnNonzero), merged.Program, res)
		}
		return nil, &result.ContainerOpError{Container: container, Operation: "exec", Cause: runErr}
	}

	res := a.base.BuildResult(stdoutHandler.Bytes(), stderrHandler.Bytes(), 0, "", started, finished, Name)
	return a.base.ApplyThrowPolicy(a.base.EffectiveThrow(merged, a.defaults.ThrowOnNonzero), merged.Program, res)
}

// resolveContainer implements §4.8's container-resolution rule: an
// explicit name is used as-is; otherwise, when AutoCreate is set, an
// ephemeral container is synthesized, started, and tracked for cleanup.
func (a *Adapter) resolveContainer(ctx context.Context, opts *command.DockerOptions) (string, error) {
	if opts.Container != "" {
		exists, err := a.containerExists(ctx, opts.Container)
		if err != nil {
			return "", &result.ContainerOpError{Container: opts.Container, Operation: "inspect", Cause: err}
		}
		if exists {
			return opts.Container, nil
		}
		if !opts.AutoCreate {
			return "", &result.ContainerOpError{Container: opts.Container, Operation: "inspect", Cause: fmt.Errorf("dockeradapter: container %q not found", opts.Container)}
		}
	}
	if !opts.AutoCreate {
		return "", &result.AdapterUnavailableError{Adapter: Name, Operation: "no_container_and_no_auto_create"}
	}
	return a.ephemeral.createAndTrack(ctx, a, opts)
}

func (a *Adapter) containerExists(ctx context.Context, name string) (bool, error) {
	cmd := exec.CommandContext(ctx, a.Binary, "inspect", name)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// execArgs builds `docker exec` flags per §4.8: -i iff stdin is present, -t
// iff TTY requested, -u/-w when set, -e per composed env entry,
// --privileged when set, then container, then either `sh -c <script>`
// (shell mode) or program+args directly.
func (a *Adapter) execArgs(container string, cmd *command.Command, opts *command.DockerOptions) []string {
	args := []string{"exec"}

	if cmd.Stdin.Kind != command.StdinNone {
		args = append(args, "-i")
	}
	if opts.TTY {
		args = append(args, "-t")
	}
	if opts.User != "" {
		args = append(args, "-u", opts.User)
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	// cmd is already merged (base.MergeDefaults composed engine-level
	// Defaults.Env with this command's per-command overrides into cmd.Env),
	// so every -e flag here reflects the full composed environment, not
	// just the per-command overrides. Keys are sorted for deterministic
	// argv construction.
	envKeys := make([]string, 0, len(cmd.Env))
	for k := range cmd.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, cmd.Env[k]))
	}
	if opts.Privileged {
		args = append(args, "--privileged")
	}

	args = append(args, container)

	if cmd.ShellEnabled {
		args = append(args, "sh", "-c", a.base.WrapShellScript(cmd, shellScript(cmd)))
	} else {
		args = append(args, cmd.Program)
		args = append(args, cmd.Args...)
	}
	return args
}

// shellScript returns the Program string unchanged, with any Args appended
// verbatim, for `sh -c` to interpret.
func shellScript(cmd *command.Command) string {
	var parts []string
	parts = append(parts, cmd.Program)
	parts = append(parts, cmd.Args...)
	return strings.Join(parts, " ")
}

func stdinReader(s command.Stdin) (io.Reader, error) {
	switch s.Kind {
	case command.StdinBytes:
		return bytes.NewReader(s.Bytes), nil
	case command.StdinText:
		return strings.NewReader(s.Text), nil
	case command.StdinStream:
		return s.Stream, nil
	default:
		return nil, &result.AdapterUnavailableError{Adapter: Name, Operation: "unknown_stdin_kind"}
	}
}

// formatVolume renders a "host:container" volume entry for docker's -v flag.
func formatVolume(spec string) string {
	return spec
}
