// SPDX-License-Identifier: MPL-2.0

// Package localadapter runs commands as direct child processes of the
// current host using os/exec, per §4.6. It is the default adapter selected
// when a Command names no SSH or Docker options.
package localadapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/corexec/uce/internal/logging"
	"github.com/corexec/uce/pkg/adapter"
	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

// Name is this adapter's tag, matching command.AdapterLocal.
const Name = "local"

// Adapter runs commands as direct child processes of the host.
type Adapter struct {
	base     *adapter.Base
	defaults adapter.Defaults
	logger   *log.Logger

	// Shell overrides platform shell discovery; ShellArgs overrides the
	// flag(s) passed before the script. Both empty means auto-detect.
	Shell     string
	ShellArgs []string
}

// New constructs a local adapter with the given engine defaults.
func New(defaults adapter.Defaults) *Adapter {
	logger := logging.New(Name)
	return &Adapter{
		base:     adapter.NewBase(Name, logger),
		defaults: defaults,
		logger:   logger,
	}
}

// Name returns "local".
func (a *Adapter) Name() string { return Name }

// IsAvailable always reports true; a local shell is assumed present
// (shell resolution failures surface per-command as AdapterUnavailable).
func (a *Adapter) IsAvailable(ctx context.Context) bool { return true }

// Dispose is a no-op; the local adapter holds no pooled resources.
func (a *Adapter) Dispose() error { return nil }

// Execute runs cmd asynchronously relative to the caller's own streaming
// needs: stdout/stderr are captured (or inherited/ignored per StdioMode)
// while the child runs, and Execute returns once it exits, is timed out, or
// is cancelled.
func (a *Adapter) Execute(ctx context.Context, cmd *command.Command) (*result.Result, error) {
	return a.run(ctx, cmd)
}

// ExecuteSync is identical to Execute for the local adapter; there is no
// separate synchronous code path to support.
func (a *Adapter) ExecuteSync(ctx context.Context, cmd *command.Command) (*result.Result, error) {
	return a.run(ctx, cmd)
}

func (a *Adapter) run(ctx context.Context, cmd *command.Command) (*result.Result, error) {
	merged := a.base.MergeDefaults(cmd, a.defaults)

	if err := a.base.PreSpawnCancelErr(merged); err != nil {
		return nil, err
	}

	program, args, err := a.resolveArgv(merged)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, &result.AdapterUnavailableError{Adapter: Name, Operation: "spawn_enoent", Cause: err}
		}
		return nil, a.base.WrapError("resolve_argv", err)
	}

	runCtx, timedOut, stop := a.base.TimeoutContext(ctx, merged, nil)
	defer stop()

	ecmd := exec.CommandContext(runCtx, program, args...)
	setProcessGroup(ecmd)

	ecmd.Dir = merged.Cwd
	ecmd.Env = a.base.ComposeEnv(merged, a.defaults)
	ecmd.Cancel = func() error {
		return sendSignal(ecmd, merged.TimeoutSignal)
	}
	ecmd.WaitDelay = 2 * time.Second

	stdinReader, stdinErr := a.wireStdin(ecmd, merged.Stdin)
	if stdinErr != nil {
		return nil, a.base.WrapError("stdin", stdinErr)
	}
	defer func() {
		if closer, ok := stdinReader.(io.Closer); ok {
			_ = closer.Close()
		}
	}()

	stdoutHandler, stderrHandler := a.base.NewOutputHandlers(a.defaults)
	a.wireStdout(ecmd, merged.Stdout, stdoutHandler)
	a.wireStderr(ecmd, merged.Stderr, stderrHandler)

	started := time.Now()
	runErr := ecmd.Run()
	finished := time.Now()

	if timedOut() {
		return nil, &result.TimeoutError{Command: merged.Program, LimitMs: merged.TimeoutMs}
	}
	if overflowErr := a.base.OverflowErr(stdoutHandler, stderrHandler); overflowErr != nil {
		return nil, overflowErr
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code, sig := exitErr.ExitCode(), exitSignal(exitErr)
			if sig != "" {
				code = 0
			}
			res := a.base.BuildResult(stdoutHandler.Bytes(), stderrHandler.Bytes(), code, sig, started, finished, Name)
			return a.base.ApplyThrowPolicy(a.base.EffectiveThrow(merged, a.defaults.ThrowOnNonzero), merged.Program, res)
		}
		if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist) {
			return nil, &result.AdapterUnavailableError{Adapter: Name, Operation: "spawn_enoent", Cause: runErr}
		}
		return nil, a.base.WrapError("spawn", runErr)
	}

	res := a.base.BuildResult(stdoutHandler.Bytes(), stderrHandler.Bytes(), 0, "", started, finished, Name)
	return a.base.ApplyThrowPolicy(a.base.EffectiveThrow(merged, a.defaults.ThrowOnNonzero), merged.Program, res)
}

// resolveArgv decides between direct exec (program+args verbatim) and shell
// interpretation (§4.2's shell-mode path), resolving the platform shell when
// needed.
func (a *Adapter) resolveArgv(cmd *command.Command) (string, []string, error) {
	if !cmd.ShellEnabled {
		path, err := exec.LookPath(cmd.Program)
		if err != nil {
			return "", nil, err
		}
		return path, cmd.Args, nil
	}

	shellPath := cmd.ShellPath
	if shellPath == "" {
		shellPath = a.Shell
	}
	if shellPath == "" {
		resolved, err := defaultShell()
		if err != nil {
			return "", nil, err
		}
		shellPath = resolved
	}

	flags := a.ShellArgs
	if len(flags) == 0 {
		flags = shellFlags(shellPath)
	}

	script := cmd.Program
	if len(cmd.Args) > 0 {
		script = script + " " + strings.Join(cmd.Args, " ")
	}
	script = a.base.WrapShellScript(cmd, script)

	return shellPath, append(append([]string{}, flags...), script), nil
}

// defaultShell mirrors the platform shell-discovery order: the first of
// /bin/bash, /bin/sh, /usr/bin/bash, /usr/bin/sh that exists on Unix;
// cmd.exe on Windows.
func defaultShell() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if p, err := exec.LookPath("cmd.exe"); err == nil {
			return p, nil
		}
		return "", errors.New("localadapter: no shell found")
	default:
		for _, candidate := range []string{"/bin/bash", "/bin/sh", "/usr/bin/bash", "/usr/bin/sh"} {
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		return "", errors.New("localadapter: no shell found")
	}
}

func shellFlags(shellPath string) []string {
	base := strings.TrimSuffix(strings.ToLower(lastPathElement(shellPath)), ".exe")
	switch base {
	case "cmd":
		return []string{"/C"}
	case "powershell", "pwsh":
		return []string{"-NoProfile", "-Command"}
	default:
		return []string{"-c"}
	}
}

func lastPathElement(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

func (a *Adapter) wireStdin(ecmd *exec.Cmd, stdin command.Stdin) (io.Reader, error) {
	switch stdin.Kind {
	case command.StdinNone:
		return nil, nil
	case command.StdinBytes:
		r := bytes.NewReader(stdin.Bytes)
		ecmd.Stdin = r
		return r, nil
	case command.StdinText:
		r := strings.NewReader(stdin.Text)
		ecmd.Stdin = r
		return r, nil
	case command.StdinStream:
		ecmd.Stdin = stdin.Stream
		return stdin.Stream, nil
	default:
		return nil, errors.New("localadapter: unknown stdin kind")
	}
}

func (a *Adapter) wireStdout(ecmd *exec.Cmd, mode command.StdioMode, w io.Writer) {
	switch mode {
	case command.StdioInherit:
		ecmd.Stdout = os.Stdout
	case command.StdioIgnore:
		ecmd.Stdout = io.Discard
	default:
		ecmd.Stdout = w
	}
}

func (a *Adapter) wireStderr(ecmd *exec.Cmd, mode command.StdioMode, w io.Writer) {
	switch mode {
	case command.StdioInherit:
		ecmd.Stderr = os.Stderr
	case command.StdioIgnore:
		ecmd.Stderr = io.Discard
	default:
		ecmd.Stderr = w
	}
}

