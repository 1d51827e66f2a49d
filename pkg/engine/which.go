// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"runtime"
	"strings"

	"github.com/corexec/uce/pkg/command"
)

// Which runs `which <cmd>` (or `where` on Windows) through the local
// adapter and returns the first resolved path, or ("", false) if the
// program isn't found. Always resolves against the local host regardless
// of the chain's own adapter selection, matching §4.10's "which(cmd)"
// utility.
func (e *Engine) Which(ctx context.Context, cmd string) (string, bool) {
	lookup := "which"
	if runtime.GOOS == "windows" {
		lookup = "where"
	}
	c, err := command.New(lookup,
		command.WithArgs(cmd),
		command.WithAdapter(command.AdapterLocal),
		command.WithStdout(command.StdioPipe),
		command.WithStderr(command.StdioIgnore),
	)
	if err != nil {
		return "", false
	}
	res, err := e.ExecuteSync(ctx, c)
	if err != nil || !res.Success() {
		return "", false
	}
	lines := res.Lines()
	if len(lines) == 0 {
		return "", false
	}
	first := strings.TrimSpace(lines[0])
	if first == "" {
		return "", false
	}
	return first, true
}

// CommandAvailable is Which's boolean form.
func (e *Engine) CommandAvailable(ctx context.Context, cmd string) bool {
	_, ok := e.Which(ctx, cmd)
	return ok
}
