// SPDX-License-Identifier: MPL-2.0

package dockeradapter

import (
	"context"
	"os/exec"
	"strings"

	"github.com/corexec/uce/pkg/result"
)

// Management exposes the container lifecycle helpers named in §4.8's
// "management surface": list, create, start, stop, remove, each mapping an
// unsuccessful CLI call to *result.ContainerOpError. It is a standalone
// type (§12 supplemented feature) so callers can manage containers without
// going through a Command/Execute round-trip.
type Management struct {
	Binary string
}

// NewManagement constructs a Management helper. binary defaults to
// "docker" when empty.
func NewManagement(binary string) *Management {
	if binary == "" {
		binary = "docker"
	}
	return &Management{Binary: binary}
}

// List returns the names of running containers (`docker ps --format {{.Names}}`).
func (m *Management) List(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, m.Binary, "ps", "--format", "{{.Names}}")
	out, err := cmd.Output()
	if err != nil {
		return nil, &result.ContainerOpError{Operation: "list", Cause: err}
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

// Create runs `docker create` with the given image, name, and extra args,
// returning the created container's name.
func (m *Management) Create(ctx context.Context, name, image string, extraArgs ...string) (string, error) {
	args := append([]string{"create", "--name", name}, extraArgs...)
	args = append(args, image)
	cmd := exec.CommandContext(ctx, m.Binary, args...)
	if err := cmd.Run(); err != nil {
		return "", &result.ContainerOpError{Container: name, Operation: "create", Cause: err}
	}
	return name, nil
}

// Start runs `docker start <name>`.
func (m *Management) Start(ctx context.Context, name string) error {
	if err := exec.CommandContext(ctx, m.Binary, "start", name).Run(); err != nil {
		return &result.ContainerOpError{Container: name, Operation: "start", Cause: err}
	}
	return nil
}

// Stop runs `docker stop <name>`.
func (m *Management) Stop(ctx context.Context, name string) error {
	if err := exec.CommandContext(ctx, m.Binary, "stop", name).Run(); err != nil {
		return &result.ContainerOpError{Container: name, Operation: "stop", Cause: err}
	}
	return nil
}

// Remove runs `docker rm` (with -f when force is set).
func (m *Management) Remove(ctx context.Context, name string, force bool) error {
	args := []string{"rm"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, name)
	if err := exec.CommandContext(ctx, m.Binary, args...).Run(); err != nil {
		return &result.ContainerOpError{Container: name, Operation: "remove", Cause: err}
	}
	return nil
}
