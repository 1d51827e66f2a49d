// SPDX-License-Identifier: MPL-2.0

package dockeradapter

import (
	"context"
	"fmt"
	"math/rand"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

// ephemeralSet tracks containers this adapter created so it can dispose of
// them later. Grounded on invowk's internal/container/transient.go +
// retry.go: the same transient-error classification and exponential
// backoff retry loop gate every create/start call here, since an ephemeral
// container create is exactly the kind of operation that flakes on
// rootless storage-driver races.
type ephemeralSet struct {
	mu         sync.Mutex
	containers map[string]bool // name -> autoRemove
}

func newEphemeralSet() *ephemeralSet {
	return &ephemeralSet{containers: map[string]bool{}}
}

// createAndTrack synthesizes `docker create --name <temp-<rand>> -it
// <image> sh -c 'sleep infinity'`, starts it, and tracks it for cleanup,
// per §4.8's ephemeral-container rule.
func (s *ephemeralSet) createAndTrack(ctx context.Context, a *Adapter, opts *command.DockerOptions) (string, error) {
	if opts.Image == "" {
		return "", &result.AdapterUnavailableError{Adapter: Name, Operation: "auto_create_missing_image"}
	}

	name := fmt.Sprintf("uce-%08x", rand.Uint32())

	createArgs := []string{"create", "--name", name}
	if opts.NetworkDisabled {
		createArgs = append(createArgs, "--network", "none")
	}
	for _, v := range opts.Volumes {
		createArgs = append(createArgs, "-v", formatVolume(v))
	}
	createArgs = append(createArgs, "-it", opts.Image, "sh", "-c", "sleep infinity")

	if err := retryWithBackoff(ctx, 3, 200*time.Millisecond, func(attempt int) (bool, error) {
		cmd := exec.CommandContext(ctx, a.Binary, createArgs...)
		err := cmd.Run()
		if err == nil {
			return false, nil
		}
		return isTransientError(err), err
	}); err != nil {
		return "", &result.ContainerOpError{Container: name, Operation: "create", Cause: err}
	}

	if err := retryWithBackoff(ctx, 3, 200*time.Millisecond, func(attempt int) (bool, error) {
		err := exec.CommandContext(ctx, a.Binary, "start", name).Run()
		if err == nil {
			return false, nil
		}
		return isTransientError(err), err
	}); err != nil {
		return "", &result.ContainerOpError{Container: name, Operation: "start", Cause: err}
	}

	s.mu.Lock()
	s.containers[name] = opts.AutoRemove
	s.mu.Unlock()

	return name, nil
}

// disposeAll removes every tracked container whose AutoRemove flag was set
// when it was created, fanning the `docker rm` calls out across an
// errgroup bounded to 4 concurrent removals so a host with many ephemeral
// containers doesn't tear them down one at a time; the first removal
// failure is what Dispose returns, matching the teacher's
// WaitGroup-based lifecycle teardown generalized to propagate an error.
func (s *ephemeralSet) disposeAll(a *Adapter) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.containers))
	for name, autoRemove := range s.containers {
		if autoRemove {
			names = append(names, name)
		}
	}
	s.mu.Unlock()

	g := new(errgroup.Group)
	g.SetLimit(4)
	for _, name := range names {
		name := name
		g.Go(func() error {
			defer func() {
				s.mu.Lock()
				delete(s.containers, name)
				s.mu.Unlock()
			}()
			if err := exec.Command(a.Binary, "rm", "-f", name).Run(); err != nil {
				return fmt.Errorf("dockeradapter: remove ephemeral container %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// retryWithBackoff retries op up to maxAttempts times with exponential
// backoff, checking ctx.Err() between attempts. Adapted nearly verbatim
// from invowk's internal/container/retry.go (RetryWithBackoff), since the
// retry discipline is engine-agnostic.
func retryWithBackoff(ctx context.Context, maxAttempts int, baseBackoff time.Duration, op func(attempt int) (retry bool, err error)) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("retry aborted: %w", err)
			}
			time.Sleep(baseBackoff * time.Duration(uint(1)<<uint(attempt-1)))
		}
		retry, err := op(attempt)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// isTransientError reports whether err is a transient container-engine
// error worth retrying. Adapted from invowk's
// internal/container/transient.go (IsTransientError), narrowed to the
// signals relevant to `docker create`/`docker start` rather than build
// operations too.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 125 {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"ping_group_range",
		"OCI runtime error",
		"Temporary failure resolving",
		"Could not resolve host",
		"connection timed out",
		"connection refused",
		"error creating overlay mount",
		"error mounting layer",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
