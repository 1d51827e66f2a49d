// SPDX-License-Identifier: MPL-2.0

package dockeradapter

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

func TestNewManagement_DefaultsToDocker(t *testing.T) {
	m := NewManagement("")
	if m.Binary != "docker" {
		t.Errorf("got binary %q", m.Binary)
	}
}

// checkTestcontainersAvailable mirrors invowk's own probe: testcontainers-go's
// detection can panic on exotic hosts, so it's wrapped and treated as
// "unavailable" rather than a hard test failure.
func checkTestcontainersAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()
	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return false
	}
	defer provider.Close()
	return true
}

// TestManagement_Integration exercises List/Create/Start/Stop/Remove
// against a real container engine. Skipped in short mode and when no
// engine is available, matching invowk's
// internal/runtime/container_integration_test.go pattern.
func TestManagement_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if !checkTestcontainersAvailable() {
		t.Skip("skipping: no container engine available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m := NewManagement("")
	name := "uce-mgmt-test"
	_ = m.Remove(ctx, name, true) // best-effort cleanup from a prior failed run

	if _, err := m.Create(ctx, name, "alpine:latest", "-it"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	defer m.Remove(ctx, name, true)

	if err := m.Start(ctx, name); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	names, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	found := false
	for _, n := range names {
		if n == name {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %q in running container list, got %v", name, names)
	}

	if err := m.Stop(ctx, name); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
