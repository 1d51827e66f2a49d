// SPDX-License-Identifier: MPL-2.0

package sshadapter

import (
	"testing"

	"github.com/corexec/uce/pkg/adapter"
	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

func TestSFTP_DisabledRejectsWithoutDialing(t *testing.T) {
	a := New(adapter.Defaults{}, 0, 0)
	a.SFTPDisabled = true

	opts := command.SSHOptions{Host: "example.invalid", User: "u"}

	for name, call := range map[string]func() error{
		"upload":   func() error { return a.Upload(opts, "/tmp/local", "/tmp/remote") },
		"download": func() error { return a.Download(opts, "/tmp/remote", "/tmp/local") },
		"uploadDirectory": func() error {
			return a.UploadDirectory(opts, "/tmp/localdir", "/tmp/remotedir")
		},
	} {
		err := call()
		if err == nil {
			t.Fatalf("%s: expected error when SFTP disabled", name)
		}
		aue, ok := err.(*result.AdapterUnavailableError)
		if !ok {
			t.Fatalf("%s: expected *result.AdapterUnavailableError, got %T", name, err)
		}
		if aue.Operation != "sftp_disabled" {
			t.Errorf("%s: got operation %q, want sftp_disabled", name, aue.Operation)
		}
	}
}
