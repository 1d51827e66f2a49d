// SPDX-License-Identifier: MPL-2.0

package sshadapter

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/corexec/uce/pkg/command"
	"github.com/corexec/uce/pkg/result"
)

// Upload copies localPath to remotePath on the host identified by ssh,
// dialing (or reusing) a pooled connection (§4.7 file transfer).
func (a *Adapter) Upload(ssh command.SSHOptions, localPath, remotePath string) error {
	if a.SFTPDisabled {
		return &result.AdapterUnavailableError{Adapter: Name, Operation: "sftp_disabled"}
	}
	client, release, err := a.clientFor(ssh)
	if err != nil {
		return err
	}
	defer release()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return &result.ConnectionError{Host: ssh.Host, Cause: err}
	}
	defer sc.Close()

	local, err := os.Open(localPath)
	if err != nil {
		return &result.AdapterUnavailableError{Adapter: Name, Operation: "upload_open_local", Cause: err}
	}
	defer local.Close()

	remote, err := sc.Create(remotePath)
	if err != nil {
		return &result.AdapterUnavailableError{Adapter: Name, Operation: "upload_create_remote", Cause: err}
	}
	defer remote.Close()

	if _, err := io.Copy(remote, local); err != nil {
		return &result.AdapterUnavailableError{Adapter: Name, Operation: "upload_copy", Cause: err}
	}
	return nil
}

// Download copies remotePath from the host identified by ssh to localPath.
func (a *Adapter) Download(ssh command.SSHOptions, remotePath, localPath string) error {
	if a.SFTPDisabled {
		return &result.AdapterUnavailableError{Adapter: Name, Operation: "sftp_disabled"}
	}
	client, release, err := a.clientFor(ssh)
	if err != nil {
		return err
	}
	defer release()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return &result.ConnectionError{Host: ssh.Host, Cause: err}
	}
	defer sc.Close()

	remote, err := sc.Open(remotePath)
	if err != nil {
		return &result.AdapterUnavailableError{Adapter: Name, Operation: "download_open_remote", Cause: err}
	}
	defer remote.Close()

	local, err := os.Create(localPath)
	if err != nil {
		return &result.AdapterUnavailableError{Adapter: Name, Operation: "download_create_local", Cause: err}
	}
	defer local.Close()

	if _, err := io.Copy(local, remote); err != nil {
		return &result.AdapterUnavailableError{Adapter: Name, Operation: "download_copy", Cause: err}
	}
	return nil
}

// UploadDirectory recursively copies every regular file under localDir to
// remoteDir, creating remote directories as needed.
func (a *Adapter) UploadDirectory(ssh command.SSHOptions, localDir, remoteDir string) error {
	if a.SFTPDisabled {
		return &result.AdapterUnavailableError{Adapter: Name, Operation: "sftp_disabled"}
	}
	client, release, err := a.clientFor(ssh)
	if err != nil {
		return err
	}
	defer release()

	sc, err := sftp.NewClient(client)
	if err != nil {
		return &result.ConnectionError{Host: ssh.Host, Cause: err}
	}
	defer sc.Close()

	return filepathWalk(localDir, func(relPath string, isDir bool) error {
		remotePath := path.Join(remoteDir, relPath)
		if isDir {
			return sc.MkdirAll(remotePath)
		}
		local, err := os.Open(path.Join(localDir, relPath))
		if err != nil {
			return err
		}
		defer local.Close()
		remote, err := sc.Create(remotePath)
		if err != nil {
			return err
		}
		defer remote.Close()
		_, err = io.Copy(remote, local)
		return err
	})
}

func (a *Adapter) clientFor(opts command.SSHOptions) (*ssh.Client, func(), error) {
	port := opts.Port
	if port == 0 {
		port = DefaultPort
	}
	key := poolKey{user: opts.User, host: opts.Host, port: port}
	auth, err := authMethod(opts.Auth)
	if err != nil {
		return nil, nil, &result.ConnectionError{Host: key.String(), Cause: err}
	}
	client, release, err := a.pool.Get(key, DialOptions{Auth: auth, Timeout: a.DialTimeout})
	if err != nil {
		return nil, nil, err
	}
	return client, release, nil
}

func filepathWalk(root string, fn func(relPath string, isDir bool) error) error {
	return walkDir(root, "", fn)
}

func walkDir(base, rel string, fn func(relPath string, isDir bool) error) error {
	full := base
	if rel != "" {
		full = path.Join(base, rel)
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return fmt.Errorf("sshadapter: read dir %s: %w", full, err)
	}
	if rel != "" {
		if err := fn(rel, true); err != nil {
			return err
		}
	}
	for _, e := range entries {
		childRel := path.Join(rel, e.Name())
		if e.IsDir() {
			if err := walkDir(base, childRel, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(childRel, false); err != nil {
			return err
		}
	}
	return nil
}
