// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package peertransport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kballard/go-shellquote"
	rterrors "github.com/stratastor/rodent/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBracketHostIsUnconditional(t *testing.T) {
	assert.Equal(t, "[h1]", bracketHost("h1"))
	assert.Equal(t, "[fe80::1]", bracketHost("fe80::1"))
	assert.Equal(t, "[10.0.0.1]", bracketHost("10.0.0.1"))
}

func TestFileTransferPutFileMissingLocalFails(t *testing.T) {
	log := testLogger(t)
	xfer := &FileTransfer{log: log, args: &ArgBuilder{log: log}, cfg: GlobalConfig{HostKeyChecking: false}}

	err := xfer.PutFile(context.Background(), PlayContext{RemoteAddr: "h1", Timeout: 5 * time.Second}, HostOverrides{}, "/nonexistent/path/does-not-exist", "/remote")
	require.Error(t, err)
	code, ok := rterrors.GetCode(err)
	require.True(t, ok)
	assert.Equal(t, rterrors.ErrorCode(rterrors.PeerFileNotFound), code)
}

// writeFakeClient drops an executable shell script named binaryName on
// disk under dir and prepends dir to PATH for the duration of the test,
// the way pkg/facl's tests gate on real getfacl/setfacl but here we
// supply a stand-in client so the sftp/scp argument and stdin contract
// can be verified without requiring OpenSSH's own sftp/scp binaries.
func writeFakeClient(t *testing.T, dir, binaryName, script string) {
	t.Helper()
	path := filepath.Join(dir, binaryName)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// TestFileTransferPutFileViaSFTP is spec scenario 6: with
// DEFAULT_SCP_IF_SSH false, put_file sends "put <local> <remote>\n" as a
// single batch command over sftp's stdin, each path quoted by
// shellquote.Join, which leaves a path with no special characters
// unquoted.
func TestFileTransferPutFileViaSFTP(t *testing.T) {
	log := testLogger(t)
	tempDir := t.TempDir()
	captureFile := filepath.Join(tempDir, "captured.txt")
	writeFakeClient(t, tempDir, "sftp", "cat > "+shellquote.Join([]string{captureFile})+"\nexit 0\n")

	localFile := filepath.Join(tempDir, "local.txt")
	require.NoError(t, os.WriteFile(localFile, []byte("data"), 0644))

	xfer := &FileTransfer{log: log, args: &ArgBuilder{log: log}, cfg: GlobalConfig{ScpIfSSH: false, HostKeyChecking: false}}

	err := xfer.PutFile(context.Background(), PlayContext{RemoteAddr: "h1", Timeout: 5 * time.Second}, HostOverrides{}, localFile, "/b c")
	require.NoError(t, err)

	captured, err := os.ReadFile(captureFile)
	require.NoError(t, err)
	expected := "put " + shellquote.Join([]string{localFile}) + " " + shellquote.Join([]string{"/b c"}) + "\n"
	assert.Equal(t, expected, string(captured))
}

// TestFileTransferFetchFileViaSFTP is the symmetric download path.
func TestFileTransferFetchFileViaSFTP(t *testing.T) {
	log := testLogger(t)
	tempDir := t.TempDir()
	captureFile := filepath.Join(tempDir, "captured.txt")
	writeFakeClient(t, tempDir, "sftp", "cat > "+shellquote.Join([]string{captureFile})+"\nexit 0\n")

	localFile := filepath.Join(tempDir, "local.txt")

	xfer := &FileTransfer{log: log, args: &ArgBuilder{log: log}, cfg: GlobalConfig{ScpIfSSH: false, HostKeyChecking: false}}

	err := xfer.FetchFile(context.Background(), PlayContext{RemoteAddr: "h1", Timeout: 5 * time.Second}, HostOverrides{}, "/remote file", localFile)
	require.NoError(t, err)

	captured, err := os.ReadFile(captureFile)
	require.NoError(t, err)
	expected := "get " + shellquote.Join([]string{"/remote file"}) + " " + shellquote.Join([]string{localFile}) + "\n"
	assert.Equal(t, expected, string(captured))
}

// TestFileTransferPutFileViaSCP exercises the DEFAULT_SCP_IF_SSH=true
// path: scp gets "<local> [host]:<remote>" as plain arguments with no
// pipelined input.
func TestFileTransferPutFileViaSCP(t *testing.T) {
	log := testLogger(t)
	tempDir := t.TempDir()
	captureFile := filepath.Join(tempDir, "captured.txt")
	writeFakeClient(t, tempDir, "scp", `for a in "$@"; do printf '%s\n' "$a" >> `+shellquote.Join([]string{captureFile})+`; done
exit 0
`)

	localFile := filepath.Join(tempDir, "local.txt")
	require.NoError(t, os.WriteFile(localFile, []byte("data"), 0644))

	xfer := &FileTransfer{log: log, args: &ArgBuilder{log: log}, cfg: GlobalConfig{ScpIfSSH: true, HostKeyChecking: false}}

	err := xfer.PutFile(context.Background(), PlayContext{RemoteAddr: "h1", Timeout: 5 * time.Second}, HostOverrides{}, localFile, "/b c")
	require.NoError(t, err)

	captured, err := os.ReadFile(captureFile)
	require.NoError(t, err)
	lines := string(captured)
	assert.Contains(t, lines, localFile)
	assert.Contains(t, lines, "[h1]:")
}

// TestFileTransferNonZeroExitIsTransferFailed ensures a non-zero client
// exit surfaces as TransferFailed carrying both output streams.
func TestFileTransferNonZeroExitIsTransferFailed(t *testing.T) {
	log := testLogger(t)
	tempDir := t.TempDir()
	writeFakeClient(t, tempDir, "sftp", "cat >/dev/null\necho 'no such file' 1>&2\nexit 2\n")

	localFile := filepath.Join(tempDir, "local.txt")
	require.NoError(t, os.WriteFile(localFile, []byte("data"), 0644))

	xfer := &FileTransfer{log: log, args: &ArgBuilder{log: log}, cfg: GlobalConfig{ScpIfSSH: false, HostKeyChecking: false}}

	err := xfer.PutFile(context.Background(), PlayContext{RemoteAddr: "h1", Timeout: 5 * time.Second}, HostOverrides{}, localFile, "/remote")
	require.Error(t, err)
	code, ok := rterrors.GetCode(err)
	require.True(t, ok)
	assert.Equal(t, rterrors.ErrorCode(rterrors.PeerTransferFailed), code)
	assert.Contains(t, err.Error(), "no such file")
}
