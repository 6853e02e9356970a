// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package peertransport

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	"github.com/stratastor/logger"

	"github.com/stratastor/rodent/config"
	rterrors "github.com/stratastor/rodent/pkg/errors"
)

// FileTransfer specialises the ssh client invocation for scp (arguments
// only) and sftp (an interactive command string over stdin), bypassing
// the Negotiator's escalation machinery since neither upload nor download
// negotiates a become prompt.
type FileTransfer struct {
	log  logger.Logger
	args *ArgBuilder
	cfg  GlobalConfig
}

// NewFileTransfer mirrors NewRunner's construction against the process
// config singleton.
func NewFileTransfer() (*FileTransfer, error) {
	cfg := config.GetConfig()
	log, err := logger.NewTag(config.NewLoggerConfig(cfg), "peer-transport")
	if err != nil {
		return nil, rterrors.Wrap(err, rterrors.LoggerError)
	}
	ab, err := NewArgBuilder(cfg)
	if err != nil {
		return nil, err
	}
	return &FileTransfer{log: log, args: ab, cfg: globalConfigFromSingleton(cfg)}, nil
}

// PutFile uploads local to remote on the host described by playCtx.
func (t *FileTransfer) PutFile(ctx context.Context, playCtx PlayContext, hostOverrides HostOverrides, local, remote string) error {
	if _, err := os.Stat(local); err != nil {
		return rterrors.Wrap(err, rterrors.PeerFileNotFound).WithMetadata("path", local)
	}

	target := bracketHost(playCtx.RemoteAddr)

	if t.cfg.ScpIfSSH {
		dest := fmt.Sprintf("%s:%s", target, shellquote.Join(remote))
		return t.runTransfer(ctx, playCtx, hostOverrides, BinarySCP, []string{local, dest}, nil)
	}

	payload := []byte(fmt.Sprintf("put %s %s\n", shellquote.Join(local), shellquote.Join(remote)))
	return t.runTransfer(ctx, playCtx, hostOverrides, BinarySFTP, []string{target}, payload)
}

// FetchFile downloads remote to local, the symmetric counterpart of
// PutFile.
func (t *FileTransfer) FetchFile(ctx context.Context, playCtx PlayContext, hostOverrides HostOverrides, remote, local string) error {
	target := bracketHost(playCtx.RemoteAddr)

	if t.cfg.ScpIfSSH {
		src := fmt.Sprintf("%s:%s", target, shellquote.Join(remote))
		return t.runTransfer(ctx, playCtx, hostOverrides, BinarySCP, []string{src, local}, nil)
	}

	payload := []byte(fmt.Sprintf("get %s %s\n", shellquote.Join(remote), shellquote.Join(local)))
	return t.runTransfer(ctx, playCtx, hostOverrides, BinarySFTP, []string{target}, payload)
}

func (t *FileTransfer) runTransfer(
	ctx context.Context,
	playCtx PlayContext,
	hostOverrides HostOverrides,
	binary Binary,
	extras []string,
	payload []byte,
) error {
	invocationID := uuid.New().String()

	cmd, err := t.args.Build(binary, playCtx, hostOverrides, t.cfg, extras)
	if err != nil {
		return err
	}

	pipelined := len(payload) > 0
	cio, err := Spawn(ctx, t.log, cmd, pipelined)
	if err != nil {
		return err
	}
	defer cio.Close()

	// No become negotiation on file transfer: the negotiator is driven
	// with an empty predicate set and sudoable=false so it only performs
	// the readiness multiplexing and the one-shot payload send.
	negotiator := NewNegotiator(t.log, BecomePredicates{}, false, binary)
	stdout, stderr, waitErr, runErr := negotiator.Run(cio, playCtx, payload)
	if runErr != nil {
		return runErr
	}

	if !pipelined {
		_ = cio.Stdin().Close()
	}

	// Run already made the one legal (*exec.Cmd).Wait() call internally;
	// a second call here would return "exec: Wait was already called"
	// instead of the real *exec.ExitError.
	exitCode := 0
	if waitErr != nil {
		exitCode = exitCodeOf(waitErr)
	}

	if exitCode != 0 {
		return rterrors.New(rterrors.PeerTransferFailed, "file transfer to peer failed").
			WithMetadata("invocation_id", invocationID).
			WithMetadata("exit_code", fmt.Sprintf("%d", exitCode)).
			WithMetadata("stdout", string(stdout)).
			WithMetadata("stderr", string(stderr))
	}
	return nil
}

// bracketHost wraps the remote host in brackets unconditionally: scp and
// sftp both require it to disambiguate an IPv6 literal from the
// host:path separator, and it is harmless for hostnames and IPv4
// addresses.
func bracketHost(addr string) string {
	return "[" + addr + "]"
}
