// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package peertransport

import (
	"context"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"github.com/stratastor/logger"

	"github.com/stratastor/rodent/config"
	rterrors "github.com/stratastor/rodent/pkg/errors"
)

// Runner wires ArgBuilder, ChildIO and Negotiator together for one
// command invocation and translates the child's exit status and stderr
// into a typed outcome.
type Runner struct {
	log  logger.Logger
	args *ArgBuilder
	cfg  GlobalConfig
}

// NewRunner constructs a Runner against the process-wide configuration
// singleton, the way every other rodent subsystem obtains its settings.
func NewRunner() (*Runner, error) {
	cfg := config.GetConfig()
	log, err := logger.NewTag(config.NewLoggerConfig(cfg), "peer-transport")
	if err != nil {
		return nil, rterrors.Wrap(err, rterrors.LoggerError)
	}
	ab, err := NewArgBuilder(cfg)
	if err != nil {
		return nil, err
	}
	return &Runner{
		log:  log,
		args: ab,
		cfg:  globalConfigFromSingleton(cfg),
	}, nil
}

func globalConfigFromSingleton(cfg *config.Config) GlobalConfig {
	return GlobalConfig{
		DefaultSFTPBatchMode: cfg.PeerTransport.DefaultSFTPBatchMode,
		SSHArgs:              cfg.PeerTransport.SSHArgs,
		HostKeyChecking:      cfg.PeerTransport.HostKeyChecking,
		ControlPathTemplate:  cfg.PeerTransport.ControlPathTemplate,
		ScpIfSSH:             cfg.PeerTransport.ScpIfSSH,
		SSHRetries:           cfg.PeerTransport.SSHRetries,
		BecomeMethods:        cfg.PeerTransport.BecomeMethods,
	}
}

// ExecCommand runs one remote command through the full
// ArgBuilder -> ChildIO -> Negotiator pipeline and interprets the exit
// status per §4.4.
func (r *Runner) ExecCommand(
	ctx context.Context,
	playCtx PlayContext,
	hostOverrides HostOverrides,
	command string,
	inData []byte,
) (RunOutcome, error) {
	invocationID := uuid.New().String()
	log := r.log
	log.Debug("executing remote command", "invocation_id", invocationID, "host", playCtx.RemoteAddr)

	pipelined := len(inData) > 0
	extras := r.buildExtras(playCtx, command, pipelined)

	cmd, err := r.args.Build(BinarySSH, playCtx, hostOverrides, r.cfg, extras)
	if err != nil {
		return RunOutcome{}, err
	}

	cio, err := Spawn(ctx, log, cmd, pipelined)
	if err != nil {
		return RunOutcome{}, err
	}
	defer cio.Close()

	predicates := NewBecomePredicates(playCtx.BecomeMethod, playCtx.Prompt, playCtx.SuccessKey)
	negotiator := NewNegotiator(log, predicates, playCtx.Become, BinarySSH)

	stdout, stderr, waitErr, runErr := negotiator.Run(cio, playCtx, inData)
	if runErr != nil {
		if re, ok := runErr.(*rterrors.RodentError); ok {
			re.WithMetadata("invocation_id", invocationID)
		}
		return RunOutcome{Stdout: stdout, Stderr: stderr}, runErr
	}

	_ = cio.Stdin().Close() // idempotent if the negotiator already closed it

	// Run already made the one legal (*exec.Cmd).Wait() call internally;
	// a second call here would return "exec: Wait was already called"
	// instead of the real *exec.ExitError.
	return r.interpretExit(cmd, waitErr, stdout, stderr, pipelined, invocationID)
}

// buildExtras composes the trailing positional arguments: -tt is added
// only when the caller did not request pipelined stdin (matching scenario
// 1/2 in the testable properties).
func (r *Runner) buildExtras(playCtx PlayContext, command string, pipelined bool) []string {
	target := playCtx.RemoteAddr
	if strings.Contains(target, ":") {
		target = "[" + target + "]"
	}
	if pipelined {
		return []string{target, command}
	}
	return []string{"-tt", target, command}
}

func (r *Runner) interpretExit(
	cmd *Command,
	waitErr error,
	stdout, stderr []byte,
	pipelined bool,
	invocationID string,
) (RunOutcome, error) {
	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return RunOutcome{}, rterrors.Wrap(waitErr, rterrors.PeerConnectionFailure).
				WithMetadata("invocation_id", invocationID)
		}
	}

	outcome := RunOutcome{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}

	if r.cfg.HostKeyChecking && cmd.WrappedInSSHPass && exitCode == 6 {
		return outcome, rterrors.New(
			rterrors.PeerHostKeyWithPassword,
			"sshpass cannot answer an interactive host key prompt",
		).WithMetadata("invocation_id", invocationID)
	}

	stderrStr := string(stderr)
	if exitCode != 0 && (strings.Contains(stderrStr, "Bad configuration option: ControlPersist") ||
		strings.Contains(stderrStr, "unknown configuration option: ControlPersist")) {
		return outcome, rterrors.New(
			rterrors.PeerVersionMismatch,
			"remote ssh client does not support ControlPersist",
		).WithMetadata("invocation_id", invocationID).WithMetadata("stderr", stderrStr)
	}

	if exitCode == 255 && pipelined {
		return outcome, rterrors.New(
			rterrors.PeerConnectionFailure,
			"data could not be sent to remote",
		).WithMetadata("invocation_id", invocationID)
	}

	return outcome, nil
}
