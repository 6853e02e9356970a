// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

// Package peertransport is rodent's connection driver for running commands
// and moving files on a peer storage node by orchestrating the ssh, scp,
// sftp and sshpass command-line clients. It supersedes the ad-hoc
// buildSSHCommand helper that used to live alongside the ZFS send/receive
// transfer manager: every peer-to-peer operation that needs a shell-level
// ssh invocation, whether a plain command, a privilege-escalated one, or a
// file transfer, goes through Runner/FileTransfer instead.
package peertransport

import "time"

// Binary identifies which OpenSSH client ArgBuilder is composing arguments
// for.
type Binary string

const (
	BinarySSH  Binary = "ssh"
	BinarySCP  Binary = "scp"
	BinarySFTP Binary = "sftp"
)

// PlayContext carries the per-invocation, read-only parameters a caller
// supplies for one command or transfer. It is the peer-transport analogue
// of an Ansible PlayContext: everything here is specific to a single
// exec_command/put_file/fetch_file call, never shared across peers.
type PlayContext struct {
	RemoteAddr      string
	RemoteUser      string
	Port            int // 0 means unset
	PrivateKeyFile  string
	Password        string
	Timeout         time.Duration
	Verbosity       int
	Prompt          string // password prompt seed, e.g. "[sudo] password:"
	SuccessKey      string // become success marker seed
	Become          bool
	BecomeMethod    string // e.g. "sudo"
	BecomePass      string
	SSHExtraArgs    string
}

// HostOverrides carries free-form argument strings sourced from inventory
// host variables (ansible_ssh_args / ansible_ssh_extra_args in the
// original terminology).
type HostOverrides struct {
	SSHArgs      string
	SSHExtraArgs string
}

// GlobalConfig is the view peertransport needs over config.Config's
// PeerTransport section (see config.Config.PeerTransport). It is
// constructed from the process-wide config singleton rather than passed
// around as a bespoke struct built by each caller.
type GlobalConfig struct {
	DefaultSFTPBatchMode bool
	SSHArgs              string
	HostKeyChecking      bool
	ControlPathTemplate  string
	ScpIfSSH             bool
	SSHRetries           int
	BecomeMethods        string
}

// NegotiationState is the escalation state machine's position. States are
// totally ordered in the sequence below; only forward transitions are
// legal.
type NegotiationState int

const (
	StateAwaitingPrompt NegotiationState = iota
	StateAwaitingEscalation
	StateReadyToSend
	StateAwaitingExit
)

func (s NegotiationState) String() string {
	switch s {
	case StateAwaitingPrompt:
		return "awaiting_prompt"
	case StateAwaitingEscalation:
		return "awaiting_escalation"
	case StateReadyToSend:
		return "ready_to_send"
	case StateAwaitingExit:
		return "awaiting_exit"
	default:
		return "unknown"
	}
}

// Flags are one-shot booleans raised by line classification and consumed
// by the Negotiator at the transition they trigger.
type Flags struct {
	BecomePrompt        bool
	BecomeSuccess       bool
	BecomeError         bool
	BecomeNopasswdError bool
}

// Command is the fully-composed argument vector ArgBuilder produces, plus
// the out-of-band artefacts the rest of the pipeline needs.
type Command struct {
	Binary Binary
	Args   []string

	// SSHPassPipe holds the read/write ends of the pipe ArgBuilder opened
	// for sshpass. Nil when playCtx.Password is unset.
	SSHPassPipe *sshPassPipe

	// ControlPathDir is set when ArgBuilder synthesised a ControlPath
	// option and had to create its parent directory.
	ControlPathDir string

	// Persistent records whether ControlPersist is in effect for this
	// invocation.
	Persistent bool

	// WrappedInSSHPass is true when Args[0] is "sshpass": Runner needs
	// this to recognise sshpass's own exit code 6 (host-key prompt it
	// cannot answer) rather than the wrapped client's exit code.
	WrappedInSSHPass bool

	// password is carried only long enough for ChildIO to write it to
	// SSHPassPipe once, right after spawn.
	password string
}

// Password returns the password ArgBuilder captured for sshpass
// injection, if any.
func (c *Command) Password() string {
	return c.password
}

// RunOutcome is the result of one Runner invocation. ExitCode 255 denotes
// an SSH transport failure; 1..254 is the remote program's own status and
// is returned to the caller verbatim.
type RunOutcome struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}
