// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package peertransport

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/stratastor/logger"

	rterrors "github.com/stratastor/rodent/pkg/errors"
)

// chunk is one readiness-multiplexed unit handed from a reader goroutine
// to the Negotiator's run loop. A nil err with len(data) == 0 is never
// sent; EOF is signalled by err == io.EOF.
type chunk struct {
	data []byte
	err  error
}

// source identifies which child stream a chunk came from.
type source int

const (
	sourceStdout source = iota
	sourceStderr
)

// taggedChunk pairs a chunk with the stream it came from so the run loop
// can select over one channel instead of two.
type taggedChunk struct {
	from source
	chunk
}

// ChildIO spawns the client process and surfaces stdout/stderr as a
// channel of readiness events plus a writable stdin handle. Real
// fcntl-style non-blocking pipes are unidiomatic in Go: os.File reads
// already park the calling goroutine on the runtime's netpoller instead
// of blocking an OS thread, so two reader goroutines feeding a shared
// channel give the run loop the same "poll with timeout, drain on
// readiness, detect EOF by zero-length read" contract the design calls
// for without hand-rolled syscall plumbing.
type ChildIO struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	ptyFile *os.File // non-nil only in pty-stdin mode

	events chan taggedChunk
	done   chan struct{}

	log logger.Logger
}

// Spawn starts the child according to Command. pipelinedInput indicates
// the caller intends to write in_data to stdin, which forces plain-pipe
// mode per the component contract (pty-stdin mode is for interactive
// password/become prompts only).
func Spawn(ctx context.Context, log logger.Logger, command *Command, pipelinedInput bool) (*ChildIO, error) {
	cmd := exec.CommandContext(ctx, command.Args[0], command.Args[1:]...)
	cmd.Env = os.Environ() // child inherits the parent environment unchanged

	if command.SSHPassPipe != nil {
		cmd.ExtraFiles = []*os.File{command.SSHPassPipe.read}
	}

	cio := &ChildIO{cmd: cmd, log: log, events: make(chan taggedChunk, 16), done: make(chan struct{})}

	var stdoutPipe, stderrPipe io.ReadCloser
	var err error

	usePty := !pipelinedInput
	if usePty {
		ptyFile, ttyFile, ptyErr := pty.Open()
		if ptyErr != nil {
			usePty = false
		} else {
			cmd.Stdin = ttyFile
			stdoutPipe, err = cmd.StdoutPipe()
			if err != nil {
				return nil, rterrors.Wrap(err, rterrors.PeerConnectionFailure)
			}
			stderrPipe, err = cmd.StderrPipe()
			if err != nil {
				return nil, rterrors.Wrap(err, rterrors.PeerConnectionFailure)
			}
			if startErr := cmd.Start(); startErr != nil {
				ptyFile.Close()
				ttyFile.Close()
				return nil, rterrors.Wrap(startErr, rterrors.PeerConnectionFailure)
			}
			ttyFile.Close() // the child holds its own copy of the slave end
			cio.ptyFile = ptyFile
			cio.stdin = ptyFile
		}
	}

	if !usePty {
		stdinPipe, stdinErr := cmd.StdinPipe()
		if stdinErr != nil {
			return nil, rterrors.Wrap(stdinErr, rterrors.PeerConnectionFailure)
		}
		stdoutPipe, err = cmd.StdoutPipe()
		if err != nil {
			return nil, rterrors.Wrap(err, rterrors.PeerConnectionFailure)
		}
		stderrPipe, err = cmd.StderrPipe()
		if err != nil {
			return nil, rterrors.Wrap(err, rterrors.PeerConnectionFailure)
		}
		if startErr := cmd.Start(); startErr != nil {
			return nil, rterrors.Wrap(startErr, rterrors.PeerConnectionFailure)
		}
		cio.stdin = stdinPipe
	}

	// The sshpass write end is used exactly once right after spawn: the
	// parent closes the read end (the child already inherited its own
	// copy via ExtraFiles) and writes the password.
	if command.SSHPassPipe != nil {
		command.SSHPassPipe.read.Close()
		if command.Password() != "" {
			_, _ = command.SSHPassPipe.write.Write([]byte(command.Password() + "\n"))
		}
		command.SSHPassPipe.write.Close()
	}

	go cio.pump(sourceStdout, stdoutPipe)
	go cio.pump(sourceStderr, stderrPipe)

	return cio, nil
}

// pump reads one stream to completion, forwarding each read as a chunk
// and finishing with an io.EOF chunk so the run loop can retire the
// stream from its readiness set.
func (c *ChildIO) pump(src source, r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case c.events <- taggedChunk{from: src, chunk: chunk{data: data}}:
			case <-c.done:
				return
			}
		}
		if err != nil {
			select {
			case c.events <- taggedChunk{from: src, chunk: chunk{err: io.EOF}}:
			case <-c.done:
			}
			return
		}
	}
}

// Events returns the multiplexed readiness channel the Negotiator's run
// loop selects on, alongside a timer for the poll timeout it manages
// itself.
func (c *ChildIO) Events() <-chan taggedChunk {
	return c.events
}

// Stdin returns the writable handle for the become password and/or
// pipelined payload.
func (c *ChildIO) Stdin() io.WriteCloser {
	return c.stdin
}

// Wait blocks until the child exits and returns its error (nil on exit
// code 0, *exec.ExitError otherwise).
func (c *ChildIO) Wait() error {
	return c.cmd.Wait()
}

// Terminate makes a best-effort attempt to kill the child; errors are
// swallowed because by the time this is called the caller is already
// failing the invocation for another reason.
func (c *ChildIO) Terminate() {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}

// Close releases the reader goroutines and the pty master, if any.
func (c *ChildIO) Close() {
	close(c.done)
	if c.ptyFile != nil {
		_ = c.ptyFile.Close()
	}
}
