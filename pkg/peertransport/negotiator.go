// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package peertransport

import (
	"bytes"
	"fmt"
	"os/exec"
	"time"

	"github.com/stratastor/logger"

	rterrors "github.com/stratastor/rodent/pkg/errors"
)

// Negotiator drives the escalation state machine, classifies output line
// by line, and decides when to release the become password and the
// pipelined payload.
type Negotiator struct {
	log        logger.Logger
	predicates BecomePredicates
	sudoable   bool
	binary     Binary
}

// NewNegotiator constructs a Negotiator for the given binary. sudoable
// mirrors the source's flag gating whether incorrect/missing-password
// lines are even looked for; it is true whenever playCtx.Become is set.
// binary gates the initial state selection (§4.3): only an ssh
// invocation ever starts in awaiting_prompt/awaiting_escalation, so a
// stray Prompt/SuccessKey left on a PlayContext reused for a scp/sftp
// transfer never forces a pointless escalation wait.
func NewNegotiator(log logger.Logger, predicates BecomePredicates, sudoable bool, binary Binary) *Negotiator {
	return &Negotiator{log: log, predicates: predicates, sudoable: sudoable, binary: binary}
}

// lineBuffer accumulates bytes per stream and yields only complete lines,
// holding back a trailing partial line as "unprocessed remainder" to be
// joined with the next read on that stream.
type lineBuffer struct {
	remainder []byte
}

func (lb *lineBuffer) feed(data []byte) []string {
	lb.remainder = append(lb.remainder, data...)
	var lines []string
	for {
		idx := bytes.IndexByte(lb.remainder, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(lb.remainder[:idx]))
		lb.remainder = lb.remainder[idx+1:]
	}
	return lines
}

// Run executes the full run loop described in the component design:
// multiplex stdout/stderr, classify lines while pre-ready_to_send,
// transition the state machine, and send the become password / pipelined
// input at the right moments. It returns the accumulated, user-visible
// stdout and stderr once the child has exited and both pipes are at EOF,
// plus the result of the single (*exec.Cmd).Wait() call Run makes
// internally: a second call on the same cmd is a programmer error per
// os/exec's documented contract, so callers must take waitErr from here
// rather than calling cio.Wait() again themselves.
func (n *Negotiator) Run(
	cio *ChildIO,
	playCtx PlayContext,
	inData []byte,
) (stdout, stderr []byte, waitErr error, err error) {
	state := n.initialState(playCtx)
	var flags Flags
	inDataSent := false

	remaining := map[source]bool{sourceStdout: true, sourceStderr: true}
	var outBuf, errBuf bytes.Buffer
	var outLines, errLines lineBuffer

	if state == StateReadyToSend {
		if len(inData) > 0 {
			if sendErr := n.sendInitial(cio, inData); sendErr != nil {
				return outBuf.Bytes(), errBuf.Bytes(), nil, sendErr
			}
			inDataSent = true
		}
		state = StateAwaitingExit
	}

	exitCh := make(chan error, 1)
	go func() { exitCh <- cio.Wait() }()
	var childExited bool

	pollTimeout := playCtx.Timeout
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}

	for {
		var timer *time.Timer
		var timerCh <-chan time.Time
		if state <= StateAwaitingEscalation {
			timer = time.NewTimer(pollTimeout)
			timerCh = timer.C
		}

		select {
		case tc, ok := <-cio.Events():
			if timer != nil {
				timer.Stop()
			}
			if !ok {
				break
			}
			if tc.err != nil {
				remaining[tc.from] = false
			} else {
				switch tc.from {
				case sourceStdout:
					n.absorb(tc.data, &outLines, &outBuf, state, &flags, true)
				case sourceStderr:
					n.absorb(tc.data, &errLines, &errBuf, state, &flags, false)
				}
			}

		case werr := <-exitCh:
			if timer != nil {
				timer.Stop()
			}
			childExited = true
			waitErr = werr

		case <-timerCh:
			if state == StateAwaitingPrompt || state == StateAwaitingEscalation {
				cio.Terminate()
				return outBuf.Bytes(), errBuf.Bytes(), nil, rterrors.New(
					rterrors.PeerEscalationTimeout,
					"timed out waiting for privilege escalation prompt",
				).WithMetadata("stdout", outBuf.String())
			}
		}

		// Apply transitions until the state stabilises: a single event
		// (e.g. an escalation success line) can unblock more than one
		// forward step, such as advancing straight into ready_to_send
		// and then sending pipelined input without waiting on another
		// readability event that may never come.
		for {
			var next NegotiationState
			next, err = n.transition(cio, state, &flags, playCtx, inData, &inDataSent)
			if err != nil {
				cio.Terminate()
				return outBuf.Bytes(), errBuf.Bytes(), nil, err
			}
			if next == state {
				break
			}
			state = next
		}

		noPipesLeft := !remaining[sourceStdout] && !remaining[sourceStderr]
		if childExited && noPipesLeft {
			break
		}
		// Control-master first-connection accommodation: stdout has
		// retired but stderr has not; give it one more zero-timeout
		// poll before breaking.
		if childExited && !remaining[sourceStdout] && remaining[sourceStderr] {
			select {
			case tc := <-cio.Events():
				if tc.err != nil {
					remaining[tc.from] = false
				} else if tc.from == sourceStderr {
					n.absorb(tc.data, &errLines, &errBuf, state, &flags, false)
				}
			case <-time.After(0):
			}
			if !remaining[sourceStdout] && !remaining[sourceStderr] {
				break
			}
		}
	}

	return outBuf.Bytes(), errBuf.Bytes(), waitErr, nil
}

// exitCodeOf extracts the process exit code from the error cio.Wait()
// returns, treating anything that isn't an *exec.ExitError (such as an
// I/O error from Wait) as a non-zero, non-255 failure. A child killed by
// a signal yields an *exec.ExitError whose code is -1.
func exitCodeOf(err error) int {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return 1
}

func (n *Negotiator) initialState(playCtx PlayContext) NegotiationState {
	if n.binary != BinarySSH {
		return StateReadyToSend
	}
	if playCtx.Prompt != "" {
		return StateAwaitingPrompt
	}
	if playCtx.Become && playCtx.SuccessKey != "" {
		return StateAwaitingEscalation
	}
	return StateReadyToSend
}

// absorb runs newly read bytes through line classification while the
// state is pre-ready_to_send, appending only non-suppressed complete lines
// to the visible buffer; a trailing partial line stays in the line buffer
// until a later read completes it. Once ready_to_send or later, any
// held-back partial line and then the new chunk are appended verbatim.
func (n *Negotiator) absorb(
	data []byte,
	lb *lineBuffer,
	out *bytes.Buffer,
	state NegotiationState,
	flags *Flags,
	isStdout bool,
) {
	if state >= StateReadyToSend {
		if len(lb.remainder) > 0 {
			out.Write(lb.remainder)
			lb.remainder = nil
		}
		out.Write(data)
		return
	}

	lines := lb.feed(data)
	for _, line := range lines {
		if n.classify(line, flags, isStdout) {
			continue // prompt/success lines are elided from visible output
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
}

// classify applies the four predicates in order and returns true if the
// line should be suppressed from visible output.
func (n *Negotiator) classify(line string, flags *Flags, isStdout bool) bool {
	switch {
	case n.predicates.CheckPasswordPrompt != nil && n.predicates.CheckPasswordPrompt(line):
		flags.BecomePrompt = true
		return true
	case n.predicates.CheckBecomeSuccess != nil && n.predicates.CheckBecomeSuccess(line):
		flags.BecomeSuccess = true
		return true
	case n.sudoable && n.predicates.CheckIncorrectPassword != nil && n.predicates.CheckIncorrectPassword(line):
		flags.BecomeError = true
		return false
	case n.sudoable && n.predicates.CheckMissingPassword != nil && n.predicates.CheckMissingPassword(line):
		flags.BecomeNopasswdError = true
		return false
	default:
		return false
	}
}

// transition applies the state table in §4.3.1 step 5 and returns the
// next state.
func (n *Negotiator) transition(
	cio *ChildIO,
	state NegotiationState,
	flags *Flags,
	playCtx PlayContext,
	inData []byte,
	inDataSent *bool,
) (NegotiationState, error) {
	switch state {
	case StateAwaitingPrompt:
		if flags.BecomePrompt {
			flags.BecomePrompt = false
			if _, err := cio.Stdin().Write([]byte(playCtx.BecomePass + "\n")); err != nil {
				return state, rterrors.Wrap(err, rterrors.PeerConnectionFailure)
			}
			return StateAwaitingEscalation, nil
		}
	case StateAwaitingEscalation:
		switch {
		case flags.BecomeSuccess:
			flags.BecomeSuccess = false
			return StateReadyToSend, nil
		case flags.BecomeError:
			return state, rterrors.New(
				rterrors.PeerEscalationFailed,
				fmt.Sprintf("incorrect %s password", playCtx.BecomeMethod),
			)
		case flags.BecomeNopasswdError:
			return state, rterrors.New(
				rterrors.PeerEscalationFailed,
				fmt.Sprintf("missing %s password", playCtx.BecomeMethod),
			)
		case flags.BecomePrompt:
			// Unexpected re-prompt: treated the same as a wrong password.
			return state, rterrors.New(
				rterrors.PeerEscalationFailed,
				fmt.Sprintf("incorrect %s password", playCtx.BecomeMethod),
			)
		}
	case StateReadyToSend:
		if len(inData) > 0 && !*inDataSent {
			if err := n.sendInitial(cio, inData); err != nil {
				return state, err
			}
			*inDataSent = true
		}
		return StateAwaitingExit, nil
	}
	return state, nil
}

func (n *Negotiator) sendInitial(cio *ChildIO, inData []byte) error {
	if _, err := cio.Stdin().Write(inData); err != nil {
		return rterrors.Wrap(err, rterrors.PeerConnectionFailure).WithMetadata("phase", "send_in_data")
	}
	return cio.Stdin().Close()
}
