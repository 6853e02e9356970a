// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package peertransport

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stratastor/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	l, err := logger.NewTag(logger.Config{LogLevel: "debug"}, "test.peertransport.negotiator")
	require.NoError(t, err)
	return l
}

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("no /bin/sh available, skipping negotiator integration test")
	}
	return sh
}

func TestLineBufferHoldsBackPartialLine(t *testing.T) {
	var lb lineBuffer
	lines := lb.feed([]byte("line one\nline tw"))
	assert.Equal(t, []string{"line one"}, lines)

	lines = lb.feed([]byte("o\nline three\n"))
	assert.Equal(t, []string{"line two", "line three"}, lines)
}

func TestClassifySuppressesPromptAndSuccessOnly(t *testing.T) {
	n := NewNegotiator(nil, NewBecomePredicates("sudo", "", "BECOME-SUCCESS-xyz"), true, BinarySSH)

	var flags Flags
	suppressed := n.classify("[sudo] password for alice: ", &flags, true)
	assert.True(t, suppressed)
	assert.True(t, flags.BecomePrompt)

	flags = Flags{}
	suppressed = n.classify("BECOME-SUCCESS-xyz", &flags, true)
	assert.True(t, suppressed)
	assert.True(t, flags.BecomeSuccess)

	flags = Flags{}
	suppressed = n.classify("Sorry, try again.", &flags, false)
	assert.False(t, suppressed, "error lines stay in visible output")
	assert.True(t, flags.BecomeError)
}

// TestClassifyIgnoresErrorLinesWhenNotSudoable is the quantified
// invariant: for invocations where sudoable is false, become_error and
// become_nopasswd_error are never raised.
func TestClassifyIgnoresErrorLinesWhenNotSudoable(t *testing.T) {
	n := NewNegotiator(nil, NewBecomePredicates("sudo", "", ""), false, BinarySSH)

	var flags Flags
	n.classify("Sorry, try again.", &flags, false)
	assert.False(t, flags.BecomeError)

	n.classify("sudo: a password is required", &flags, false)
	assert.False(t, flags.BecomeNopasswdError)
}

func TestNegotiatorInitialStateGatedOnBinary(t *testing.T) {
	sshNeg := NewNegotiator(nil, BecomePredicates{}, true, BinarySSH)
	assert.Equal(t, StateAwaitingPrompt, sshNeg.initialState(PlayContext{Prompt: "password:"}))
	assert.Equal(t, StateAwaitingEscalation, sshNeg.initialState(PlayContext{Become: true, SuccessKey: "ok"}))
	assert.Equal(t, StateReadyToSend, sshNeg.initialState(PlayContext{}))

	scpNeg := NewNegotiator(nil, BecomePredicates{}, false, BinarySCP)
	assert.Equal(t, StateReadyToSend, scpNeg.initialState(PlayContext{Prompt: "password:", Become: true, SuccessKey: "ok"}))
}

// TestNegotiatorRunPipelinedInputRoundTrips is spec scenario 2: pipelined
// input is written to the child's stdin, stdin is closed exactly once,
// and the child's echoed stdout equals the payload verbatim.
func TestNegotiatorRunPipelinedInputRoundTrips(t *testing.T) {
	sh := requireShell(t)
	log := testLogger(t)

	cmd := &Command{Binary: BinarySSH, Args: []string{sh, "-c", "cat"}}
	cio, err := Spawn(context.Background(), log, cmd, true)
	require.NoError(t, err)
	defer cio.Close()

	n := NewNegotiator(log, BecomePredicates{}, false, BinarySSH)
	stdout, _, waitErr, err := n.Run(cio, PlayContext{Timeout: 5 * time.Second}, []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(stdout))

	// Run already made the one legal Wait() call; its result is returned
	// here rather than available for a second call on the same cmd.
	require.NoError(t, waitErr)
}

// TestNegotiatorRunBecomePromptSuccess is spec scenario 3: the Negotiator
// starts in awaiting_prompt, writes the become password once the prompt
// line appears, advances through awaiting_escalation on the success
// marker, and the prompt/success lines never appear in visible stdout.
func TestNegotiatorRunBecomePromptSuccess(t *testing.T) {
	sh := requireShell(t)
	log := testLogger(t)

	script := `printf '[sudo] password: \n'; read -r pw; printf 'BECOME-SUCCESS-test\n'; printf 'remote-output\n'`
	cmd := &Command{Binary: BinarySSH, Args: []string{sh, "-c", script}}
	cio, err := Spawn(context.Background(), log, cmd, false)
	require.NoError(t, err)
	defer cio.Close()

	playCtx := PlayContext{
		Prompt:       "[sudo] password:",
		Become:       true,
		BecomeMethod: "sudo",
		BecomePass:   "s3cret",
		SuccessKey:   "BECOME-SUCCESS-test",
		Timeout:      5 * time.Second,
	}
	predicates := NewBecomePredicates(playCtx.BecomeMethod, playCtx.Prompt, playCtx.SuccessKey)
	n := NewNegotiator(log, predicates, true, BinarySSH)

	stdout, _, waitErr, err := n.Run(cio, playCtx, nil)
	require.NoError(t, err)
	assert.NotContains(t, string(stdout), "[sudo] password")
	assert.NotContains(t, string(stdout), "BECOME-SUCCESS-test")
	assert.Contains(t, string(stdout), "remote-output")

	require.NoError(t, waitErr)
}

// TestNegotiatorRunBecomeIncorrectPassword checks that a known
// incorrect-password line terminates the child and surfaces
// EscalationFailed while it is still visible in stdout.
func TestNegotiatorRunBecomeIncorrectPassword(t *testing.T) {
	sh := requireShell(t)
	log := testLogger(t)

	script := `printf '[sudo] password: \n'; read -r pw; printf 'Sorry, try again.\n'; sleep 5`
	cmd := &Command{Binary: BinarySSH, Args: []string{sh, "-c", script}}
	cio, err := Spawn(context.Background(), log, cmd, false)
	require.NoError(t, err)
	defer cio.Close()

	playCtx := PlayContext{
		Prompt:       "[sudo] password:",
		Become:       true,
		BecomeMethod: "sudo",
		BecomePass:   "wrong",
		SuccessKey:   "BECOME-SUCCESS-test",
		Timeout:      5 * time.Second,
	}
	predicates := NewBecomePredicates(playCtx.BecomeMethod, playCtx.Prompt, playCtx.SuccessKey)
	n := NewNegotiator(log, predicates, true, BinarySSH)

	_, _, _, err = n.Run(cio, playCtx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incorrect sudo password")
}

// TestNegotiatorRunEscalationTimeout is spec scenario 4: if the child
// emits nothing before the timeout while awaiting the escalation prompt,
// the child is terminated and EscalationTimeout is raised.
func TestNegotiatorRunEscalationTimeout(t *testing.T) {
	sh := requireShell(t)
	log := testLogger(t)

	cmd := &Command{Binary: BinarySSH, Args: []string{sh, "-c", "sleep 30"}}
	cio, err := Spawn(context.Background(), log, cmd, false)
	require.NoError(t, err)
	defer cio.Close()

	playCtx := PlayContext{
		Prompt:     "[sudo] password:",
		Become:     true,
		SuccessKey: "BECOME-SUCCESS-test",
		Timeout:    1 * time.Second,
	}
	predicates := NewBecomePredicates("sudo", playCtx.Prompt, playCtx.SuccessKey)
	n := NewNegotiator(log, predicates, true, BinarySSH)

	start := time.Now()
	_, _, _, err = n.Run(cio, playCtx, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "privilege escalation prompt")
	assert.Less(t, elapsed, 10*time.Second)
}
