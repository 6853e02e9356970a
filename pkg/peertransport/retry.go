// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package peertransport

import (
	"context"
	"math"
	"time"

	"github.com/stratastor/logger"
)

// RetryShell wraps a command invocation with bounded exponential backoff.
// The policy is deliberately broad: per the source's own open question,
// any error from the wrapped call is treated as retryable, not only a
// connection failure, so bugs in the wrapped call manifest as retries
// rather than immediate failures. This is preserved rather than
// "cleaned up" because changing it would be resolving an open question
// silently.
type RetryShell struct {
	log     logger.Logger
	retries int
}

// NewRetryShell builds a RetryShell for ANSIBLE_SSH_RETRIES total extra
// attempts, i.e. retries+1 total tries.
func NewRetryShell(log logger.Logger, retries int) *RetryShell {
	if retries < 0 {
		retries = 0
	}
	return &RetryShell{log: log, retries: retries}
}

// Exec runs fn up to retries+1 times. An attempt is retryable if it
// either returned an error or its RunOutcome carries exit code 255.
// Exit code 255 is
// recognised directly on the outcome rather than requiring callers to
// thread a sentinel error through, since a bare 255 with no pipelined
// input is not itself an error per RunOutcome's own contract.
func (r *RetryShell) Exec(ctx context.Context, fn func(ctx context.Context) (RunOutcome, error)) (RunOutcome, error) {
	var outcome RunOutcome
	var err error

	attempts := r.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		outcome, err = fn(ctx)
		retryable := err != nil || outcome.ExitCode == 255
		last := attempt == attempts-1

		if !retryable || last {
			return outcome, err
		}

		delay := time.Duration(math.Min(30, math.Exp2(float64(attempt))-1)) * time.Second
		r.log.Debug("retrying remote command", "attempt", attempt+1, "delay", delay.String())

		select {
		case <-ctx.Done():
			return outcome, ctx.Err()
		case <-time.After(delay):
		}
	}

	return outcome, err
}
