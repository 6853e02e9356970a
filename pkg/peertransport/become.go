// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package peertransport

import "strings"

// BecomePredicates is a small capability record of four line predicates,
// built from a become-method tag rather than inherited from a base
// connection type. The Negotiator never hard-codes prompt/success/error
// patterns; it only calls these.
type BecomePredicates struct {
	CheckPasswordPrompt   func(line string) bool
	CheckBecomeSuccess    func(line string) bool
	CheckIncorrectPassword func(line string) bool
	CheckMissingPassword  func(line string) bool
}

// NewBecomePredicates builds the predicate set for the given become
// method and the prompt/success seeds carried on PlayContext. Only
// "sudo" and "su" are recognised methods for now; any other label falls
// back to the sudo patterns, which is what the bulk of BECOME_METHODS
// deployments actually use.
func NewBecomePredicates(method, promptSeed, successSeed string) BecomePredicates {
	switch method {
	case "su":
		return BecomePredicates{
			CheckPasswordPrompt: promptMatcher(promptSeed, "Password:"),
			CheckBecomeSuccess:  successMatcher(successSeed),
			CheckIncorrectPassword: containsAnyFold(
				"su: Authentication failure",
				"su: incorrect password",
			),
			CheckMissingPassword: containsAnyFold(
				"su: must be run from a terminal",
			),
		}
	default: // "sudo" and anything unrecognised
		return BecomePredicates{
			CheckPasswordPrompt: promptMatcher(promptSeed, "[sudo] password"),
			CheckBecomeSuccess:  successMatcher(successSeed),
			CheckIncorrectPassword: containsAnyFold(
				"Sorry, try again",
				"sudo: 1 incorrect password attempt",
				"sudo: incorrect password",
			),
			CheckMissingPassword: containsAnyFold(
				"sudo: a password is required",
				"sudo: no password was provided",
			),
		}
	}
}

func promptMatcher(seed, fallback string) func(string) bool {
	needle := seed
	if needle == "" {
		needle = fallback
	}
	return func(line string) bool {
		return strings.Contains(line, needle)
	}
}

func successMatcher(seed string) func(string) bool {
	return func(line string) bool {
		if seed == "" {
			return false
		}
		return strings.Contains(line, seed)
	}
}

func containsAnyFold(needles ...string) func(string) bool {
	return func(line string) bool {
		lower := strings.ToLower(line)
		for _, n := range needles {
			if strings.Contains(lower, strings.ToLower(n)) {
				return true
			}
		}
		return false
	}
}
