// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package peertransport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBecomePredicatesSudo(t *testing.T) {
	p := NewBecomePredicates("sudo", "", "")

	assert.True(t, p.CheckPasswordPrompt("[sudo] password for alice: "))
	assert.False(t, p.CheckPasswordPrompt("Password: "))
	assert.True(t, p.CheckIncorrectPassword("Sorry, try again."))
	assert.True(t, p.CheckIncorrectPassword("sudo: 1 incorrect password attempt"))
	assert.True(t, p.CheckMissingPassword("sudo: a password is required"))
	assert.False(t, p.CheckIncorrectPassword("hello world"))
}

func TestNewBecomePredicatesSu(t *testing.T) {
	p := NewBecomePredicates("su", "", "")

	assert.True(t, p.CheckPasswordPrompt("Password: "))
	assert.True(t, p.CheckIncorrectPassword("su: Authentication failure"))
	assert.True(t, p.CheckMissingPassword("su: must be run from a terminal"))
}

func TestNewBecomePredicatesUnknownMethodFallsBackToSudo(t *testing.T) {
	p := NewBecomePredicates("doas", "", "")
	assert.True(t, p.CheckPasswordPrompt("[sudo] password for bob: "))
}

func TestNewBecomePredicatesPromptSeedOverridesDefault(t *testing.T) {
	p := NewBecomePredicates("sudo", "Enter passphrase:", "")
	assert.True(t, p.CheckPasswordPrompt("Enter passphrase: "))
	assert.False(t, p.CheckPasswordPrompt("[sudo] password for alice: "))
}

func TestNewBecomePredicatesSuccessKeyRequired(t *testing.T) {
	withKey := NewBecomePredicates("sudo", "", "BECOME-SUCCESS-abc123")
	assert.True(t, withKey.CheckBecomeSuccess("BECOME-SUCCESS-abc123"))
	assert.False(t, withKey.CheckBecomeSuccess("anything else"))

	withoutKey := NewBecomePredicates("sudo", "", "")
	assert.False(t, withoutKey.CheckBecomeSuccess("BECOME-SUCCESS-abc123"))
}

func TestContainsAnyFoldIsCaseInsensitive(t *testing.T) {
	f := containsAnyFold("Sorry, try again")
	assert.True(t, f("SORRY, TRY AGAIN."))
	assert.True(t, f("sorry, try again"))
	assert.False(t, f("nope"))
}
