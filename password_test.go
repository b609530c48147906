package membership_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktcserver/membership"
)

func nonAlnumCount(s string) int {
	n := 0
	for _, r := range s {
		alnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !alnum {
			n++
		}
	}
	return n
}

func TestPolicyValidator(t *testing.T) {
	cfg := testConfig("pw-test")
	cfg.MinPasswordLength = 7
	cfg.MinNonAlphanumeric = 1
	require.NoError(t, cfg.Validate())

	validate := membership.PolicyValidator(cfg)

	assert.NoError(t, validate("alice", "Passw0rd!", true))
	assert.ErrorIs(t, validate("alice", "short!", true), membership.ErrWeakPassword)
	assert.ErrorIs(t, validate("alice", "NoSymbols1", true), membership.ErrWeakPassword)
}

func TestPolicyValidatorStrengthPattern(t *testing.T) {
	cfg := testConfig("pw-test")
	cfg.MinNonAlphanumeric = 0
	cfg.PasswordStrengthPattern = `\d` // must contain a digit
	require.NoError(t, cfg.Validate())

	validate := membership.PolicyValidator(cfg)

	assert.NoError(t, validate("alice", "password1", true))
	assert.ErrorIs(t, validate("alice", "passwords", true), membership.ErrWeakPassword)
}

func TestGeneratePassword(t *testing.T) {
	pw, err := membership.GeneratePassword(12, 3)
	require.NoError(t, err)

	assert.Len(t, pw, 12)
	assert.GreaterOrEqual(t, nonAlnumCount(pw), 3)
}

func TestGeneratePasswordClampsSymbolCount(t *testing.T) {
	pw, err := membership.GeneratePassword(4, 10)
	require.NoError(t, err)

	assert.Len(t, pw, 4)
	assert.Equal(t, 4, nonAlnumCount(pw))
}

func TestGeneratePasswordRejectsZeroLength(t *testing.T) {
	_, err := membership.GeneratePassword(0, 0)
	assert.Error(t, err)
}

func TestGeneratedPasswordsDiffer(t *testing.T) {
	a, err := membership.GeneratePassword(16, 2)
	require.NoError(t, err)
	b, err := membership.GeneratePassword(16, 2)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
