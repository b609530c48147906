package membership_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktcserver/membership"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := membership.NewConfig("app")

	assert.Equal(t, "app", cfg.ApplicationName)
	assert.Equal(t, membership.PasswordHashed, cfg.PasswordFormat)
	assert.Equal(t, 5, cfg.MaxInvalidAttempts)
	assert.Equal(t, 10*time.Minute, cfg.AttemptWindow)
	assert.Equal(t, 7, cfg.MinPasswordLength)
	assert.Equal(t, 1, cfg.MinNonAlphanumeric)
	assert.True(t, cfg.RequiresUniqueEmail)
	assert.True(t, cfg.EnablePasswordReset)
	assert.True(t, cfg.EnablePasswordRetrieval)
	assert.False(t, cfg.RequiresQuestionAndAnswer)
	assert.Equal(t, 15*time.Minute, cfg.OnlineWindow)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig("app")
	require.NoError(t, cfg.Validate())
}

func TestConfigValidateRequiresApplicationName(t *testing.T) {
	cfg := testConfig("")
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRequiresDurableKey(t *testing.T) {
	cfg := membership.NewConfig("app")
	cfg.ValidationKey = ""

	// Hashed is the default format; without a durable key it must fail
	// fast rather than hash against a key that dies with the process.
	assert.ErrorIs(t, cfg.Validate(), membership.ErrKeyRequired)

	cfg.PasswordFormat = membership.PasswordClear
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsBadStrengthPattern(t *testing.T) {
	cfg := testConfig("app")
	cfg.PasswordStrengthPattern = `(` // unbalanced
	assert.Error(t, cfg.Validate())
}

func TestConfigValidateRejectsUnknownFormat(t *testing.T) {
	cfg := testConfig("app")
	cfg.PasswordFormat = membership.PasswordFormat(42)
	assert.Error(t, cfg.Validate())
}

func TestPasswordFormatString(t *testing.T) {
	assert.Equal(t, "clear", membership.PasswordClear.String())
	assert.Equal(t, "encrypted", membership.PasswordEncrypted.String())
	assert.Equal(t, "hashed", membership.PasswordHashed.String())
	assert.Equal(t, "unknown", membership.PasswordFormat(42).String())
}
