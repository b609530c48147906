package membership_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ktcserver/membership"
)

func testPolicy() membership.LockoutPolicy {
	return membership.LockoutPolicy{
		MaxAttempts: 5,
		Window:      10 * time.Minute,
	}
}

func TestLockoutTripsAtMaxAttempts(t *testing.T) {
	policy := testPolicy()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	acct := membership.NewAccount("app", "alice", base)

	for i := 1; i <= 4; i++ {
		policy.RecordFailure(acct, membership.FailurePassword, base.Add(time.Duration(i)*time.Second))
		assert.Equal(t, i, acct.FailedPasswordCount)
		assert.False(t, acct.IsLockedOut)
	}

	fifth := base.Add(5 * time.Second)
	policy.RecordFailure(acct, membership.FailurePassword, fifth)

	assert.Equal(t, 5, acct.FailedPasswordCount)
	assert.True(t, acct.IsLockedOut)
	assert.Equal(t, fifth, acct.LastLockoutAt)
}

func TestLockoutDoesNotRestamp(t *testing.T) {
	policy := testPolicy()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	acct := membership.NewAccount("app", "alice", base)

	for i := 1; i <= 5; i++ {
		policy.RecordFailure(acct, membership.FailurePassword, base.Add(time.Duration(i)*time.Second))
	}
	stamped := acct.LastLockoutAt

	// Further failures keep counting but the lockout time stays put.
	policy.RecordFailure(acct, membership.FailurePassword, base.Add(time.Minute))

	assert.Equal(t, 6, acct.FailedPasswordCount)
	assert.True(t, acct.IsLockedOut)
	assert.Equal(t, stamped, acct.LastLockoutAt)
}

func TestLockoutWindowExpiryResetsCount(t *testing.T) {
	policy := testPolicy()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	acct := membership.NewAccount("app", "alice", base)

	policy.RecordFailure(acct, membership.FailurePassword, base)
	policy.RecordFailure(acct, membership.FailurePassword, base.Add(time.Minute))
	assert.Equal(t, 2, acct.FailedPasswordCount)

	// Past the window the next failure starts a fresh count.
	late := base.Add(time.Minute + 10*time.Minute + time.Second)
	policy.RecordFailure(acct, membership.FailurePassword, late)

	assert.Equal(t, 1, acct.FailedPasswordCount)
	assert.Equal(t, late, acct.FailedPasswordWindowStart)
	assert.False(t, acct.IsLockedOut)
}

func TestLockoutWindowSlidesWithEachFailure(t *testing.T) {
	policy := testPolicy()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	acct := membership.NewAccount("app", "alice", base)

	// Failures 9 minutes apart: each lands inside the window the previous
	// one restarted, so the count never resets even though the span far
	// exceeds one window.
	for i := 0; i < 5; i++ {
		policy.RecordFailure(acct, membership.FailurePassword, base.Add(time.Duration(i)*9*time.Minute))
	}

	assert.Equal(t, 5, acct.FailedPasswordCount)
	assert.True(t, acct.IsLockedOut)
}

func TestLockoutChannelsAreIndependent(t *testing.T) {
	policy := testPolicy()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	acct := membership.NewAccount("app", "alice", base)

	policy.RecordFailure(acct, membership.FailurePassword, base)
	policy.RecordFailure(acct, membership.FailureAnswer, base)
	policy.RecordFailure(acct, membership.FailureAnswer, base.Add(time.Second))

	assert.Equal(t, 1, acct.FailedPasswordCount)
	assert.Equal(t, 2, acct.FailedAnswerCount)
}

func TestRecordSuccess(t *testing.T) {
	policy := testPolicy()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("stamps last login when approved and unlocked", func(t *testing.T) {
		acct := membership.NewAccount("app", "alice", base)
		login := base.Add(time.Hour)

		assert.True(t, policy.RecordSuccess(acct, login))
		assert.Equal(t, login, acct.LastLoginAt)
	})

	t.Run("refuses a locked-out account", func(t *testing.T) {
		acct := membership.NewAccount("app", "alice", base)
		acct.IsLockedOut = true

		assert.False(t, policy.RecordSuccess(acct, base.Add(time.Hour)))
		assert.Equal(t, base, acct.LastLoginAt)
	})

	t.Run("refuses an unapproved account", func(t *testing.T) {
		acct := membership.NewAccount("app", "alice", base)
		acct.IsApproved = false

		assert.False(t, policy.RecordSuccess(acct, base.Add(time.Hour)))
		assert.Equal(t, base, acct.LastLoginAt)
	})
}

func TestUnlockLeavesCounters(t *testing.T) {
	policy := testPolicy()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	acct := membership.NewAccount("app", "alice", base)

	for i := 0; i < 5; i++ {
		policy.RecordFailure(acct, membership.FailurePassword, base.Add(time.Duration(i)*time.Second))
	}
	assert.True(t, acct.IsLockedOut)

	policy.Unlock(acct)

	assert.False(t, acct.IsLockedOut)
	assert.Equal(t, 5, acct.FailedPasswordCount)
}
