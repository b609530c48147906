package membership

import "time"

// FailureChannel names the two independent failure counters on an account.
type FailureChannel int

const (
	// FailurePassword tracks failed password verifications.
	FailurePassword FailureChannel = iota + 1
	// FailureAnswer tracks failed secret-answer verifications.
	FailureAnswer
)

// LockoutPolicy is the authentication state machine applied to an account
// after every verified credential failure. Each channel keeps a
// (count, windowStart) pair; once count reaches MaxAttempts inside the
// window the account trips to locked out. Nothing but an explicit unlock
// leaves that state.
//
// The window start advances to the time of every failure, so a streak of
// failures arriving before expiry keeps the window alive indefinitely.
// That sliding behavior is deliberate and pinned by tests.
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// RecordFailure applies one verified failure on the given channel at time
// now. All mutations go through the account's tracked setters so an
// owning unit of work persists exactly the touched columns.
func (p LockoutPolicy) RecordFailure(acct *Account, ch FailureChannel, now time.Time) {
	var count int
	var windowStart time.Time

	switch ch {
	case FailurePassword:
		count = acct.FailedPasswordCount
		windowStart = acct.FailedPasswordWindowStart
	case FailureAnswer:
		count = acct.FailedAnswerCount
		windowStart = acct.FailedAnswerWindowStart
	default:
		return
	}

	if now.After(windowStart.Add(p.Window)) {
		count = 1
	} else {
		count++
	}

	switch ch {
	case FailurePassword:
		acct.SetFailedPasswordCount(count)
		acct.SetFailedPasswordWindowStart(now)
	case FailureAnswer:
		acct.SetFailedAnswerCount(count)
		acct.SetFailedAnswerWindowStart(now)
	}

	if count >= p.MaxAttempts && !acct.IsLockedOut {
		acct.SetLockedOut(true)
		acct.SetLastLockoutAt(now)
	}
}

// RecordSuccess applies a verified password success: an approved,
// not-locked-out account gets its last login stamped. Failure counters
// are deliberately left alone; only window expiry resets them.
func (p LockoutPolicy) RecordSuccess(acct *Account, now time.Time) bool {
	if acct.IsLockedOut || !acct.IsApproved {
		return false
	}
	acct.SetLastLoginAt(now)
	return true
}

// Unlock clears the lockout flag unconditionally. Counters and window
// starts are untouched.
func (p LockoutPolicy) Unlock(acct *Account) {
	acct.SetLockedOut(false)
}
