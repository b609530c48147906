package membership

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeUserNotFound      = "USER_NOT_FOUND"
	TextCodeRoleNotFound      = "ROLE_NOT_FOUND"
	TextCodeRoleExists        = "ROLE_ALREADY_EXISTS"
	TextCodeRolePopulated     = "ROLE_POPULATED"
	TextCodeNotInRole         = "USER_NOT_IN_ROLE"
	TextCodeLockedOut         = "ACCOUNT_LOCKED_OUT"
	TextCodeWrongAnswer       = "INCORRECT_PASSWORD_ANSWER"
	TextCodeAnswerRequired    = "PASSWORD_ANSWER_REQUIRED"
	TextCodeWeakPassword      = "WEAK_PASSWORD"
	TextCodeInvalidName       = "INVALID_NAME"
	TextCodeRetrievalDisabled = "PASSWORD_RETRIEVAL_DISABLED"
	TextCodeResetDisabled     = "PASSWORD_RESET_DISABLED"
	TextCodeNotReversible     = "PASSWORD_NOT_REVERSIBLE"
	TextCodeKeyRequired       = "DURABLE_KEY_REQUIRED"
	TextCodeScopeMismatch     = "APPLICATION_SCOPE_MISMATCH"
	TextCodeScopeClosed       = "TRANSACTION_SCOPE_CLOSED"
	TextCodeProviderFailure   = "PROVIDER_FAILURE"
)

// ErrUserNotFound is returned when an operation names an account that does
// not exist in the provider's application scope.
var ErrUserNotFound = goerrors.New("the specified user was not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrRoleNotFound is returned when an operation names a missing role.
var ErrRoleNotFound = goerrors.New("the specified role was not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRoleNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrRoleExists is returned by CreateRole for a name already taken in scope.
var ErrRoleExists = goerrors.New("role name already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeRoleExists).
	WithCode(goerrors.CodeConflict)

// ErrRolePopulated is returned by DeleteRole when the role still has
// members and the caller asked for that to be an error.
var ErrRolePopulated = goerrors.New("cannot delete a populated role", goerrors.CategoryConflict).
	WithTextCode(TextCodeRolePopulated).
	WithCode(goerrors.CodeConflict)

// ErrNotInRole is returned by RemoveUsersFromRoles when any (user, role)
// pair in the batch does not currently hold membership.
var ErrNotInRole = goerrors.New("user is not in role", goerrors.CategoryConflict).
	WithTextCode(TextCodeNotInRole).
	WithCode(goerrors.CodeConflict)

// ErrLockedOut is returned when a secret-dependent operation targets a
// locked-out account.
var ErrLockedOut = goerrors.New("the specified user is locked out", goerrors.CategoryConflict).
	WithTextCode(TextCodeLockedOut).
	WithCode(goerrors.CodeConflict)

// ErrWrongAnswer is returned when the supplied secret answer does not
// verify. The failed attempt has already been recorded by then.
var ErrWrongAnswer = goerrors.New("incorrect password answer", goerrors.CategoryValidation).
	WithTextCode(TextCodeWrongAnswer).
	WithCode(goerrors.CodeBadRequest)

// ErrAnswerRequired is returned when configuration demands a secret answer
// and none was supplied.
var ErrAnswerRequired = goerrors.New("a password answer is required", goerrors.CategoryValidation).
	WithTextCode(TextCodeAnswerRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrWeakPassword is the default validation hook's veto.
var ErrWeakPassword = goerrors.New("password does not satisfy the password policy", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrRetrievalDisabled guards GetPassword when retrieval is not enabled.
var ErrRetrievalDisabled = goerrors.New("password retrieval is not enabled", goerrors.CategoryOperation).
	WithTextCode(TextCodeRetrievalDisabled)

// ErrResetDisabled guards ResetPassword when reset is not enabled.
var ErrResetDisabled = goerrors.New("password reset is not enabled", goerrors.CategoryOperation).
	WithTextCode(TextCodeResetDisabled)

// ErrNotReversible is returned by the hashed codec's Decode; one-way
// hashed passwords can never be recovered.
var ErrNotReversible = goerrors.New("cannot decode a hashed password", goerrors.CategoryOperation).
	WithTextCode(TextCodeNotReversible)

// ErrKeyRequired is raised at construction when Encrypted or Hashed format
// is configured without a durable validation key.
var ErrKeyRequired = goerrors.New("encrypted or hashed passwords require a durable validation key", goerrors.CategoryValidation).
	WithTextCode(TextCodeKeyRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrScopeMismatch is raised when a membership link would span two
// application scopes.
var ErrScopeMismatch = goerrors.New("account and role belong to different application scopes", goerrors.CategoryConflict).
	WithTextCode(TextCodeScopeMismatch).
	WithCode(goerrors.CodeConflict)

// ErrScopeClosed is raised when a unit of work is used after commit or close.
var ErrScopeClosed = goerrors.New("transaction scope is already closed", goerrors.CategoryOperation).
	WithTextCode(TextCodeScopeClosed)

// ErrProviderFailure masks infrastructure failures when Config.LogFailures
// routes the original error to the diagnostic sink instead.
var ErrProviderFailure = goerrors.New("an error occurred, check the diagnostic log", goerrors.CategoryInternal).
	WithTextCode(TextCodeProviderFailure)

func validationError(msg string) error {
	return goerrors.New(msg, goerrors.CategoryValidation).
		WithTextCode(TextCodeInvalidName).
		WithCode(goerrors.CodeBadRequest)
}

func storageError(err error, msg string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
