package membership

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CreateStatus is the outcome of CreateUser. Expected business failures
// come back as a status, not an error.
type CreateStatus int

const (
	CreateSuccess CreateStatus = iota
	CreateInvalidPassword
	CreateInvalidAnswer
	CreateInvalidEmail
	CreateDuplicateEmail
	CreateDuplicateUserName
	CreateProviderError
)

func (s CreateStatus) String() string {
	switch s {
	case CreateSuccess:
		return "success"
	case CreateInvalidPassword:
		return "invalid password"
	case CreateInvalidAnswer:
		return "invalid answer"
	case CreateInvalidEmail:
		return "invalid email"
	case CreateDuplicateEmail:
		return "duplicate email"
	case CreateDuplicateUserName:
		return "duplicate user name"
	case CreateProviderError:
		return "provider error"
	}
	return "unknown"
}

// CreateUserInput carries everything CreateUser needs. Key is an optional
// externally supplied account key; zero means generate one.
type CreateUserInput struct {
	UserName         string
	Password         string
	Email            string
	PasswordQuestion string
	PasswordAnswer   string
	IsApproved       bool
	Key              uuid.UUID
}

// UpdateUserInput is the profile-visible subset UpdateUser may overwrite.
type UpdateUserInput struct {
	UserName    string
	Email       string
	Comment     string
	IsApproved  bool
	LastLoginAt time.Time
}

// MembershipProvider implements the account half of the host contract
// over a Bun database handle. Construction resolves the configuration
// once; the provider itself is safe for concurrent use, each operation
// opening its own transaction scope.
type MembershipProvider struct {
	db        *bun.DB
	cfg       *Config
	codec     PasswordCodec
	validator PasswordValidator
	lockout   LockoutPolicy
	logger    Logger
	now       func() time.Time
}

// ProviderOption customizes provider construction.
type ProviderOption func(*MembershipProvider)

// WithLogger overrides the diagnostic sink.
func WithLogger(l Logger) ProviderOption {
	return func(p *MembershipProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) ProviderOption {
	return func(p *MembershipProvider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// WithPasswordValidator replaces the default policy hook. The hook may
// veto any new password with a reason.
func WithPasswordValidator(v PasswordValidator) ProviderOption {
	return func(p *MembershipProvider) {
		if v != nil {
			p.validator = v
		}
	}
}

// NewMembershipProvider validates cfg, builds the password codec, and
// returns a ready provider.
func NewMembershipProvider(db *bun.DB, cfg *Config, opts ...ProviderOption) (*MembershipProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := NewPasswordCodec(cfg)
	if err != nil {
		return nil, err
	}
	RegisterModels(db)

	p := &MembershipProvider{
		db:        db,
		cfg:       cfg,
		codec:     codec,
		validator: PolicyValidator(cfg),
		lockout: LockoutPolicy{
			MaxAttempts: cfg.MaxInvalidAttempts,
			Window:      cfg.AttemptWindow,
		},
		logger: defLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Codec exposes the provider's password codec, mostly for hosts that
// encode secrets elsewhere (imports, fixtures).
func (p *MembershipProvider) Codec() PasswordCodec { return p.codec }

func (p *MembershipProvider) begin() *UnitOfWork {
	return NewUnitOfWork(p.db)
}

// fail handles an infrastructure failure per configuration: routed to the
// diagnostic sink and masked, or returned as-is. Business failures never
// pass through here.
func (p *MembershipProvider) fail(op string, err error) error {
	if p.cfg.LogFailures {
		p.logger.Error("%s: %v", op, err)
		return ErrProviderFailure
	}
	return err
}

// ValidateUser verifies a name/password pair. A verified success on an
// approved, unlocked account stamps the last login; a verified failure
// feeds the password failure window. Unknown names report false without
// error.
func (p *MembershipProvider) ValidateUser(ctx context.Context, userName, password string) (bool, error) {
	uow := p.begin()
	defer uow.Close()

	acct, err := uow.AccountByName(ctx, p.cfg.ApplicationName, userName)
	if err != nil {
		return false, p.fail("ValidateUser", storageError(err, "failed to load user"))
	}
	if acct == nil {
		return false, nil
	}

	ok, err := p.codec.Verify(password, acct.Password)
	if err != nil {
		return false, p.fail("ValidateUser", err)
	}

	if ok {
		if !p.lockout.RecordSuccess(acct, p.now()) {
			return false, nil
		}
	} else {
		p.lockout.RecordFailure(acct, FailurePassword, p.now())
	}

	if err := uow.Commit(ctx); err != nil {
		return false, p.fail("ValidateUser", storageError(err, "failed to commit login bookkeeping"))
	}
	return ok && !acct.IsLockedOut && acct.IsApproved, nil
}

// CreateUser creates an account in the provider's application scope. All
// expected business failures surface as a CreateStatus; only validation
// and infrastructure problems carry an error.
func (p *MembershipProvider) CreateUser(ctx context.Context, in CreateUserInput) (*AccountInfo, CreateStatus, error) {
	if err := validateName("user", in.UserName); err != nil {
		return nil, CreateProviderError, err
	}

	if err := p.validator(in.UserName, in.Password, true); err != nil {
		return nil, CreateInvalidPassword, nil
	}

	if p.cfg.RequiresQuestionAndAnswer && in.PasswordAnswer == "" {
		return nil, CreateInvalidAnswer, nil
	}

	if p.cfg.RequiresUniqueEmail {
		if !validEmail(in.Email) {
			return nil, CreateInvalidEmail, nil
		}
		existing, err := p.GetUserNameByEmail(ctx, in.Email)
		if err != nil {
			return nil, CreateProviderError, err
		}
		if existing != "" {
			return nil, CreateDuplicateEmail, nil
		}
	}

	uow := p.begin()
	defer uow.Close()

	if taken, err := uow.AccountByName(ctx, p.cfg.ApplicationName, in.UserName); err != nil {
		return nil, CreateProviderError, p.fail("CreateUser", storageError(err, "failed to check user name"))
	} else if taken != nil {
		return nil, CreateDuplicateUserName, nil
	}

	password, err := p.codec.Encode(in.Password)
	if err != nil {
		return nil, CreateProviderError, p.fail("CreateUser", err)
	}
	answer, err := p.codec.Encode(in.PasswordAnswer)
	if err != nil {
		return nil, CreateProviderError, p.fail("CreateUser", err)
	}

	acct := NewAccount(p.cfg.ApplicationName, in.UserName, p.now())
	if in.Key != uuid.Nil {
		acct.ID = in.Key
	}
	acct.Password = password
	acct.Email = in.Email
	acct.PasswordQuestion = in.PasswordQuestion
	acct.PasswordAnswer = answer
	acct.IsApproved = in.IsApproved

	uow.Insert(acct)
	if err := uow.Commit(ctx); err != nil {
		// The unique index backstops the pre-check under concurrency.
		return nil, CreateProviderError, p.fail("CreateUser", storageError(err, "failed to create user"))
	}

	return accountInfo(acct), CreateSuccess, nil
}

// ChangePassword re-validates the old password, runs the validation hook
// on the new one, and re-encodes. A wrong old password reports false (and
// has already fed the failure window via ValidateUser).
func (p *MembershipProvider) ChangePassword(ctx context.Context, userName, oldPassword, newPassword string) (bool, error) {
	ok, err := p.ValidateUser(ctx, userName, oldPassword)
	if err != nil || !ok {
		return false, err
	}

	if err := p.validator(userName, newPassword, false); err != nil {
		return false, err
	}

	uow := p.begin()
	defer uow.Close()

	acct, err := uow.AccountByName(ctx, p.cfg.ApplicationName, userName)
	if err != nil {
		return false, p.fail("ChangePassword", storageError(err, "failed to load user"))
	}
	if acct == nil {
		return false, nil
	}

	encoded, err := p.codec.Encode(newPassword)
	if err != nil {
		return false, p.fail("ChangePassword", err)
	}
	acct.SetPassword(encoded)
	acct.SetLastPasswordChangeAt(p.now())

	if err := uow.Commit(ctx); err != nil {
		return false, p.fail("ChangePassword", storageError(err, "failed to change password"))
	}
	return true, nil
}

// ChangePasswordQuestionAndAnswer re-validates the password, then swaps
// the secret question and encoded answer.
func (p *MembershipProvider) ChangePasswordQuestionAndAnswer(ctx context.Context, userName, password, newQuestion, newAnswer string) (bool, error) {
	ok, err := p.ValidateUser(ctx, userName, password)
	if err != nil || !ok {
		return false, err
	}

	uow := p.begin()
	defer uow.Close()

	acct, err := uow.AccountByName(ctx, p.cfg.ApplicationName, userName)
	if err != nil {
		return false, p.fail("ChangePasswordQuestionAndAnswer", storageError(err, "failed to load user"))
	}
	if acct == nil {
		return false, nil
	}

	encoded, err := p.codec.Encode(newAnswer)
	if err != nil {
		return false, p.fail("ChangePasswordQuestionAndAnswer", err)
	}
	acct.SetPasswordQuestion(newQuestion)
	acct.SetPasswordAnswer(encoded)

	if err := uow.Commit(ctx); err != nil {
		return false, p.fail("ChangePasswordQuestionAndAnswer", storageError(err, "failed to change question and answer"))
	}
	return true, nil
}

// GetUser looks an account up by name. Absent accounts are (nil, nil).
// When touchActivity is set the read also stamps the last activity time.
func (p *MembershipProvider) GetUser(ctx context.Context, userName string, touchActivity bool) (*AccountInfo, error) {
	uow := p.begin()
	defer uow.Close()

	acct, err := uow.AccountByName(ctx, p.cfg.ApplicationName, userName)
	if err != nil {
		return nil, p.fail("GetUser", storageError(err, "failed to load user"))
	}
	return p.finishGet(ctx, uow, acct, touchActivity, "GetUser")
}

// GetUserByID is GetUser keyed by account id.
func (p *MembershipProvider) GetUserByID(ctx context.Context, id uuid.UUID, touchActivity bool) (*AccountInfo, error) {
	uow := p.begin()
	defer uow.Close()

	acct, err := uow.AccountByID(ctx, p.cfg.ApplicationName, id)
	if err != nil {
		return nil, p.fail("GetUserByID", storageError(err, "failed to load user"))
	}
	return p.finishGet(ctx, uow, acct, touchActivity, "GetUserByID")
}

func (p *MembershipProvider) finishGet(ctx context.Context, uow *UnitOfWork, acct *Account, touchActivity bool, op string) (*AccountInfo, error) {
	if acct == nil {
		return nil, nil
	}
	info := accountInfo(acct)
	if touchActivity {
		acct.SetLastActivityAt(p.now())
		if err := uow.Commit(ctx); err != nil {
			return nil, p.fail(op, storageError(err, "failed to touch last activity"))
		}
	}
	return info, nil
}

// GetUserNameByEmail returns the name of the account holding the email,
// or "" when none does. With unique email disabled and several matches,
// the first name in sort order wins.
func (p *MembershipProvider) GetUserNameByEmail(ctx context.Context, email string) (string, error) {
	var names []string
	err := p.db.NewSelect().
		Model((*Account)(nil)).
		Column("username").
		Where("application = ?", p.cfg.ApplicationName).
		Where("email = ?", email).
		OrderExpr("username ASC").
		Limit(1).
		Scan(ctx, &names)
	if err != nil {
		return "", p.fail("GetUserNameByEmail", storageError(err, "failed to search by email"))
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

// DeleteUser removes the account and its membership rows. The cascade
// flag is accepted for host-contract compatibility; association rows
// always go with the account.
func (p *MembershipProvider) DeleteUser(ctx context.Context, userName string, cascade bool) (bool, error) {
	uow := p.begin()
	defer uow.Close()

	acct, err := uow.AccountByName(ctx, p.cfg.ApplicationName, userName)
	if err != nil {
		return false, p.fail("DeleteUser", storageError(err, "failed to load user"))
	}
	if acct == nil {
		return false, nil
	}

	uow.Delete(acct)
	if err := uow.Commit(ctx); err != nil {
		return false, p.fail("DeleteUser", storageError(err, "failed to delete user"))
	}
	return true, nil
}

// UpdateUser overwrites the profile-visible subset of the account:
// email, comment, approved flag, and last login.
func (p *MembershipProvider) UpdateUser(ctx context.Context, in UpdateUserInput) error {
	uow := p.begin()
	defer uow.Close()

	acct, err := uow.AccountByName(ctx, p.cfg.ApplicationName, in.UserName)
	if err != nil {
		return p.fail("UpdateUser", storageError(err, "failed to load user"))
	}
	if acct == nil {
		return ErrUserNotFound
	}

	acct.SetEmail(in.Email)
	acct.SetComment(in.Comment)
	acct.SetApproved(in.IsApproved)
	acct.SetLastLoginAt(in.LastLoginAt)

	if err := uow.Commit(ctx); err != nil {
		return p.fail("UpdateUser", storageError(err, "failed to update user"))
	}
	return nil
}

// GetPassword recovers the stored password, gated by the retrieval flag
// and the codec (hashed passwords are never retrievable). A wrong secret
// answer feeds the answer failure window before reporting.
func (p *MembershipProvider) GetPassword(ctx context.Context, userName, answer string) (string, error) {
	if !p.cfg.EnablePasswordRetrieval {
		return "", ErrRetrievalDisabled
	}
	if p.cfg.PasswordFormat == PasswordHashed {
		return "", ErrNotReversible
	}

	uow := p.begin()
	defer uow.Close()

	acct, err := uow.AccountByName(ctx, p.cfg.ApplicationName, userName)
	if err != nil {
		return "", p.fail("GetPassword", storageError(err, "failed to load user"))
	}
	if acct == nil {
		return "", ErrUserNotFound
	}
	if acct.IsLockedOut {
		return "", ErrLockedOut
	}

	if p.cfg.RequiresQuestionAndAnswer {
		if err := p.checkAnswer(ctx, uow, acct, answer, "GetPassword"); err != nil {
			return "", err
		}
	}

	plain, err := p.codec.Decode(acct.Password)
	if err != nil {
		return "", p.fail("GetPassword", err)
	}
	return plain, nil
}

// ResetPassword generates a fresh password meeting the configured policy
// and stores it, gated by the reset flag and the secret answer.
func (p *MembershipProvider) ResetPassword(ctx context.Context, userName, answer string) (string, error) {
	if !p.cfg.EnablePasswordReset {
		return "", ErrResetDisabled
	}

	uow := p.begin()
	defer uow.Close()

	acct, err := uow.AccountByName(ctx, p.cfg.ApplicationName, userName)
	if err != nil {
		return "", p.fail("ResetPassword", storageError(err, "failed to load user"))
	}
	if acct == nil {
		return "", ErrUserNotFound
	}
	if acct.IsLockedOut {
		return "", ErrLockedOut
	}

	if p.cfg.RequiresQuestionAndAnswer {
		if answer == "" {
			p.lockout.RecordFailure(acct, FailureAnswer, p.now())
			if err := uow.Commit(ctx); err != nil {
				return "", p.fail("ResetPassword", storageError(err, "failed to record answer failure"))
			}
			return "", ErrAnswerRequired
		}
		if err := p.checkAnswer(ctx, uow, acct, answer, "ResetPassword"); err != nil {
			return "", err
		}
	}

	length := p.cfg.MinPasswordLength
	if length < 8 {
		length = 8
	}
	newPassword, err := GeneratePassword(length, p.cfg.MinNonAlphanumeric)
	if err != nil {
		return "", p.fail("ResetPassword", err)
	}
	if err := p.validator(userName, newPassword, false); err != nil {
		return "", err
	}

	encoded, err := p.codec.Encode(newPassword)
	if err != nil {
		return "", p.fail("ResetPassword", err)
	}
	acct.SetPassword(encoded)
	acct.SetLastPasswordChangeAt(p.now())

	if err := uow.Commit(ctx); err != nil {
		return "", p.fail("ResetPassword", storageError(err, "failed to reset password"))
	}
	return newPassword, nil
}

// checkAnswer verifies the secret answer inside an open scope, recording
// and committing a failure before reporting ErrWrongAnswer.
func (p *MembershipProvider) checkAnswer(ctx context.Context, uow *UnitOfWork, acct *Account, answer, op string) error {
	ok, err := p.codec.Verify(answer, acct.PasswordAnswer)
	if err != nil {
		return p.fail(op, err)
	}
	if ok {
		return nil
	}
	p.lockout.RecordFailure(acct, FailureAnswer, p.now())
	if err := uow.Commit(ctx); err != nil {
		return p.fail(op, storageError(err, "failed to record answer failure"))
	}
	return ErrWrongAnswer
}

// UnlockUser clears the lockout flag. Failure counters keep their values;
// only window expiry resets them.
func (p *MembershipProvider) UnlockUser(ctx context.Context, userName string) (bool, error) {
	uow := p.begin()
	defer uow.Close()

	acct, err := uow.AccountByName(ctx, p.cfg.ApplicationName, userName)
	if err != nil {
		return false, p.fail("UnlockUser", storageError(err, "failed to load user"))
	}
	if acct == nil {
		return false, nil
	}

	p.lockout.Unlock(acct)
	if err := uow.Commit(ctx); err != nil {
		return false, p.fail("UnlockUser", storageError(err, "failed to unlock user"))
	}
	return true, nil
}

// GetNumberOfUsersOnline counts accounts whose last activity falls inside
// the configured online window.
func (p *MembershipProvider) GetNumberOfUsersOnline(ctx context.Context) (int, error) {
	compare := p.now().Add(-p.cfg.OnlineWindow)
	n, err := p.db.NewSelect().
		Model((*Account)(nil)).
		Where("application = ?", p.cfg.ApplicationName).
		Where("last_activity_at > ?", compare).
		Count(ctx)
	if err != nil {
		return 0, p.fail("GetNumberOfUsersOnline", storageError(err, "failed to count online users"))
	}
	return n, nil
}

// FindUsersByName returns the page of accounts whose name matches the
// LIKE pattern, plus the total match count. Wildcards are the caller's.
func (p *MembershipProvider) FindUsersByName(ctx context.Context, pattern string, pageIndex, pageSize int) ([]*AccountInfo, int, error) {
	return p.findUsers(ctx, "username", pattern, pageIndex, pageSize, "FindUsersByName")
}

// FindUsersByEmail is FindUsersByName over the email column.
func (p *MembershipProvider) FindUsersByEmail(ctx context.Context, pattern string, pageIndex, pageSize int) ([]*AccountInfo, int, error) {
	return p.findUsers(ctx, "email", pattern, pageIndex, pageSize, "FindUsersByEmail")
}

// GetAllUsers returns one page of the scope's accounts plus the total.
func (p *MembershipProvider) GetAllUsers(ctx context.Context, pageIndex, pageSize int) ([]*AccountInfo, int, error) {
	return p.findUsers(ctx, "", "", pageIndex, pageSize, "GetAllUsers")
}

// findUsers implements the shared paging math: start = pageSize*pageIndex,
// end = min(start+pageSize, total). Pages past the end are empty, never an
// error. Results sort by username ascending.
func (p *MembershipProvider) findUsers(ctx context.Context, column, pattern string, pageIndex, pageSize int, op string) ([]*AccountInfo, int, error) {
	if pageIndex < 0 || pageSize < 1 {
		return nil, 0, validationError("page index must be >= 0 and page size >= 1")
	}

	var rows []*Account
	q := p.db.NewSelect().
		Model(&rows).
		Where("application = ?", p.cfg.ApplicationName)
	if column != "" {
		q = q.Where("? LIKE ?", bun.Ident(column), strings.TrimSpace(pattern))
	}

	total, err := q.
		OrderExpr("username ASC").
		Limit(pageSize).
		Offset(pageSize * pageIndex).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, p.fail(op, storageError(err, "failed to page users"))
	}

	infos := make([]*AccountInfo, len(rows))
	for i, acct := range rows {
		infos[i] = accountInfo(acct)
	}
	return infos, total, nil
}
