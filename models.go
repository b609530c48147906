package membership

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Entity is a persistent, change-tracked row. Only Account and Role
// implement it.
type Entity interface {
	EntityID() uuid.UUID
	base() *tracked
}

// Account is the credential store's user row. Rows are scoped by
// Application; (application, username) is unique, (application, email) is
// unique only when the uniqueness policy is enabled.
//
// Mutations must go through the Set* methods so the owning unit of work
// can record which columns need writing. Writing a field directly
// bypasses change tracking and will not be persisted by an update.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acct"`
	tracked

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	Application string    `bun:"application,notnull,unique:ux_accounts_app_name"`
	UserName    string    `bun:"username,notnull,unique:ux_accounts_app_name"`
	Email       string    `bun:"email"`
	Comment     string    `bun:"comment"`
	Password    string    `bun:"password,notnull"`

	PasswordQuestion string `bun:"password_question"`
	PasswordAnswer   string `bun:"password_answer"`

	IsApproved  bool `bun:"is_approved,notnull"`
	IsLockedOut bool `bun:"is_locked_out,notnull"`

	CreatedAt            time.Time `bun:"created_at,notnull"`
	LastActivityAt       time.Time `bun:"last_activity_at"`
	LastLoginAt          time.Time `bun:"last_login_at"`
	LastPasswordChangeAt time.Time `bun:"last_password_change_at"`
	LastLockoutAt        time.Time `bun:"last_lockout_at"`

	FailedPasswordCount       int       `bun:"failed_password_count,notnull"`
	FailedPasswordWindowStart time.Time `bun:"failed_password_window_start"`
	FailedAnswerCount         int       `bun:"failed_answer_count,notnull"`
	FailedAnswerWindowStart   time.Time `bun:"failed_answer_window_start"`

	Roles []*Role `bun:"m2m:account_roles,join:Account=Role"`
}

// NewAccount initializes a fresh account the way a new row is born: all
// timestamps at creation time, counters zeroed, windows unset.
func NewAccount(application, userName string, now time.Time) *Account {
	return &Account{
		ID:                   uuid.New(),
		Application:          application,
		UserName:             userName,
		IsApproved:           true,
		CreatedAt:            now,
		LastActivityAt:       now,
		LastLoginAt:          now,
		LastPasswordChangeAt: now,
	}
}

// EntityID implements Entity.
func (a *Account) EntityID() uuid.UUID { return a.ID }

func (a *Account) SetUserName(v string) {
	if a.UserName != v {
		a.UserName = v
		a.record(a, FieldUserName)
	}
}

func (a *Account) SetEmail(v string) {
	if a.Email != v {
		a.Email = v
		a.record(a, FieldEmail)
	}
}

func (a *Account) SetComment(v string) {
	if a.Comment != v {
		a.Comment = v
		a.record(a, FieldComment)
	}
}

func (a *Account) SetPassword(encoded string) {
	if a.Password != encoded {
		a.Password = encoded
		a.record(a, FieldPassword)
	}
}

func (a *Account) SetPasswordQuestion(v string) {
	if a.PasswordQuestion != v {
		a.PasswordQuestion = v
		a.record(a, FieldPasswordQuestion)
	}
}

func (a *Account) SetPasswordAnswer(encoded string) {
	if a.PasswordAnswer != encoded {
		a.PasswordAnswer = encoded
		a.record(a, FieldPasswordAnswer)
	}
}

func (a *Account) SetApproved(v bool) {
	if a.IsApproved != v {
		a.IsApproved = v
		a.record(a, FieldApproved)
	}
}

func (a *Account) SetLockedOut(v bool) {
	if a.IsLockedOut != v {
		a.IsLockedOut = v
		a.record(a, FieldLockedOut)
	}
}

func (a *Account) SetLastActivityAt(v time.Time) {
	if !a.LastActivityAt.Equal(v) {
		a.LastActivityAt = v
		a.record(a, FieldLastActivityAt)
	}
}

func (a *Account) SetLastLoginAt(v time.Time) {
	if !a.LastLoginAt.Equal(v) {
		a.LastLoginAt = v
		a.record(a, FieldLastLoginAt)
	}
}

func (a *Account) SetLastPasswordChangeAt(v time.Time) {
	if !a.LastPasswordChangeAt.Equal(v) {
		a.LastPasswordChangeAt = v
		a.record(a, FieldLastPasswordChangeAt)
	}
}

func (a *Account) SetLastLockoutAt(v time.Time) {
	if !a.LastLockoutAt.Equal(v) {
		a.LastLockoutAt = v
		a.record(a, FieldLastLockoutAt)
	}
}

func (a *Account) SetFailedPasswordCount(v int) {
	if a.FailedPasswordCount != v {
		a.FailedPasswordCount = v
		a.record(a, FieldFailedPasswordCount)
	}
}

func (a *Account) SetFailedPasswordWindowStart(v time.Time) {
	if !a.FailedPasswordWindowStart.Equal(v) {
		a.FailedPasswordWindowStart = v
		a.record(a, FieldFailedPasswordWindowStart)
	}
}

func (a *Account) SetFailedAnswerCount(v int) {
	if a.FailedAnswerCount != v {
		a.FailedAnswerCount = v
		a.record(a, FieldFailedAnswerCount)
	}
}

func (a *Account) SetFailedAnswerWindowStart(v time.Time) {
	if !a.FailedAnswerWindowStart.Equal(v) {
		a.FailedAnswerWindowStart = v
		a.record(a, FieldFailedAnswerWindowStart)
	}
}

// Role is a named grant scoped by application; (application, name) is
// unique.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:role"`
	tracked

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	Application string    `bun:"application,notnull,unique:ux_roles_app_name"`
	Name        string    `bun:"name,notnull,unique:ux_roles_app_name"`
	Description string    `bun:"description"`
	CreatedAt   time.Time `bun:"created_at,notnull"`

	Accounts []*Account `bun:"m2m:account_roles,join:Role=Account"`
}

// NewRole initializes a fresh role.
func NewRole(application, name, description string, now time.Time) *Role {
	return &Role{
		ID:          uuid.New(),
		Application: application,
		Name:        name,
		Description: description,
		CreatedAt:   now,
	}
}

// EntityID implements Entity.
func (r *Role) EntityID() uuid.UUID { return r.ID }

func (r *Role) SetName(v string) {
	if r.Name != v {
		r.Name = v
		r.record(r, FieldRoleName)
	}
}

func (r *Role) SetDescription(v string) {
	if r.Description != v {
		r.Description = v
		r.record(r, FieldRoleDescription)
	}
}

// AccountRole is the account<->role association row.
type AccountRole struct {
	bun.BaseModel `bun:"table:account_roles,alias:ar"`

	AccountID uuid.UUID `bun:"account_id,pk,type:uuid"`
	Account   *Account  `bun:"rel:belongs-to,join:account_id=id"`
	RoleID    uuid.UUID `bun:"role_id,pk,type:uuid"`
	Role      *Role     `bun:"rel:belongs-to,join:role_id=id"`
}

// AccountInfo is the read-only account view handed back to the host. It
// never carries credential material.
type AccountInfo struct {
	ID                   uuid.UUID
	UserName             string
	Email                string
	PasswordQuestion     string
	Comment              string
	IsApproved           bool
	IsLockedOut          bool
	CreatedAt            time.Time
	LastLoginAt          time.Time
	LastActivityAt       time.Time
	LastPasswordChangeAt time.Time
	LastLockoutAt        time.Time
}

func accountInfo(a *Account) *AccountInfo {
	return &AccountInfo{
		ID:                   a.ID,
		UserName:             a.UserName,
		Email:                a.Email,
		PasswordQuestion:     a.PasswordQuestion,
		Comment:              a.Comment,
		IsApproved:           a.IsApproved,
		IsLockedOut:          a.IsLockedOut,
		CreatedAt:            a.CreatedAt,
		LastLoginAt:          a.LastLoginAt,
		LastActivityAt:       a.LastActivityAt,
		LastPasswordChangeAt: a.LastPasswordChangeAt,
		LastLockoutAt:        a.LastLockoutAt,
	}
}
