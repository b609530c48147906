package membership

import "math/bits"

// Field identifies one persisted, mutable attribute of a tracked entity.
// Mutation tracking is keyed by these tags rather than column names so a
// change set is a compile-time-checked structure.
type Field uint8

const (
	FieldUserName Field = iota
	FieldEmail
	FieldComment
	FieldPassword
	FieldPasswordQuestion
	FieldPasswordAnswer
	FieldApproved
	FieldLockedOut
	FieldLastActivityAt
	FieldLastLoginAt
	FieldLastPasswordChangeAt
	FieldLastLockoutAt
	FieldFailedPasswordCount
	FieldFailedPasswordWindowStart
	FieldFailedAnswerCount
	FieldFailedAnswerWindowStart
	FieldRoleName
	FieldRoleDescription
	fieldCount
)

var fieldColumns = [fieldCount]string{
	FieldUserName:                  "username",
	FieldEmail:                     "email",
	FieldComment:                   "comment",
	FieldPassword:                  "password",
	FieldPasswordQuestion:          "password_question",
	FieldPasswordAnswer:            "password_answer",
	FieldApproved:                  "is_approved",
	FieldLockedOut:                 "is_locked_out",
	FieldLastActivityAt:            "last_activity_at",
	FieldLastLoginAt:               "last_login_at",
	FieldLastPasswordChangeAt:      "last_password_change_at",
	FieldLastLockoutAt:             "last_lockout_at",
	FieldFailedPasswordCount:       "failed_password_count",
	FieldFailedPasswordWindowStart: "failed_password_window_start",
	FieldFailedAnswerCount:         "failed_answer_count",
	FieldFailedAnswerWindowStart:   "failed_answer_window_start",
	FieldRoleName:                  "name",
	FieldRoleDescription:           "description",
}

// Column returns the storage column the field persists to.
func (f Field) Column() string {
	return fieldColumns[f]
}

// ChangeSet is the set of fields mutated on an entity since it was loaded
// or last committed. The zero value is an empty set; all operations are
// pure bookkeeping and cannot fail.
type ChangeSet uint64

// Add records a field. Adding a field already present is a no-op.
func (s *ChangeSet) Add(f Field) {
	*s |= 1 << f
}

// Has reports whether the field has been recorded.
func (s ChangeSet) Has(f Field) bool {
	return s&(1<<f) != 0
}

// Empty reports whether nothing has been recorded.
func (s ChangeSet) Empty() bool {
	return s == 0
}

// Len returns the number of recorded fields.
func (s ChangeSet) Len() int {
	return bits.OnesCount64(uint64(s))
}

// Clear resets the set.
func (s *ChangeSet) Clear() {
	*s = 0
}

// Columns returns the storage columns for every recorded field.
func (s ChangeSet) Columns() []string {
	if s == 0 {
		return nil
	}
	cols := make([]string, 0, s.Len())
	for f := Field(0); f < fieldCount; f++ {
		if s.Has(f) {
			cols = append(cols, f.Column())
		}
	}
	return cols
}

// merge unions another set into this one.
func (s *ChangeSet) merge(other ChangeSet) {
	*s |= other
}

// tracked is embedded by persistent entities. It ties the entity to the
// unit of work that currently owns its mutations; before an entity has
// been persisted once there is no baseline to diff against, so mutations
// are not recorded and the insert writes every field.
type tracked struct {
	scope     *UnitOfWork
	persisted bool
}

func (t *tracked) base() *tracked { return t }

// record notes a field mutation against the owning scope, if any.
func (t *tracked) record(owner Entity, f Field) {
	if !t.persisted || t.scope == nil {
		return
	}
	t.scope.noteChange(owner, f)
}
