package membership

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type membershipLink struct {
	accountID uuid.UUID
	roleID    uuid.UUID
}

// UnitOfWork is a scoped transaction over the storage collaborator. Every
// provider operation opens exactly one top-level scope, works inside it,
// and commits or closes it before returning.
//
// Scopes nest: Begin returns a child that shares this scope's identity
// map, so loading the same logical row in parent and child yields the
// same in-memory instance. A child commit does not touch storage; it
// merges the child's change set, staged rows, and membership links into
// the parent. Only the top-level commit writes, in one storage
// transaction, and updates carry only the columns recorded as changed
// plus the key.
type UnitOfWork struct {
	db     *bun.DB
	parent *UnitOfWork

	identity map[uuid.UUID]Entity
	adopted  []Entity
	dirty    map[Entity]ChangeSet
	inserts  []Entity
	deletes  []Entity
	links    []membershipLink
	unlinks  []membershipLink
	closed   bool
}

// NewUnitOfWork opens a top-level scope on db.
func NewUnitOfWork(db *bun.DB) *UnitOfWork {
	return &UnitOfWork{
		db:       db,
		identity: map[uuid.UUID]Entity{},
		dirty:    map[Entity]ChangeSet{},
	}
}

// Begin opens a child scope. The child records its own mutations and
// hands them to this scope when it commits.
func (u *UnitOfWork) Begin() *UnitOfWork {
	return &UnitOfWork{
		parent:   u,
		identity: u.identity,
		dirty:    map[Entity]ChangeSet{},
	}
}

// conn returns the storage handle of the scope tree's root.
func (u *UnitOfWork) conn() bun.IDB {
	root := u
	for root.parent != nil {
		root = root.parent
	}
	return root.db
}

// noteChange records a field mutation against this scope.
func (u *UnitOfWork) noteChange(e Entity, f Field) {
	cs := u.dirty[e]
	cs.Add(f)
	u.dirty[e] = cs
}

// Pending returns the change set this scope holds for the entity.
func (u *UnitOfWork) Pending(e Entity) ChangeSet {
	return u.dirty[e]
}

// own makes this scope the recipient of the entity's future mutations.
func (u *UnitOfWork) own(e Entity) {
	t := e.base()
	if t.scope != u {
		t.scope = u
		u.adopted = append(u.adopted, e)
	}
}

// adopt registers a freshly scanned row, deferring to an instance already
// present in the identity map.
func (u *UnitOfWork) adopt(e Entity) Entity {
	if existing, ok := u.identity[e.EntityID()]; ok {
		u.own(existing)
		return existing
	}
	e.base().persisted = true
	u.identity[e.EntityID()] = e
	u.own(e)
	return e
}

// Insert stages a never-persisted entity. It is written as a full row at
// top-level commit; mutations before then need no tracking.
func (u *UnitOfWork) Insert(e Entity) {
	u.identity[e.EntityID()] = e
	u.inserts = append(u.inserts, e)
	u.own(e)
}

// Delete stages removal of an entity. Membership rows referencing it are
// removed in the same transaction.
func (u *UnitOfWork) Delete(e Entity) {
	u.deletes = append(u.deletes, e)
}

// Link stages a membership association. Accounts can only be linked to
// roles of the same application scope.
func (u *UnitOfWork) Link(acct *Account, role *Role) error {
	if acct.Application != role.Application {
		return ErrScopeMismatch
	}
	u.links = append(u.links, membershipLink{accountID: acct.ID, roleID: role.ID})
	return nil
}

// Unlink stages removal of a membership association.
func (u *UnitOfWork) Unlink(acct *Account, role *Role) {
	u.unlinks = append(u.unlinks, membershipLink{accountID: acct.ID, roleID: role.ID})
}

// AccountByName loads an account by scoped name, or nil when absent.
func (u *UnitOfWork) AccountByName(ctx context.Context, application, userName string) (*Account, error) {
	acct := new(Account)
	err := u.conn().NewSelect().Model(acct).
		Where("application = ?", application).
		Where("username = ?", userName).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u.adopt(acct).(*Account), nil
}

// AccountByID loads an account by key within the application scope, or
// nil when absent.
func (u *UnitOfWork) AccountByID(ctx context.Context, application string, id uuid.UUID) (*Account, error) {
	acct := new(Account)
	err := u.conn().NewSelect().Model(acct).
		Where("application = ?", application).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u.adopt(acct).(*Account), nil
}

// AccountsByNames loads every account in scope whose name is in names.
func (u *UnitOfWork) AccountsByNames(ctx context.Context, application string, names []string) ([]*Account, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var rows []*Account
	err := u.conn().NewSelect().Model(&rows).
		Where("application = ?", application).
		Where("username IN (?)", bun.In(names)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Account, len(rows))
	for i, r := range rows {
		out[i] = u.adopt(r).(*Account)
	}
	return out, nil
}

// RoleByName loads a role by scoped name, or nil when absent.
func (u *UnitOfWork) RoleByName(ctx context.Context, application, name string) (*Role, error) {
	role := new(Role)
	err := u.conn().NewSelect().Model(role).
		Where("application = ?", application).
		Where("name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u.adopt(role).(*Role), nil
}

// RolesByNames loads every role in scope whose name is in names.
func (u *UnitOfWork) RolesByNames(ctx context.Context, application string, names []string) ([]*Role, error) {
	if len(names) == 0 {
		return nil, nil
	}
	var rows []*Role
	err := u.conn().NewSelect().Model(&rows).
		Where("application = ?", application).
		Where("name IN (?)", bun.In(names)).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Role, len(rows))
	for i, r := range rows {
		out[i] = u.adopt(r).(*Role)
	}
	return out, nil
}

// Commit finishes the scope. A child scope hands its accumulated work to
// its parent; the top-level scope applies everything in one storage
// transaction. Either way the scope is spent afterwards.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if u.closed {
		return ErrScopeClosed
	}

	if u.parent != nil {
		for e, cs := range u.dirty {
			merged := u.parent.dirty[e]
			merged.merge(cs)
			u.parent.dirty[e] = merged
		}
		u.parent.inserts = append(u.parent.inserts, u.inserts...)
		u.parent.deletes = append(u.parent.deletes, u.deletes...)
		u.parent.links = append(u.parent.links, u.links...)
		u.parent.unlinks = append(u.parent.unlinks, u.unlinks...)
		u.finish()
		return nil
	}

	err := u.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, e := range u.inserts {
			if _, err := tx.NewInsert().Model(e).Exec(ctx); err != nil {
				return err
			}
		}
		for e, cs := range u.dirty {
			if cs.Empty() {
				continue
			}
			if _, err := tx.NewUpdate().Model(e).
				Column(cs.Columns()...).
				WherePK().
				Exec(ctx); err != nil {
				return err
			}
		}
		for _, l := range u.links {
			if _, err := tx.NewInsert().
				Model(&AccountRole{AccountID: l.accountID, RoleID: l.roleID}).
				Exec(ctx); err != nil {
				return err
			}
		}
		for _, l := range u.unlinks {
			if _, err := tx.NewDelete().Model((*AccountRole)(nil)).
				Where("account_id = ?", l.accountID).
				Where("role_id = ?", l.roleID).
				Exec(ctx); err != nil {
				return err
			}
		}
		for _, e := range u.deletes {
			var linkCol string
			switch e.(type) {
			case *Account:
				linkCol = "account_id"
			case *Role:
				linkCol = "role_id"
			}
			if linkCol != "" {
				if _, err := tx.NewDelete().Model((*AccountRole)(nil)).
					Where("? = ?", bun.Ident(linkCol), e.EntityID()).
					Exec(ctx); err != nil {
					return err
				}
			}
			if _, err := tx.NewDelete().Model(e).WherePK().Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, e := range u.inserts {
		e.base().persisted = true
	}
	u.finish()
	return nil
}

// Close releases the scope. Uncommitted work is discarded; calling Close
// after Commit is a no-op, so it belongs in a defer on every path.
func (u *UnitOfWork) Close() {
	if u.closed {
		return
	}
	u.finish()
}

func (u *UnitOfWork) finish() {
	for _, e := range u.adopted {
		e.base().scope = u.parent
		if u.parent != nil {
			// Hand ownership up so the parent detaches the entity when
			// it finishes, even if it never loaded it itself.
			u.parent.adopted = append(u.parent.adopted, e)
		}
	}
	u.adopted = nil
	u.dirty = map[Entity]ChangeSet{}
	u.inserts = nil
	u.deletes = nil
	u.links = nil
	u.unlinks = nil
	u.closed = true
}
