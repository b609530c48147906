package membership

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RoleProvider implements the role and membership half of the host
// contract. Same construction and transaction discipline as
// MembershipProvider; the two share the database handle and scope name.
type RoleProvider struct {
	db     *bun.DB
	cfg    *Config
	logger Logger
	now    func() time.Time
}

// RoleProviderOption customizes role provider construction.
type RoleProviderOption func(*RoleProvider)

// WithRoleLogger overrides the diagnostic sink.
func WithRoleLogger(l Logger) RoleProviderOption {
	return func(p *RoleProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithRoleClock injects a custom clock.
func WithRoleClock(clock func() time.Time) RoleProviderOption {
	return func(p *RoleProvider) {
		if clock != nil {
			p.now = clock
		}
	}
}

// NewRoleProvider validates cfg and returns a ready provider.
func NewRoleProvider(db *bun.DB, cfg *Config, opts ...RoleProviderOption) (*RoleProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	RegisterModels(db)

	p := &RoleProvider{
		db:     db,
		cfg:    cfg,
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

func (p *RoleProvider) begin() *UnitOfWork {
	return NewUnitOfWork(p.db)
}

func (p *RoleProvider) fail(op string, err error) error {
	if p.cfg.LogFailures {
		p.logger.Error("%s: %v", op, err)
		return ErrProviderFailure
	}
	return err
}

// CreateRole creates a role in the provider's application scope.
func (p *RoleProvider) CreateRole(ctx context.Context, name, description string) error {
	if err := validateName("role", name); err != nil {
		return err
	}

	uow := p.begin()
	defer uow.Close()

	existing, err := uow.RoleByName(ctx, p.cfg.ApplicationName, name)
	if err != nil {
		return p.fail("CreateRole", storageError(err, "failed to check role name"))
	}
	if existing != nil {
		return ErrRoleExists
	}

	uow.Insert(NewRole(p.cfg.ApplicationName, name, description, p.now()))
	if err := uow.Commit(ctx); err != nil {
		return p.fail("CreateRole", storageError(err, "failed to create role"))
	}
	return nil
}

// DeleteRole removes a role and its membership rows. With failIfPopulated
// set, a role that still has members is refused instead.
func (p *RoleProvider) DeleteRole(ctx context.Context, name string, failIfPopulated bool) error {
	if err := validateName("role", name); err != nil {
		return err
	}

	uow := p.begin()
	defer uow.Close()

	role, err := uow.RoleByName(ctx, p.cfg.ApplicationName, name)
	if err != nil {
		return p.fail("DeleteRole", storageError(err, "failed to load role"))
	}
	if role == nil {
		return ErrRoleNotFound
	}

	if failIfPopulated {
		n, err := p.db.NewSelect().
			Model((*AccountRole)(nil)).
			Where("role_id = ?", role.ID).
			Count(ctx)
		if err != nil {
			return p.fail("DeleteRole", storageError(err, "failed to count role members"))
		}
		if n > 0 {
			return ErrRolePopulated
		}
	}

	uow.Delete(role)
	if err := uow.Commit(ctx); err != nil {
		return p.fail("DeleteRole", storageError(err, "failed to delete role"))
	}
	return nil
}

// RoleExists reports whether the named role exists in scope.
func (p *RoleProvider) RoleExists(ctx context.Context, name string) (bool, error) {
	if err := validateName("role", name); err != nil {
		return false, err
	}

	n, err := p.db.NewSelect().
		Model((*Role)(nil)).
		Where("application = ?", p.cfg.ApplicationName).
		Where("name = ?", name).
		Count(ctx)
	if err != nil {
		return false, p.fail("RoleExists", storageError(err, "failed to check role"))
	}
	return n > 0, nil
}

// GetAllRoles returns every role name in scope, sorted ascending.
func (p *RoleProvider) GetAllRoles(ctx context.Context) ([]string, error) {
	var names []string
	err := p.db.NewSelect().
		Model((*Role)(nil)).
		Column("name").
		Where("application = ?", p.cfg.ApplicationName).
		OrderExpr("name ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, p.fail("GetAllRoles", storageError(err, "failed to list roles"))
	}
	return names, nil
}

// AddUsersToRoles grants every named user membership in every named role.
// The whole request is validated first: malformed names, unknown users, and
// unknown roles abort before anything is granted. Pairs that already hold
// membership are left as they are.
func (p *RoleProvider) AddUsersToRoles(ctx context.Context, userNames, roleNames []string) error {
	uow := p.begin()
	defer uow.Close()

	accounts, roles, err := p.resolvePairs(ctx, uow, userNames, roleNames, "AddUsersToRoles")
	if err != nil {
		return err
	}

	existing, err := p.membershipSet(ctx, accounts, roles, "AddUsersToRoles")
	if err != nil {
		return err
	}

	for _, acct := range accounts {
		for _, role := range roles {
			if existing[membershipLink{accountID: acct.ID, roleID: role.ID}] {
				continue
			}
			if err := uow.Link(acct, role); err != nil {
				return err
			}
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return p.fail("AddUsersToRoles", storageError(err, "failed to add users to roles"))
	}
	return nil
}

// RemoveUsersFromRoles revokes membership for every user/role pair. The
// request is all-or-nothing: every pair must currently hold membership, or
// nothing is revoked.
func (p *RoleProvider) RemoveUsersFromRoles(ctx context.Context, userNames, roleNames []string) error {
	uow := p.begin()
	defer uow.Close()

	accounts, roles, err := p.resolvePairs(ctx, uow, userNames, roleNames, "RemoveUsersFromRoles")
	if err != nil {
		return err
	}

	existing, err := p.membershipSet(ctx, accounts, roles, "RemoveUsersFromRoles")
	if err != nil {
		return err
	}

	for _, acct := range accounts {
		for _, role := range roles {
			if !existing[membershipLink{accountID: acct.ID, roleID: role.ID}] {
				return ErrNotInRole
			}
		}
	}

	for _, acct := range accounts {
		for _, role := range roles {
			uow.Unlink(acct, role)
		}
	}

	if err := uow.Commit(ctx); err != nil {
		return p.fail("RemoveUsersFromRoles", storageError(err, "failed to remove users from roles"))
	}
	return nil
}

// resolvePairs validates both name lists and loads the referenced rows,
// failing if any name is malformed or unknown.
func (p *RoleProvider) resolvePairs(ctx context.Context, uow *UnitOfWork, userNames, roleNames []string, op string) ([]*Account, []*Role, error) {
	userNames = dedupe(userNames)
	roleNames = dedupe(roleNames)

	for _, name := range userNames {
		if err := validateName("user", name); err != nil {
			return nil, nil, err
		}
	}
	for _, name := range roleNames {
		if err := validateName("role", name); err != nil {
			return nil, nil, err
		}
	}

	roles, err := uow.RolesByNames(ctx, p.cfg.ApplicationName, roleNames)
	if err != nil {
		return nil, nil, p.fail(op, storageError(err, "failed to load roles"))
	}
	if len(roles) != len(roleNames) {
		return nil, nil, ErrRoleNotFound
	}

	accounts, err := uow.AccountsByNames(ctx, p.cfg.ApplicationName, userNames)
	if err != nil {
		return nil, nil, p.fail(op, storageError(err, "failed to load users"))
	}
	if len(accounts) != len(userNames) {
		return nil, nil, ErrUserNotFound
	}

	return accounts, roles, nil
}

// membershipSet loads the membership rows currently linking any of the
// accounts to any of the roles.
func (p *RoleProvider) membershipSet(ctx context.Context, accounts []*Account, roles []*Role, op string) (map[membershipLink]bool, error) {
	set := map[membershipLink]bool{}
	if len(accounts) == 0 || len(roles) == 0 {
		return set, nil
	}

	accountIDs := make([]uuid.UUID, len(accounts))
	for i, a := range accounts {
		accountIDs[i] = a.ID
	}
	roleIDs := make([]uuid.UUID, len(roles))
	for i, r := range roles {
		roleIDs[i] = r.ID
	}

	var rows []AccountRole
	err := p.db.NewSelect().
		Model(&rows).
		Where("account_id IN (?)", bun.In(accountIDs)).
		Where("role_id IN (?)", bun.In(roleIDs)).
		Scan(ctx)
	if err != nil {
		return nil, p.fail(op, storageError(err, "failed to load memberships"))
	}

	for _, row := range rows {
		set[membershipLink{accountID: row.AccountID, roleID: row.RoleID}] = true
	}
	return set, nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0:0]
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// IsUserInRole reports whether the user holds membership in the role.
// Both the user and the role must exist.
func (p *RoleProvider) IsUserInRole(ctx context.Context, userName, roleName string) (bool, error) {
	if err := validateName("user", userName); err != nil {
		return false, err
	}
	if err := validateName("role", roleName); err != nil {
		return false, err
	}

	uow := p.begin()
	defer uow.Close()

	role, err := uow.RoleByName(ctx, p.cfg.ApplicationName, roleName)
	if err != nil {
		return false, p.fail("IsUserInRole", storageError(err, "failed to load role"))
	}
	if role == nil {
		return false, ErrRoleNotFound
	}

	acct, err := uow.AccountByName(ctx, p.cfg.ApplicationName, userName)
	if err != nil {
		return false, p.fail("IsUserInRole", storageError(err, "failed to load user"))
	}
	if acct == nil {
		return false, ErrUserNotFound
	}

	n, err := p.db.NewSelect().
		Model((*AccountRole)(nil)).
		Where("account_id = ?", acct.ID).
		Where("role_id = ?", role.ID).
		Count(ctx)
	if err != nil {
		return false, p.fail("IsUserInRole", storageError(err, "failed to check membership"))
	}
	return n > 0, nil
}

// GetRolesForUser returns the names of the roles the user belongs to,
// sorted ascending. An unknown user is ErrUserNotFound rather than an
// empty list, so callers can tell "no roles" from "no such user".
func (p *RoleProvider) GetRolesForUser(ctx context.Context, userName string) ([]string, error) {
	if err := validateName("user", userName); err != nil {
		return nil, err
	}

	uow := p.begin()
	defer uow.Close()

	acct, err := uow.AccountByName(ctx, p.cfg.ApplicationName, userName)
	if err != nil {
		return nil, p.fail("GetRolesForUser", storageError(err, "failed to load user"))
	}
	if acct == nil {
		return nil, ErrUserNotFound
	}

	var names []string
	err = p.db.NewSelect().
		Model((*Role)(nil)).
		Column("role.name").
		Join("JOIN account_roles AS ar ON ar.role_id = role.id").
		Where("role.application = ?", p.cfg.ApplicationName).
		Where("ar.account_id = ?", acct.ID).
		OrderExpr("role.name ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, p.fail("GetRolesForUser", storageError(err, "failed to list roles for user"))
	}
	return names, nil
}

// GetUsersInRole returns the names of every member of the role, sorted
// ascending.
func (p *RoleProvider) GetUsersInRole(ctx context.Context, roleName string) ([]string, error) {
	return p.usersInRole(ctx, roleName, "", false, "GetUsersInRole")
}

// FindUsersInRole returns the members of the role whose name matches the
// LIKE pattern, sorted ascending. Wildcards are the caller's.
func (p *RoleProvider) FindUsersInRole(ctx context.Context, roleName, pattern string) ([]string, error) {
	return p.usersInRole(ctx, roleName, pattern, true, "FindUsersInRole")
}

func (p *RoleProvider) usersInRole(ctx context.Context, roleName, pattern string, filtered bool, op string) ([]string, error) {
	if err := validateName("role", roleName); err != nil {
		return nil, err
	}

	uow := p.begin()
	defer uow.Close()

	role, err := uow.RoleByName(ctx, p.cfg.ApplicationName, roleName)
	if err != nil {
		return nil, p.fail(op, storageError(err, "failed to load role"))
	}
	if role == nil {
		return nil, ErrRoleNotFound
	}

	q := p.db.NewSelect().
		Model((*Account)(nil)).
		Column("acct.username").
		Join("JOIN account_roles AS ar ON ar.account_id = acct.id").
		Where("acct.application = ?", p.cfg.ApplicationName).
		Where("ar.role_id = ?", role.ID)
	if filtered {
		q = q.Where("acct.username LIKE ?", pattern)
	}

	var names []string
	if err := q.OrderExpr("acct.username ASC").Scan(ctx, &names); err != nil {
		return nil, p.fail(op, storageError(err, "failed to list users in role"))
	}
	return names, nil
}
