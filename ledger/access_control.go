package ledger

import (
	"fmt"
	"strings"
	"time"
)

const (
	rootAdminKey  = "root_admin"
	roleKeyPrefix = "role_"
)

func roleKey(identity string, role Role) string {
	return roleKeyPrefix + string(role) + "_" + identity
}

// AccessControl is the role-membership table.
type AccessControl struct {
	r  Reader
	tx Tx
}

// NewAccessControl binds the table to a transaction. tx may be nil for
// read-only use, in which case the mutating methods must not be called.
func NewAccessControl(r Reader, tx Tx) *AccessControl {
	return &AccessControl{r: r, tx: tx}
}

func (a *AccessControl) Initialized() (bool, error) {
	data, err := a.r.GetState(rootAdminKey)
	if err != nil {
		return false, fmt.Errorf("failed to read root admin: %w", err)
	}
	return data != nil, nil
}

// Seed makes identity the root admin. It can only happen once.
func (a *AccessControl) Seed(identity string, at time.Time) error {
	initialized, err := a.Initialized()
	if err != nil {
		return err
	}
	if initialized {
		return ErrAlreadyInitialized
	}
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("%w: admin identity is empty", ErrTransferToZeroAddress)
	}
	if err := a.tx.PutState(rootAdminKey, []byte(identity)); err != nil {
		return fmt.Errorf("failed to write root admin: %w", err)
	}
	return a.put(identity, RoleAdmin, "SYSTEM", at, true)
}

func (a *AccessControl) HasRole(identity string, role Role) (bool, error) {
	var grant RoleGrant
	found, err := getJSON(a.r, roleKey(identity, role), &grant)
	if err != nil {
		return false, err
	}
	return found && grant.Active, nil
}

// HasAnyRole reports whether identity holds at least one of roles.
func (a *AccessControl) HasAnyRole(identity string, roles ...Role) (bool, error) {
	for _, role := range roles {
		ok, err := a.HasRole(identity, role)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// RequireRole fails with ErrUnauthorized unless identity holds one of roles.
func (a *AccessControl) RequireRole(identity string, roles ...Role) error {
	ok, err := a.HasAnyRole(identity, roles...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s requires role %v", ErrUnauthorized, identity, roles)
	}
	return nil
}

func (a *AccessControl) RolesOf(identity string) ([]Role, error) {
	held := []Role{}
	for _, role := range Roles {
		ok, err := a.HasRole(identity, role)
		if err != nil {
			return nil, err
		}
		if ok {
			held = append(held, role)
		}
	}
	return held, nil
}

func (a *AccessControl) Grant(admin, identity string, role Role, at time.Time) error {
	if err := a.checkAdmin(admin, identity); err != nil {
		return err
	}
	return a.put(identity, role, admin, at, true)
}

func (a *AccessControl) Revoke(admin, identity string, role Role, at time.Time) error {
	if err := a.checkAdmin(admin, identity); err != nil {
		return err
	}
	if role == RoleAdmin {
		root, err := a.r.GetState(rootAdminKey)
		if err != nil {
			return fmt.Errorf("failed to read root admin: %w", err)
		}
		if string(root) == identity {
			return fmt.Errorf("%w: cannot revoke the root admin", ErrUnauthorized)
		}
	}
	return a.put(identity, role, admin, at, false)
}

func (a *AccessControl) checkAdmin(admin, identity string) error {
	if err := a.RequireRole(admin, RoleAdmin); err != nil {
		return err
	}
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("%w: role target is empty", ErrTransferToZeroAddress)
	}
	return nil
}

func (a *AccessControl) put(identity string, role Role, by string, at time.Time, active bool) error {
	grant := RoleGrant{
		Identity:  identity,
		Role:      role,
		GrantedBy: by,
		GrantedAt: at.UTC(),
		Active:    active,
	}
	return putJSON(a.tx, roleKey(identity, role), grant)
}
