package user

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/tapir/core"
)

// Roles are permissions; RoleSuperuser implies all of them.
const (
	RoleSuperuser = "admin:"

	RoleCoopView       = "coop.view"
	RoleCoopManage     = "coop.manage"
	RoleProductsView   = "products.view"
	RoleProductsManage = "products.manage"
	RolePaymentsView   = "payments.view"
	RolePaymentsManage = "payments.manage"
	RoleAccountsView   = "accounts.view"
	RoleAccountsManage = "accounts.manage"
	RoleShiftsManage   = "shifts.manage"
)

var (
	AllRoles = []string{
		RoleSuperuser,
		RoleCoopView, RoleCoopManage,
		RoleProductsView, RoleProductsManage,
		RolePaymentsView, RolePaymentsManage,
		RoleAccountsView, RoleAccountsManage,
		RoleShiftsManage,
	}

	// a manage role implies the matching view role
	impliedRoles = map[string]string{
		RoleCoopManage:     RoleCoopView,
		RoleProductsManage: RoleProductsView,
		RolePaymentsManage: RolePaymentsView,
		RoleAccountsManage: RoleAccountsView,
	}

	Roles = []Role{
		{Name: "Superuser", Value: RoleSuperuser},
		{Name: "View cooperative", Value: RoleCoopView},
		{Name: "Manage cooperative", Value: RoleCoopManage},
		{Name: "View products", Value: RoleProductsView},
		{Name: "Manage products", Value: RoleProductsManage},
		{Name: "View payments", Value: RolePaymentsView},
		{Name: "Manage payments", Value: RolePaymentsManage},
		{Name: "View accounts", Value: RoleAccountsView},
		{Name: "Manage accounts", Value: RoleAccountsManage},
		{Name: "Manage shifts", Value: RoleShiftsManage},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HasRole reports whether `roles` grant `role`.
func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == RoleSuperuser || r == role || impliedRoles[r] == role {
			return true
		}
	}
	return false
}

// CanGrant reports whether a holder of `granter` roles may hand out all `roles`.
func CanGrant(granter, roles []string) bool {
	for _, r := range roles {
		if !HasRole(granter, r) {
			return false
		}
	}
	return true
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) HasPerm(role string) bool {
	return HasRole(u.Roles, role)
}

func (u *User) IsSuperuser() bool {
	return HasRole(u.Roles, RoleSuperuser)
}

// IsStaff reports whether the user holds any role at all.
func (u *User) IsStaff() bool {
	return len(u.Roles) > 0
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc *Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	sort.Strings(qf.Roles)
}

// Match applies the filter to a single User (used by in-memory storage).
func (qf *QueryFilter) Match(usr User) bool {
	if qf == nil {
		return true
	}
	if qf.Search != "" {
		s := strings.ToLower(qf.Search)
		if !(strings.Contains(strings.ToLower(usr.Name), s) ||
			strings.Contains(strings.ToLower(usr.Username), s) ||
			strings.Contains(strings.ToLower(usr.Email), s)) {
			return false
		}
	}
	if len(qf.Roles) > 0 {
		var found bool
		for _, r := range qf.Roles {
			for _, ur := range usr.Roles {
				if strings.HasPrefix(ur, r) {
					found = true
				}
			}
		}
		if !found {
			return false
		}
	}
	if qf.IsActive != nil && usr.IsActive != *qf.IsActive {
		return false
	}
	if !qf.CreatedFrom.IsZero() && usr.CreatedAt.Before(qf.CreatedFrom.UTC()) {
		return false
	}
	if !qf.CreatedTo.IsZero() && usr.CreatedAt.After(qf.CreatedTo.UTC()) {
		return false
	}
	return true
}

// GetFilter selects a single User; the first non-empty field is used.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail string
}
