package inmemdb

import (
	"context"
	"strings"

	"github.com/trezcool/tapir/core"
	"github.com/trezcool/tapir/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyUser(usr user.User) user.User {
	usr.Roles = copyStrings(usr.Roles)
	if usr.PasswordHash != nil {
		usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	}
	return usr
}

func (repo *userRepository) CheckUniqueness(_ context.Context, username, email, excludedID string) error {
	for _, usr := range repo.db.users.filter(func(u user.User) bool { return u.ID != excludedID }) {
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	usr = copyUser(usr)
	repo.db.users.insert(usr.ID, usr)
	return copyUser(usr), nil
}

var userComparators = map[string]func(a, b user.User) int{
	"name":       func(a, b user.User) int { return strings.Compare(a.Name, b.Name) },
	"username":   func(a, b user.User) int { return strings.Compare(a.Username, b.Username) },
	"email":      func(a, b user.User) int { return strings.Compare(a.Email, b.Email) },
	"created_at": func(a, b user.User) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"last_login": func(a, b user.User) int { return a.LastLogin.Compare(b.LastLogin) },
	"is_active": func(a, b user.User) int {
		switch {
		case a.IsActive == b.IsActive:
			return 0
		case b.IsActive:
			return -1
		}
		return 1
	},
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	users := repo.db.users.filter(filter.Match)
	orderBy(users, ordering, userComparators)
	for i := range users {
		users[i] = copyUser(users[i])
	}
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	var match func(u user.User) bool
	switch {
	case filter.ID != "":
		match = func(u user.User) bool { return u.ID == filter.ID }
	case filter.Username != "":
		match = func(u user.User) bool { return u.Username == filter.Username }
	case filter.Email != "":
		match = func(u user.User) bool { return u.Email == filter.Email }
	case filter.UsernameOrEmail != "":
		match = func(u user.User) bool {
			return u.Username == filter.UsernameOrEmail || u.Email == filter.UsernameOrEmail
		}
	default:
		return user.User{}, user.ErrNotFound
	}
	if usr, ok := repo.db.users.find(match); ok {
		return copyUser(usr), nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	usr = copyUser(usr)
	if !repo.db.users.update(usr.ID, usr) {
		return user.User{}, user.ErrNotFound
	}
	return copyUser(usr), nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string) (int, error) {
	var n int
	for _, id := range ids {
		if repo.db.users.delete(id) {
			n++
		}
	}
	return n, nil
}
