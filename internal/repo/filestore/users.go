// Package filestore persists users and reset tokens as JSON arrays on local
// disk. It assumes a single process owns the files; inside that process every
// operation is serialized by the repo's mutex.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crossskill/coachhub/internal/domain/user"
	"github.com/crossskill/coachhub/internal/observability"
	"github.com/crossskill/coachhub/internal/repo"
)

type UsersRepo struct {
	mu   sync.Mutex
	file jsonFile[user.User]
	seed user.User
	log  *slog.Logger
	prom *observability.Prom
}

// NewUsersRepo returns a repo over path. seed is written as the only record
// the first time the file is found missing.
func NewUsersRepo(path string, seed user.User, log *slog.Logger, prom *observability.Prom) *UsersRepo {
	if log == nil {
		log = slog.Default()
	}
	return &UsersRepo{
		file: jsonFile[user.User]{path: path},
		seed: seed,
		log:  log,
		prom: prom,
	}
}

// load must be called with mu held. A corrupt or unreadable file is logged and
// reported as an empty collection together with ok=false, which mutations use
// to refuse overwriting it.
func (r *UsersRepo) load(ctx context.Context) (users []user.User, ok bool) {
	users, exists, err := r.file.read()
	if err != nil {
		r.prom.StoreError("users", "read")
		r.log.ErrorContext(ctx, "users store unreadable, treating as empty", "path", r.file.path, "err", err)
		return []user.User{}, false
	}

	if !exists {
		users = []user.User{r.seed}
		if err := r.file.write(users); err != nil {
			r.prom.StoreError("users", "seed")
			r.log.ErrorContext(ctx, "could not write seeded users store", "path", r.file.path, "err", err)
		} else {
			r.log.InfoContext(ctx, "users store initialised with default admin", "path", r.file.path, "username", r.seed.Username)
		}
	}

	return users, true
}

func (r *UsersRepo) save(ctx context.Context, op string, users []user.User) error {
	if err := r.file.write(users); err != nil {
		r.prom.StoreError("users", op)
		r.log.ErrorContext(ctx, "could not write users store", "path", r.file.path, "op", op, "err", err)
		return fmt.Errorf("%w: %v", repo.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, _ := r.load(ctx)
	return users, nil
}

func (r *UsersRepo) GetByUsername(ctx context.Context, username string) (user.User, error) {
	return r.find(ctx, func(u user.User) bool { return u.Username == username })
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.find(ctx, func(u user.User) bool { return u.Email == email })
}

func (r *UsersRepo) find(ctx context.Context, match func(user.User) bool) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, _ := r.load(ctx)
	for _, u := range users {
		if match(u) {
			return u, nil
		}
	}
	return user.User{}, repo.ErrUserNotFound
}

// Exists reports whether any record already uses username or email.
func (r *UsersRepo) Exists(ctx context.Context, username, email string) (bool, error) {
	_, err := r.find(ctx, func(u user.User) bool { return u.Username == username || u.Email == email })
	if errors.Is(err, repo.ErrUserNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Create appends u unless its username or email is taken.
func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.load(ctx)
	if !ok {
		return user.User{}, repo.ErrStoreUnavailable
	}

	for _, existing := range users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return user.User{}, repo.ErrDuplicateUser
		}
	}

	users = append(users, u)
	if err := r.save(ctx, "create", users); err != nil {
		return user.User{}, err
	}
	return u, nil
}

// UpdatePassword stores hash for username and drops any legacy plaintext.
func (r *UsersRepo) UpdatePassword(ctx context.Context, username, hash string, at time.Time) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users, ok := r.load(ctx)
	if !ok {
		return user.User{}, repo.ErrStoreUnavailable
	}

	for i := range users {
		if users[i].Username != username {
			continue
		}

		users[i].PasswordHash = hash
		users[i].LegacyPassword = ""
		users[i].UpdatedAt = at

		if err := r.save(ctx, "update_password", users); err != nil {
			return user.User{}, err
		}
		return users[i], nil
	}

	return user.User{}, repo.ErrUserNotFound
}

// Ping fails when the file exists but cannot be decoded.
func (r *UsersRepo) Ping(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, _, err := r.file.read(); err != nil {
		return fmt.Errorf("%w: %v", repo.ErrStoreUnavailable, err)
	}
	return nil
}
