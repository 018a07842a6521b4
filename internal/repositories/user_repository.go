package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"skillswap-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository exposes the slice of the user store this service needs:
// lookups for message resolution plus presence bookkeeping.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (models.User, error)
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string, lastSeen time.Time) error
}

// UserRepo is a sqlx-backed repository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID string) (models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT id, name, email, avatar, is_online, last_seen FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return u, err
}

// SetOnline flags the user online.
func (r *UserRepo) SetOnline(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_online = TRUE WHERE id=$1`, userID)
	return err
}

// SetOffline flags the user offline and records when they were last seen.
func (r *UserRepo) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_online = FALSE, last_seen = $2 WHERE id=$1`, userID, lastSeen)
	return err
}
