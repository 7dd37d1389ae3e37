package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kalori/backend/internal/models"
	"github.com/kalori/backend/internal/repository"
)

// ProfileCreator adds the default profile row for a new user.
type ProfileCreator interface {
	CreateTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error
}

type Repository struct {
	db       repository.TxDB
	profiles ProfileCreator
}

func NewRepository(db repository.TxDB, profiles ProfileCreator) *Repository {
	return &Repository{db: db, profiles: profiles}
}

// Create inserts a user and their free-plan profile in one transaction.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName string) (*models.User, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	u := &models.User{Email: email, DisplayName: displayName}
	err = tx.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, display_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, email, passwordHash, displayName).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := r.profiles.CreateTx(ctx, tx, u.ID); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return u, nil
}

// GetByEmail returns the user with the password hash. Returns nil if not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM users WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
