package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalori/backend/internal/models"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[string]*models.User{}} }

func (m *memUsers) Create(_ context.Context, email, hash, name string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[email]; ok {
		return nil, &pgconn.PgError{Code: "23505"}
	}
	u := &models.User{ID: uuid.New(), Email: email, PasswordHash: hash, DisplayName: name, CreatedAt: time.Now()}
	m.users[email] = u
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[email], nil
}

func TestRegisterLoginValidate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemUsers(), "test-secret")

	u, err := svc.Register(ctx, " Ayse@Example.com ", "correct horse", "Ayşe")
	require.NoError(t, err)
	assert.Equal(t, "ayse@example.com", u.Email)

	_, err = svc.Register(ctx, "ayse@example.com", "another one", "")
	assert.ErrorIs(t, err, ErrDuplicateEmail)

	_, err = svc.Login(ctx, "ayse@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, err := svc.Login(ctx, "AYSE@example.com", "correct horse")
	require.NoError(t, err)

	id, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
}

func TestValidateToken_Rejects(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemUsers(), "secret-a")
	other := NewService(newMemUsers(), "secret-b")

	foreign, err := other.IssueToken(uuid.New())
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	svc.now = func() time.Time { return time.Now().Add(-2 * tokenTTL) }
	expired, err := svc.IssueToken(uuid.New())
	require.NoError(t, err)
	svc.now = time.Now
	_, err = svc.ValidateToken(ctx, expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
