package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/repository/memory"
)

func newTestService(t *testing.T) (*service, *memory.Store) {
	t.Helper()
	s := memory.New()
	return NewService(s, s.Profiles, s.Accounts, "test-secret", slog.New(slog.NewTextHandler(io.Discard, nil))), s
}

func TestRegisterCreatesProfileAndAccounts(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, " Alice@Example.com ", "correct horse", "alice", models.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.NotEqual(t, "correct horse", p.PasswordHash)

	accs, err := store.Accounts.ListByOwner(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, accs, 2)
	kinds := []string{accs[0].Kind, accs[1].Kind}
	assert.ElementsMatch(t, []string{models.AccountAvailable, models.AccountEscrow}, kinds)
}

func TestRegisterRejections(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@example.com", "password1", "a", models.RoleWorker)
	require.NoError(t, err)

	cases := map[string]struct{ email, password, username, role string }{
		"duplicate email": {"A@example.com", "password1", "b", models.RoleWorker},
		"bad email":       {"not-an-email", "password1", "b", models.RoleWorker},
		"short password":  {"b@example.com", "short", "b", models.RoleWorker},
		"no username":     {"b@example.com", "password1", " ", models.RoleWorker},
		"admin role":      {"b@example.com", "password1", "b", models.RoleAdmin},
		"unknown role":    {"b@example.com", "password1", "b", "requester"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(ctx, c.email, c.password, c.username, c.role)
			assert.ErrorIs(t, err, models.ErrInvalidInput)
		})
	}
}

func TestRegisterPromotesConfiguredAdmins(t *testing.T) {
	svc, store := newTestService(t)
	svc.WithAdminEmails([]string{" Ops@Example.com "})
	ctx := context.Background()

	p, err := svc.Register(ctx, "ops@example.com", "password1", "ops", models.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, p.Role)

	stored, err := store.Profiles.GetByEmail(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, stored.Role)
	assert.NoError(t, (&Policy{Profiles: store.Profiles}).RequireAdmin(ctx, p.ID))

	other, err := svc.Register(ctx, "dev@example.com", "password1", "dev", models.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, models.RoleWorker, other.Role)

	// a listed address still cannot ask for admin directly
	svc.WithAdminEmails([]string{"root@example.com"})
	_, err = svc.Register(ctx, "root@example.com", "password1", "root", models.RoleAdmin)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestLoginAndValidateToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	p, err := svc.Register(ctx, "w@example.com", "password1", "w", models.RoleWorker)
	require.NoError(t, err)

	token, err := svc.Login(ctx, "W@example.com", "password1")
	require.NoError(t, err)

	id, role, err := svc.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, p.ID, id)
	assert.Equal(t, models.RoleWorker, role)

	_, err = svc.Login(ctx, "w@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.ValidateToken(ctx, token+"x")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	other := NewService(nil, nil, nil, "other-secret", slog.Default())
	_, _, err = other.ValidateToken(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPolicyRequireAdmin(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	p, err := svc.Register(ctx, "x@example.com", "password1", "x", models.RoleClient)
	require.NoError(t, err)
	policy := &Policy{Profiles: store.Profiles}

	assert.ErrorIs(t, policy.RequireAdmin(ctx, p.ID), models.ErrUnauthorized)
	assert.ErrorIs(t, policy.RequireAdmin(ctx, uuid.New()), models.ErrUnauthorized)

	require.NoError(t, store.Profiles.SetRole(ctx, p.ID, models.RoleAdmin))
	assert.NoError(t, policy.RequireAdmin(ctx, p.ID))
}

func TestHandlerRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	body, _ := json.Marshal(RegisterRequest{Email: "h@example.com", Password: "password1", Username: "h", Role: models.RoleClient})
	rr := httptest.NewRecorder()
	h.Register(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.NotContains(t, rr.Body.String(), "password")

	rr = httptest.NewRecorder()
	h.Register(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rr.Code)

	login, _ := json.Marshal(LoginRequest{Email: "h@example.com", Password: "password1"})
	rr = httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(login)))
	require.Equal(t, http.StatusOK, rr.Code)
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	bad, _ := json.Marshal(LoginRequest{Email: "h@example.com", Password: "nope-nope"})
	rr = httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(bad)))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
