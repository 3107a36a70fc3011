package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bereka/backend/internal/models"
	"github.com/bereka/backend/internal/repository"
)

var (
	// ErrDuplicateEmail is returned when registering with an email that already exists.
	ErrDuplicateEmail     = fmt.Errorf("%w: email already registered", models.ErrInvalidInput)
	ErrInvalidCredentials = fmt.Errorf("%w: invalid credentials", models.ErrUnauthorized)
	ErrInvalidToken       = fmt.Errorf("%w: invalid token", models.ErrUnauthorized)
)

const (
	minPasswordLen = 8
	tokenTTL       = 24 * time.Hour
)

type ProfileStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
}

type AccountCreator interface {
	CreateForOwner(ctx context.Context, tx pgx.Tx, ownerID uuid.UUID) error
}

type Service interface {
	Register(ctx context.Context, email, password, username, role string) (*models.Profile, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error)
}

type service struct {
	db       repository.TxBeginner
	profiles ProfileStore
	accounts AccountCreator
	secret   []byte
	admins   map[string]bool
	log      *slog.Logger
}

func NewService(db repository.TxBeginner, profiles ProfileStore, accounts AccountCreator, secret string, log *slog.Logger) *service {
	return &service{db: db, profiles: profiles, accounts: accounts, secret: []byte(secret), log: log}
}

// WithAdminEmails makes Register store the listed addresses as admins.
func (s *service) WithAdminEmails(emails []string) *service {
	s.admins = make(map[string]bool, len(emails))
	for _, e := range emails {
		s.admins[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return s
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Register creates a profile together with its AVAILABLE and ESCROW accounts.
// Admin is not a self-service role; only addresses configured through
// WithAdminEmails are stored as admins.
func (s *service) Register(ctx context.Context, email, password, username, role string) (*models.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	username = strings.TrimSpace(username)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email", models.ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidInput, minPasswordLen)
	}
	if username == "" {
		return nil, fmt.Errorf("%w: username required", models.ErrInvalidInput)
	}
	if role != models.RoleWorker && role != models.RoleClient {
		return nil, fmt.Errorf("%w: invalid role", models.ErrInvalidInput)
	}
	if s.admins[email] {
		role = models.RoleAdmin
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p := &models.Profile{ID: uuid.New(), Email: email, Username: username, Role: role, PasswordHash: string(hash)}
	if err := s.profiles.CreateTx(ctx, tx, p); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	if err := s.accounts.CreateForOwner(ctx, tx, p.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	s.log.Info("profile registered", "user_id", p.ID, "role", role)
	return p, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	p, err := s.profiles.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, models.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(p.ID, p.Role)
}

func (s *service) issueToken(userID uuid.UUID, role string) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken returns the subject and the role claim. The role claim is a
// hint for clients only; privileged operations re-read the stored role.
func (s *service) ValidateToken(_ context.Context, token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	return id, c.Role, nil
}

// Policy answers authorization questions from stored profiles.
type Policy struct {
	Profiles interface {
		GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	}
}

// RequireAdmin fails unless userID is a stored admin profile.
func (p *Policy) RequireAdmin(ctx context.Context, userID uuid.UUID) error {
	prof, err := p.Profiles.GetByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: admin role required", models.ErrUnauthorized)
	}
	if err != nil {
		return err
	}
	if prof.Role != models.RoleAdmin {
		return fmt.Errorf("%w: admin role required", models.ErrUnauthorized)
	}
	return nil
}
