package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"mediagate/internal/auth"
	"mediagate/internal/database"
	"mediagate/internal/model"
	"mediagate/internal/repository"
)

// TokenIssuer signs session tokens for authenticated accounts.
type TokenIssuer interface {
	IssueSession(subject string, role model.Role) (string, error)
}

// SignupInput is a viewer registration request.
type SignupInput struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// UserSession is a user plus a freshly issued session token.
type UserSession struct {
	User  *model.User
	Token string
}

// AdminSession is an admin plus a freshly issued session token.
type AdminSession struct {
	Admin *model.Admin
	Token string
}

// AccountService covers registration, login and admin bootstrap.
type AccountService interface {
	Signup(ctx context.Context, in SignupInput) (*UserSession, error)
	Login(ctx context.Context, email, password string) (*UserSession, error)
	AdminLogin(ctx context.Context, username, password string) (*AdminSession, error)

	// EnsureAdmin creates the bootstrap admin when no admin exists yet.
	// It reports whether an account was created.
	EnsureAdmin(ctx context.Context, username, password string) (bool, error)
}

type accountService struct {
	repo     repository.AccountRepository
	tokens   TokenIssuer
	validate *validator.Validate
	log      *slog.Logger

	hash  func(string) (string, error)
	check func(password, hash string) (bool, error)
	now   func() time.Time
}

// NewAccountService constructs a new AccountService.
func NewAccountService(repo repository.AccountRepository, tokens TokenIssuer, log *slog.Logger) AccountService {
	return &accountService{
		repo:     repo,
		tokens:   tokens,
		validate: newValidator(),
		log:      log.With(slog.String("component", "account_service")),
		hash:     auth.HashPassword,
		check:    auth.CheckPassword,
		now:      time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// validationError flattens validator output into field -> rule.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}
	return &ValidationError{Fields: fields}
}

// dummyHash keeps unknown-account logins as slow as wrong-password ones.
var dummyHash = sync.OnceValue(func() string {
	h, _ := auth.HashPassword("mediagate-timing-equalizer")
	return h
})

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (s *accountService) Signup(ctx context.Context, in SignupInput) (*UserSession, error) {
	in.Email = normalizeEmail(in.Email)
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return nil, validationError(err)
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return nil, ErrPasswordTooLong
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repo.CreateUser(ctx, &model.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.IssueSession(u.ID, model.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	s.log.InfoContext(ctx, "user_registered", slog.String("user_id", u.ID))
	return &UserSession{User: u, Token: token}, nil
}

func (s *accountService) Login(ctx context.Context, email, password string) (*UserSession, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	u, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_, _ = s.check(password, dummyHash())
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	ok, err := s.check(password, u.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.IssueSession(u.ID, model.RoleUser)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &UserSession{User: u, Token: token}, nil
}

func (s *accountService) AdminLogin(ctx context.Context, username, password string) (*AdminSession, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	a, err := s.repo.FindAdminByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_, _ = s.check(password, dummyHash())
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find admin: %w", err)
	}

	ok, err := s.check(password, a.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.IssueSession(a.ID, model.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	s.log.InfoContext(ctx, "admin_login", slog.String("admin_id", a.ID))
	return &AdminSession{Admin: a, Token: token}, nil
}

func (s *accountService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	n, err := s.repo.CountAdmins(ctx)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, ErrAdminBootstrapUnset
	}

	hash, err := s.hash(password)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	a, err := s.repo.CreateAdmin(ctx, &model.Admin{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		// Another instance bootstrapped first.
		if database.IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("create admin: %w", err)
	}

	s.log.InfoContext(ctx, "admin_bootstrapped", slog.String("admin_id", a.ID), slog.String("username", a.Username))
	return true, nil
}
