package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"accounts/backend/internal/cache"
	"accounts/backend/internal/domain/account"
	"accounts/backend/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

const (
	minPasswordLength = 8
	resetCodeLength   = 6
	emailCacheTTL     = time.Hour
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// IdentityProvider is the external identity collaborator. It owns credential
// verification and code delivery.
type IdentityProvider interface {
	Register(ctx context.Context, identity, secret, contact string) error
	Confirm(ctx context.Context, identity, code string) error
	Authenticate(ctx context.Context, identity, secret string) (string, error)
	InitiateReset(ctx context.Context, identity string) error
	CompleteReset(ctx context.Context, identity, newSecret, code string) error
}

// CredentialHasher produces the one-way hash stored on the local user row.
type CredentialHasher interface {
	Hash(plaintext string) (string, error)
}

// TokenValidator resolves an access token to the identity it was issued for.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// Repository is the user persistence the service depends on.
type Repository interface {
	Create(ctx context.Context, u *account.User, dir *cache.Directive) (*account.User, error)
	FindByID(ctx context.Context, id int64, dir *cache.Directive) (*account.User, error)
	FindByEmail(ctx context.Context, email string, dir *cache.Directive) (*account.User, error)
	Update(ctx context.Context, id int64, fields map[string]any, dir *cache.Directive) (*account.User, error)
	Delete(ctx context.Context, id int64, dir *cache.Directive) error
	Paginate(ctx context.Context, skip, take int, dir *cache.Directive) (*repository.Page[account.User], error)
}

// Service orchestrates account workflows across the identity provider, the
// credential hasher and the user repository.
type Service struct {
	repo     Repository
	idp      IdentityProvider
	hasher   CredentialHasher
	tokens   TokenValidator
	keys     cache.Client
	pages    *cache.Generations
	cacheTTL time.Duration
	pageTTL  time.Duration
	logger   zerolog.Logger
}

// PageNamespace is the cache namespace of user list pages.
const PageNamespace = "users"

// NewService constructs a user service. keys is used to drop secondary cache
// entries (lookups by email, list pages) when a user changes; it may be nil.
func NewService(
	repo Repository,
	idp IdentityProvider,
	hasher CredentialHasher,
	tokens TokenValidator,
	keys cache.Client,
	cacheTTL, pageTTL time.Duration,
	logger zerolog.Logger,
) *Service {
	if keys == nil {
		keys = cache.Nop{}
	}
	return &Service{
		repo:     repo,
		idp:      idp,
		hasher:   hasher,
		tokens:   tokens,
		keys:     keys,
		pages:    cache.NewGenerations(keys),
		cacheTTL: cacheTTL,
		pageTTL:  pageTTL,
		logger:   logger.With().Str("component", "UserService").Logger(),
	}
}

// RegisterInput is the payload for a new account.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// UpdateInput carries a partial update. Nil fields are left unchanged. Passwords
// change only through the reset workflow, which goes through the identity provider.
type UpdateInput struct {
	Email    *string
	Name     *string
	IsActive *bool
}

// AuthResult is returned by a successful authentication.
type AuthResult struct {
	Token string        `json:"token"`
	User  *account.User `json:"user"`
}

// Register creates the external identity and then the local user row. Nothing is
// written locally when the identity provider rejects the registration.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*account.User, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	name := strings.TrimSpace(in.Name)
	log := s.logger.With().Str("email", email).Logger()
	log.Info().Msg("registering user")

	if _, err := s.repo.FindByEmail(ctx, email, nil); err == nil {
		return nil, account.ErrEmailExists
	} else if !repository.IsNotFound(err) {
		return nil, err
	}

	if err := s.idp.Register(ctx, email, in.Password, email); err != nil {
		log.Error().Err(err).Msg("identity registration failed")
		return nil, workflowError("register identity", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		log.Error().Err(err).Msg("password hashing failed")
		return nil, workflowError("hash password", err)
	}

	created, err := s.repo.Create(ctx, &account.User{
		Email:        email,
		Name:         name,
		PasswordHash: hashed,
		IsActive:     true,
	}, nil)
	if err != nil {
		return nil, err
	}
	s.dropPages(ctx)
	log.Info().Int64("user_id", created.ID).Msg("user registered")
	return created.Sanitized(), nil
}

// ConfirmRegistration confirms the identity with the code it was sent.
func (s *Service) ConfirmRegistration(ctx context.Context, email, code string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: confirmation code is required", ErrInvalidInput)
	}
	if err := s.idp.Confirm(ctx, email, strings.TrimSpace(code)); err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("confirmation failed")
		return workflowError("confirm registration", err)
	}
	s.logger.Info().Str("email", email).Msg("user confirmed")
	return nil
}

// Authenticate verifies credentials with the identity provider and returns its
// token together with the local user.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*AuthResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	signed, err := s.idp.Authenticate(ctx, email, password)
	if err != nil {
		s.logger.Warn().Err(err).Str("email", email).Msg("authentication rejected")
		return nil, workflowError("authenticate", err)
	}

	u, err := s.repo.FindByEmail(ctx, email, emailDirective(email))
	if err != nil {
		if repository.IsNotFound(err) {
			s.logger.Warn().Str("email", email).Msg("authenticated identity has no local user")
			return nil, workflowError("authenticate", account.ErrUserNotFound)
		}
		return nil, err
	}
	return &AuthResult{Token: signed, User: u.Sanitized()}, nil
}

// InitiatePasswordReset asks the identity provider to send a reset code.
func (s *Service) InitiatePasswordReset(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := s.idp.InitiateReset(ctx, email); err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("password reset initiation failed")
		return workflowError("initiate password reset", err)
	}
	return nil
}

// CompletePasswordReset resets the external secret first and only then rotates the
// local password hash.
func (s *Service) CompletePasswordReset(ctx context.Context, email, newPassword, code string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	code = strings.TrimSpace(code)
	if !isDigits(code, resetCodeLength) {
		return fmt.Errorf("%w: code must be %d digits", ErrInvalidInput, resetCodeLength)
	}

	if err := s.idp.CompleteReset(ctx, email, newPassword, code); err != nil {
		s.logger.Error().Err(err).Str("email", email).Msg("password reset rejected")
		return workflowError("complete password reset", err)
	}

	hashed, err := s.hasher.Hash(newPassword)
	if err != nil {
		return workflowError("hash password", err)
	}
	u, err := s.repo.FindByEmail(ctx, email, nil)
	if err != nil {
		if repository.IsNotFound(err) {
			return workflowError("complete password reset", account.ErrUserNotFound)
		}
		return err
	}
	if _, err := s.repo.Update(ctx, u.ID, map[string]any{"password_hash": hashed}, s.idDirective(u.ID)); err != nil {
		return err
	}
	s.logger.Info().Str("email", email).Msg("password reset completed")
	return nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id int64) (*account.User, error) {
	u, err := s.repo.FindByID(ctx, id, s.idDirective(id))
	if err != nil {
		return nil, notFound(err, account.ErrUserNotFound)
	}
	return u.Sanitized(), nil
}

// Update applies a partial update and refreshes the cached user.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*account.User, error) {
	current, err := s.repo.FindByID(ctx, id, nil)
	if err != nil {
		return nil, notFound(err, account.ErrUserNotFound)
	}

	fields := make(map[string]any)
	if in.Email != nil {
		email, err := normalizeEmail(*in.Email)
		if err != nil {
			return nil, err
		}
		if email != current.Email {
			if _, err := s.repo.FindByEmail(ctx, email, nil); err == nil {
				return nil, account.ErrEmailExists
			} else if !repository.IsNotFound(err) {
				return nil, err
			}
			fields["email"] = email
		}
	}
	if in.Name != nil {
		fields["name"] = strings.TrimSpace(*in.Name)
	}
	if in.IsActive != nil {
		fields["is_active"] = *in.IsActive
	}
	if len(fields) == 0 {
		return current.Sanitized(), nil
	}

	updated, err := s.repo.Update(ctx, id, fields, s.idDirective(id))
	if err != nil {
		return nil, notFound(err, account.ErrUserNotFound)
	}
	s.dropEmailKey(ctx, current.Email)
	s.dropPages(ctx)
	return updated.Sanitized(), nil
}

// Delete removes the user and its todos.
func (s *Service) Delete(ctx context.Context, id int64) error {
	current, err := s.repo.FindByID(ctx, id, nil)
	if err != nil {
		return notFound(err, account.ErrUserNotFound)
	}
	if err := s.repo.Delete(ctx, id, s.idDirective(id)); err != nil {
		return notFound(err, account.ErrUserNotFound)
	}
	s.dropEmailKey(ctx, current.Email)
	s.dropPages(ctx)
	s.logger.Info().Int64("user_id", id).Msg("user deleted")
	return nil
}

// List returns one page of users. Each window is cached under its own key for
// the page TTL; any write to a user starts a new page generation.
func (s *Service) List(ctx context.Context, skip, take int) (*repository.Page[account.User], error) {
	if skip < 0 || take <= 0 {
		return nil, fmt.Errorf("%w: skip must be >= 0 and take > 0", ErrInvalidInput)
	}
	page, err := s.repo.Paginate(ctx, skip, take, &cache.Directive{Key: s.pages.PageKey(ctx, PageNamespace, skip, take), TTL: s.pageTTL})
	if err != nil {
		return nil, err
	}
	out := &repository.Page[account.User]{Items: make([]*account.User, 0, len(page.Items)), TotalCount: page.TotalCount}
	for _, u := range page.Items {
		out.Items = append(out.Items, u.Sanitized())
	}
	return out, nil
}

// Current resolves a bearer token to the user it was issued for.
func (s *Service) Current(ctx context.Context, token string) (*account.User, error) {
	email, err := s.tokens.Validate(token)
	if err != nil {
		return nil, account.ErrTokenInvalid
	}
	u, err := s.repo.FindByEmail(ctx, email, emailDirective(email))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, account.ErrTokenInvalid
		}
		return nil, err
	}
	return u.Sanitized(), nil
}

func (s *Service) idDirective(id int64) *cache.Directive {
	return cache.NewDirective(s.cacheTTL, "user", id)
}

func emailDirective(email string) *cache.Directive {
	return cache.NewDirective(emailCacheTTL, "user", "email", email)
}

func (s *Service) dropEmailKey(ctx context.Context, email string) {
	key := emailDirective(email).Key
	if err := s.keys.Delete(ctx, key); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("cache invalidation failed")
	}
}

func (s *Service) dropPages(ctx context.Context) {
	if err := s.pages.Bump(ctx, PageNamespace); err != nil {
		s.logger.Error().Err(err).Str("namespace", PageNamespace).Msg("cache invalidation failed")
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if err := validate.Var(email, "email"); err != nil {
		return "", fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	return email, nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// notFound replaces a repository not-found failure with the domain error.
func notFound(err, domainErr error) error {
	if errors.Is(err, repository.ErrEntityNotFound) {
		return domainErr
	}
	return err
}
