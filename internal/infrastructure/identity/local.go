// Package identity provides the external identity collaborator used by the user
// service: registration with emailed confirmation codes, credential checks that
// issue access tokens, and code-based password resets.
package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"accounts/backend/internal/cache"
	"accounts/backend/internal/domain/account"
	"accounts/backend/internal/repository"

	"github.com/rs/zerolog"
)

var (
	ErrIdentityExists     = errors.New("identity already exists")
	ErrUnknownIdentity    = errors.New("unknown identity")
	ErrInvalidCode        = errors.New("invalid or expired code")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotConfirmed       = errors.New("identity not confirmed")
)

// Code purposes passed to a CodeSender.
const (
	PurposeConfirm = "confirm"
	PurposeReset   = "reset"
)

const (
	codeDigits = 6
	// MaxCodeAttempts is the number of wrong guesses after which a code is revoked.
	MaxCodeAttempts = 5
)

// CodeSender delivers one-time codes to an identity's contact address.
type CodeSender interface {
	Send(ctx context.Context, contact, purpose, code string) error
}

// Hasher hashes and verifies identity secrets and codes.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Compare(hash, plaintext string) bool
}

// TokenIssuer signs access tokens for an authenticated identity.
type TokenIssuer interface {
	Generate(subject string) (string, error)
}

// Records is the persistent identity store.
type Records interface {
	Create(ctx context.Context, rec *account.Identity, dir *cache.Directive) (*account.Identity, error)
	FindBySubject(ctx context.Context, subject string) (*account.Identity, error)
	Update(ctx context.Context, id int64, fields map[string]any, dir *cache.Directive) (*account.Identity, error)
}

// Config sets the lifetime of issued codes.
type Config struct {
	ConfirmationTTL time.Duration
	ResetTTL        time.Duration
}

// LocalProvider keeps identities in the relational store. Secrets and codes are
// stored hashed; a code is revoked after MaxCodeAttempts wrong guesses.
type LocalProvider struct {
	records Records
	hasher  Hasher
	tokens  TokenIssuer
	sender  CodeSender
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

// NewLocalProvider constructs a provider. A nil sender logs codes instead of delivering them.
func NewLocalProvider(records Records, hasher Hasher, tokens TokenIssuer, sender CodeSender, cfg Config, logger zerolog.Logger) *LocalProvider {
	logger = logger.With().Str("component", "LocalIdentityProvider").Logger()
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = 24 * time.Hour
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = time.Hour
	}
	return &LocalProvider{records: records, hasher: hasher, tokens: tokens, sender: sender, cfg: cfg, logger: logger, now: time.Now}
}

// Register creates an unconfirmed identity and sends it a confirmation code.
func (p *LocalProvider) Register(ctx context.Context, identity, secret, contact string) error {
	if _, err := p.load(ctx, identity); err == nil {
		return ErrIdentityExists
	} else if !errors.Is(err, ErrUnknownIdentity) {
		return err
	}

	hash, err := p.hasher.Hash(secret)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}
	pc, err := p.newPendingCode(PurposeConfirm, p.cfg.ConfirmationTTL)
	if err != nil {
		return err
	}
	rec := &account.Identity{
		Subject:       identity,
		SecretHash:    hash,
		Contact:       contact,
		CodePurpose:   pc.purpose,
		CodeHash:      pc.hash,
		CodeExpiresAt: pc.expiresAt,
	}
	if _, err := p.records.Create(ctx, rec, nil); err != nil {
		if _, lookupErr := p.load(ctx, identity); lookupErr == nil {
			return ErrIdentityExists
		}
		return fmt.Errorf("store identity: %w", err)
	}
	p.logger.Info().Str("identity", identity).Msg("identity registered")
	return p.sender.Send(ctx, contact, PurposeConfirm, pc.code)
}

// Confirm marks the identity confirmed when code matches the outstanding confirmation code.
func (p *LocalProvider) Confirm(ctx context.Context, identity, code string) error {
	rec, err := p.load(ctx, identity)
	if err != nil {
		return err
	}
	if err := p.checkCode(ctx, rec, PurposeConfirm, code); err != nil {
		return err
	}
	fields := clearedCode()
	fields["confirmed"] = true
	return p.save(ctx, rec, fields)
}

// Authenticate verifies the secret and returns a signed access token.
func (p *LocalProvider) Authenticate(ctx context.Context, identity, secret string) (string, error) {
	rec, err := p.load(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrUnknownIdentity) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if !p.hasher.Compare(rec.SecretHash, secret) {
		return "", ErrInvalidCredentials
	}
	if !rec.Confirmed {
		return "", ErrNotConfirmed
	}
	return p.tokens.Generate(identity)
}

// InitiateReset sends a password reset code to a confirmed identity's contact address.
func (p *LocalProvider) InitiateReset(ctx context.Context, identity string) error {
	rec, err := p.load(ctx, identity)
	if err != nil {
		return err
	}
	if !rec.Confirmed {
		return ErrNotConfirmed
	}
	pc, err := p.newPendingCode(PurposeReset, p.cfg.ResetTTL)
	if err != nil {
		return err
	}
	if err := p.save(ctx, rec, pc.fields()); err != nil {
		return err
	}
	return p.sender.Send(ctx, rec.Contact, PurposeReset, pc.code)
}

// CompleteReset replaces the secret when code matches the outstanding reset code.
func (p *LocalProvider) CompleteReset(ctx context.Context, identity, newSecret, code string) error {
	rec, err := p.load(ctx, identity)
	if err != nil {
		return err
	}
	if err := p.checkCode(ctx, rec, PurposeReset, code); err != nil {
		return err
	}
	hash, err := p.hasher.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}
	fields := clearedCode()
	fields["secret_hash"] = hash
	return p.save(ctx, rec, fields)
}

func (p *LocalProvider) load(ctx context.Context, identity string) (*account.Identity, error) {
	rec, err := p.records.FindBySubject(ctx, identity)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrUnknownIdentity
		}
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return rec, nil
}

func (p *LocalProvider) save(ctx context.Context, rec *account.Identity, fields map[string]any) error {
	if _, err := p.records.Update(ctx, rec.ID, fields, nil); err != nil {
		return fmt.Errorf("store identity: %w", err)
	}
	return nil
}

// checkCode verifies code against the outstanding code for purpose. A wrong guess
// is counted; the MaxCodeAttempts-th wrong guess revokes the code.
func (p *LocalProvider) checkCode(ctx context.Context, rec *account.Identity, purpose, code string) error {
	if rec.CodeHash == "" || rec.CodePurpose != purpose || p.now().Unix() > rec.CodeExpiresAt {
		return ErrInvalidCode
	}
	if p.hasher.Compare(rec.CodeHash, code) {
		return nil
	}

	attempts := rec.FailedAttempts + 1
	fields := map[string]any{"failed_attempts": attempts}
	if attempts >= MaxCodeAttempts {
		fields = clearedCode()
		p.logger.Warn().Str("identity", rec.Subject).Str("purpose", purpose).Msg("code revoked after repeated failures")
	}
	if err := p.save(ctx, rec, fields); err != nil {
		return err
	}
	return ErrInvalidCode
}

// pendingCode is a freshly issued code and what gets stored for it.
type pendingCode struct {
	purpose   string
	code      string
	hash      string
	expiresAt int64
}

func (c pendingCode) fields() map[string]any {
	return map[string]any{
		"code_purpose":    c.purpose,
		"code_hash":       c.hash,
		"code_expires_at": c.expiresAt,
		"failed_attempts": 0,
	}
}

func (p *LocalProvider) newPendingCode(purpose string, ttl time.Duration) (pendingCode, error) {
	code, err := newCode()
	if err != nil {
		return pendingCode{}, err
	}
	hash, err := p.hasher.Hash(code)
	if err != nil {
		return pendingCode{}, fmt.Errorf("hash %s code: %w", purpose, err)
	}
	return pendingCode{purpose: purpose, code: code, hash: hash, expiresAt: p.now().Add(ttl).Unix()}, nil
}

func clearedCode() map[string]any {
	return map[string]any{
		"code_purpose":    "",
		"code_hash":       "",
		"code_expires_at": int64(0),
		"failed_attempts": 0,
	}
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
