package repository

import (
	"context"
	"encoding/json"

	"accounts/backend/internal/domain/account"

	"github.com/rs/zerolog"
)

// IdentitySchema maps account.Identity onto the identities table.
var IdentitySchema = Schema[account.Identity]{
	Table: "identities",
	Columns: []string{
		"subject", "secret_hash", "contact", "confirmed",
		"code_purpose", "code_hash", "code_expires_at", "failed_attempts",
	},
	ID:    func(i *account.Identity) int64 { return i.ID },
	SetID: func(i *account.Identity, id int64) { i.ID = id },
	Values: func(i *account.Identity) []any {
		return []any{i.Subject, i.SecretHash, i.Contact, i.Confirmed, i.CodePurpose, i.CodeHash, i.CodeExpiresAt, i.FailedAttempts}
	},
	Targets: func(i *account.Identity) []any {
		return []any{&i.ID, &i.Subject, &i.SecretHash, &i.Contact, &i.Confirmed, &i.CodePurpose, &i.CodeHash, &i.CodeExpiresAt, &i.FailedAttempts}
	},
	Encode: func(i *account.Identity) ([]byte, error) {
		return json.Marshal(i)
	},
	Decode: func(data []byte) (*account.Identity, error) {
		var i account.Identity
		if err := json.Unmarshal(data, &i); err != nil {
			return nil, err
		}
		return &i, nil
	},
}

// IdentityRepository stores identity provider records. Identities are the
// credential system of record and are never cached.
type IdentityRepository struct {
	*Generic[account.Identity]
}

// NewIdentityRepository constructs an identity repository over the given store.
func NewIdentityRepository(store Store[account.Identity], logger zerolog.Logger) *IdentityRepository {
	return &IdentityRepository{Generic: NewGeneric(store, nil, IdentitySchema, logger)}
}

// FindBySubject looks an identity up by its unique subject.
func (r *IdentityRepository) FindBySubject(ctx context.Context, subject string) (*account.Identity, error) {
	return r.findByField(ctx, "find_by_subject", "subject", subject)
}
