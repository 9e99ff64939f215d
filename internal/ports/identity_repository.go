package ports

import (
	"context"

	"github.com/bft-labs/rtcshare/internal/domain"
)

// IdentityRepository persists the service identity.
type IdentityRepository interface {
	// Load returns the stored identity, or a zero identity and nil error
	// if none has been stored.
	Load(ctx context.Context) (domain.ServiceIdentity, error)

	// Save stores the identity.
	Save(ctx context.Context, id domain.ServiceIdentity) error
}
