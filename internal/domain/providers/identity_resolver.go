package providers

import (
	"context"

	"github.com/zatekoja/servicemarket/internal/domain/entities"
)

// IdentityResolver turns a bearer credential into the calling actor
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*entities.Actor, error)
}
