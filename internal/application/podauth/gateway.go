// Package podauth verifies POD partner credentials for the compatibility
// endpoints and manages credential issuance.
package podauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/credential"
	"github.com/storefront/backend/internal/domain/shared"
)

var (
	ErrMissingCredentials = shared.NewDomainError("MISSING_CREDENTIALS", "consumer_key and consumer_secret are required")
	ErrInvalidCredentials = shared.NewDomainError("INVALID_CREDENTIALS", "Invalid consumer key or secret")
)

// touchTimeout bounds the background LastUsedAt write
const touchTimeout = 5 * time.Second

// dummySecret is compared against when the key is unknown so the unknown
// key and wrong secret paths do the same work.
var dummySecret = credential.SecretPrefix + strings.Repeat("0", 40)

// Verdict is the outcome of a credential check. The zero value is a
// rejection and carries no reason.
type Verdict struct {
	Valid        bool
	CredentialID uuid.UUID
	OwnerID      string
	Permissions  credential.PermissionSet
}

// Allows reports whether the verdict is valid and grants p
func (v Verdict) Allows(p credential.Permission) bool {
	return v.Valid && v.Permissions.Has(p)
}

// PermissionList returns granted permissions, sorted, never nil
func (v Verdict) PermissionList() []string {
	if !v.Valid {
		return []string{}
	}
	return v.Permissions.List()
}

// Gateway checks partner credentials against the credential store
type Gateway struct {
	repo   credential.Repository
	logger *zap.Logger
	now    func() time.Time

	touches sync.WaitGroup
}

// NewGateway creates a new auth gateway
func NewGateway(repo credential.Repository, logger *zap.Logger) *Gateway {
	return &Gateway{
		repo:   repo,
		logger: logger.Named("podauth"),
		now:    time.Now,
	}
}

// Verify looks up key and compares secret in constant time. It never
// returns an error: store failures are logged and yield a rejection.
func (g *Gateway) Verify(ctx context.Context, key, secret string) Verdict {
	if key == "" || secret == "" {
		subtle.ConstantTimeCompare([]byte(secret), []byte(dummySecret))
		return Verdict{}
	}

	cred, err := g.repo.FindByKey(ctx, key)
	if err != nil {
		if !errors.Is(err, credential.ErrNotFound) {
			g.logger.Error("credential lookup failed", zap.Error(err))
		}
		subtle.ConstantTimeCompare([]byte(secret), []byte(dummySecret))
		return Verdict{}
	}

	if subtle.ConstantTimeCompare([]byte(secret), []byte(cred.Secret)) != 1 {
		return Verdict{}
	}

	g.touch(ctx, cred.ID)
	return Verdict{
		Valid:        true,
		CredentialID: cred.ID,
		OwnerID:      cred.OwnerID,
		Permissions:  cred.Permissions,
	}
}

// touch records LastUsedAt in the background. The request context may end
// before the write does, so the write gets its own deadline.
func (g *Gateway) touch(ctx context.Context, id uuid.UUID) {
	at := g.now()
	g.touches.Add(1)
	go func() {
		defer g.touches.Done()
		touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
		defer cancel()
		if err := g.repo.TouchLastUsed(touchCtx, id, at); err != nil {
			g.logger.Warn("failed to record credential use",
				zap.String("credential_id", id.String()),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until pending LastUsedAt writes finish; used at shutdown
func (g *Gateway) Wait() {
	g.touches.Wait()
}

// Exchange validates a pair for the token exchange endpoint
func (g *Gateway) Exchange(ctx context.Context, key, secret string) (Verdict, error) {
	key, secret = strings.TrimSpace(key), strings.TrimSpace(secret)
	if key == "" || secret == "" {
		return Verdict{}, ErrMissingCredentials
	}
	v := g.Verify(ctx, key, secret)
	if !v.Valid {
		return Verdict{}, ErrInvalidCredentials
	}
	return v, nil
}

// Issue creates a credential for ownerID. A generated pair colliding with
// an existing one is regenerated once.
func (g *Gateway) Issue(ctx context.Context, ownerID, description string, perms ...credential.Permission) (*credential.Credential, error) {
	for attempt := 0; ; attempt++ {
		cred, err := credential.New(ownerID, description, perms...)
		if err != nil {
			return nil, err
		}
		err = g.repo.Create(ctx, cred)
		if err == nil {
			g.logger.Info("credential issued",
				zap.String("credential_id", cred.ID.String()),
				zap.String("owner_id", ownerID),
				zap.String("permissions", cred.Permissions.Label()),
			)
			return cred, nil
		}
		if !errors.Is(err, credential.ErrDuplicatePair) || attempt > 0 {
			return nil, err
		}
	}
}

// Revoke deletes a credential
func (g *Gateway) Revoke(ctx context.Context, id uuid.UUID) error {
	if err := g.repo.Delete(ctx, id); err != nil {
		return err
	}
	g.logger.Info("credential revoked", zap.String("credential_id", id.String()))
	return nil
}

// List returns all credentials, newest first
func (g *Gateway) List(ctx context.Context) ([]credential.Credential, error) {
	return g.repo.List(ctx)
}
