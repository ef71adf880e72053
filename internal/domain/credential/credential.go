// Package credential contains the partner API credentials used to access the
// platform compatibility endpoints.
package credential

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Permission is an access scope granted to a credential
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// IsValid reports whether p is a known permission
func (p Permission) IsValid() bool {
	return p == PermissionRead || p == PermissionWrite
}

// Key and secret prefixes follow the consumer key format partners expect.
const (
	KeyPrefix    = "ck_"
	SecretPrefix = "cs_"
	tokenBytes   = 20
)

var (
	ErrInvalidOwner      = errors.New("credential: owner ID is required")
	ErrInvalidPermission = errors.New("credential: invalid permission")
	ErrNoPermissions     = errors.New("credential: at least one permission is required")
	ErrNotFound          = errors.New("credential: not found")
	ErrDuplicatePair     = errors.New("credential: key/secret pair already exists")
)

// Credential is a partner API key/secret pair with granted permission scopes.
type Credential struct {
	ID          uuid.UUID
	Key         string
	Secret      string
	OwnerID     string
	Description string
	Permissions PermissionSet
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}

// New creates a credential with freshly generated key and secret.
func New(ownerID, description string, perms ...Permission) (*Credential, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, ErrInvalidOwner
	}
	set, err := NewPermissionSet(perms...)
	if err != nil {
		return nil, err
	}
	key, err := randomToken(KeyPrefix)
	if err != nil {
		return nil, err
	}
	secret, err := randomToken(SecretPrefix)
	if err != nil {
		return nil, err
	}
	return &Credential{
		ID:          uuid.New(),
		Key:         key,
		Secret:      secret,
		OwnerID:     ownerID,
		Description: description,
		Permissions: set,
		CreatedAt:   time.Now(),
	}, nil
}

// Touch records a successful use at t
func (c *Credential) Touch(t time.Time) {
	c.LastUsedAt = &t
}

func randomToken(prefix string) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("credential: generate token: %w", err)
	}
	return prefix + hex.EncodeToString(b), nil
}

// PermissionSet is an unordered set of permissions
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set, rejecting unknown or missing permissions.
func NewPermissionSet(perms ...Permission) (PermissionSet, error) {
	if len(perms) == 0 {
		return nil, ErrNoPermissions
	}
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPermission, p)
		}
		set[p] = struct{}{}
	}
	return set, nil
}

// ParsePermissions parses the stored/legacy representation. "read_write"
// expands to both scopes.
func ParsePermissions(raw string) (PermissionSet, error) {
	var perms []Permission
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		switch part {
		case "":
			continue
		case "read_write":
			perms = append(perms, PermissionRead, PermissionWrite)
		default:
			perms = append(perms, Permission(part))
		}
	}
	return NewPermissionSet(perms...)
}

// Has reports whether the set contains p
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// List returns the permissions sorted for stable output
func (s PermissionSet) List() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}

// String returns the comma separated storage form
func (s PermissionSet) String() string {
	return strings.Join(s.List(), ",")
}

// Label returns the single-word form partners display ("read", "write" or "read_write")
func (s PermissionSet) Label() string {
	switch {
	case s.Has(PermissionRead) && s.Has(PermissionWrite):
		return "read_write"
	case s.Has(PermissionWrite):
		return string(PermissionWrite)
	case s.Has(PermissionRead):
		return string(PermissionRead)
	default:
		return ""
	}
}

// Repository persists credentials
type Repository interface {
	Create(ctx context.Context, c *Credential) error
	// FindByKey returns the credential with the given consumer key, or ErrNotFound.
	FindByKey(ctx context.Context, key string) (*Credential, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Credential, error)
	List(ctx context.Context) ([]Credential, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// TouchLastUsed sets last_used_at without loading the row
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}
