package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/credential"
)

// CredentialModel is the persistence model for partner API credentials.
type CredentialModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConsumerKey    string    `gorm:"column:consumer_key;type:varchar(64);not null;uniqueIndex:idx_pod_credentials_key;uniqueIndex:idx_pod_credentials_pair,priority:1"`
	ConsumerSecret string    `gorm:"column:consumer_secret;type:varchar(64);not null;uniqueIndex:idx_pod_credentials_pair,priority:2"`
	OwnerID        string    `gorm:"type:varchar(100);not null;index"`
	Description    string    `gorm:"type:varchar(255)"`
	Permissions    string    `gorm:"type:varchar(32);not null"`
	LastUsedAt     *time.Time
	CreatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CredentialModel) TableName() string {
	return "pod_credentials"
}

// ToDomain converts the model. Rows with unparseable permissions get an
// empty set, which grants nothing.
func (m *CredentialModel) ToDomain() *credential.Credential {
	perms, err := credential.ParsePermissions(m.Permissions)
	if err != nil {
		perms = credential.PermissionSet{}
	}
	return &credential.Credential{
		ID:          m.ID,
		Key:         m.ConsumerKey,
		Secret:      m.ConsumerSecret,
		OwnerID:     m.OwnerID,
		Description: m.Description,
		Permissions: perms,
		LastUsedAt:  m.LastUsedAt,
		CreatedAt:   m.CreatedAt,
	}
}

// FromDomain populates the model from a domain credential
func (m *CredentialModel) FromDomain(c *credential.Credential) {
	m.ID = c.ID
	m.ConsumerKey = c.Key
	m.ConsumerSecret = c.Secret
	m.OwnerID = c.OwnerID
	m.Description = c.Description
	m.Permissions = c.Permissions.String()
	m.LastUsedAt = c.LastUsedAt
	m.CreatedAt = c.CreatedAt
}
