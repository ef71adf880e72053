package credential

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("generates prefixed key and secret", func(t *testing.T) {
		c, err := New("owner-1", "jetprint", PermissionRead, PermissionWrite)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, c.ID)
		assert.True(t, strings.HasPrefix(c.Key, KeyPrefix))
		assert.True(t, strings.HasPrefix(c.Secret, SecretPrefix))
		assert.Len(t, c.Key, len(KeyPrefix)+2*tokenBytes)
		assert.Len(t, c.Secret, len(SecretPrefix)+2*tokenBytes)
		assert.Equal(t, "owner-1", c.OwnerID)
		assert.Nil(t, c.LastUsedAt)
		assert.True(t, c.Permissions.Has(PermissionRead))
		assert.True(t, c.Permissions.Has(PermissionWrite))
	})

	t.Run("two credentials never share a pair", func(t *testing.T) {
		a, err := New("owner", "", PermissionRead)
		require.NoError(t, err)
		b, err := New("owner", "", PermissionRead)
		require.NoError(t, err)
		assert.NotEqual(t, a.Key, b.Key)
		assert.NotEqual(t, a.Secret, b.Secret)
	})

	t.Run("owner required", func(t *testing.T) {
		_, err := New("  ", "", PermissionRead)
		assert.ErrorIs(t, err, ErrInvalidOwner)
	})

	t.Run("permissions required", func(t *testing.T) {
		_, err := New("owner", "")
		assert.ErrorIs(t, err, ErrNoPermissions)
	})

	t.Run("unknown permission rejected", func(t *testing.T) {
		_, err := New("owner", "", Permission("admin"))
		assert.ErrorIs(t, err, ErrInvalidPermission)
	})
}

func TestParsePermissions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		label   string
		wantErr error
	}{
		{"read only", "read", "read", nil},
		{"write only", "write", "write", nil},
		{"comma list", "write,read", "read_write", nil},
		{"legacy read_write", "read_write", "read_write", nil},
		{"blank", "", "", ErrNoPermissions},
		{"unknown", "read,delete", "", ErrInvalidPermission},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParsePermissions(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.label, set.Label())
		})
	}
}

func TestPermissionSet_ListIsSorted(t *testing.T) {
	set, err := NewPermissionSet(PermissionWrite, PermissionRead, PermissionWrite)
	require.NoError(t, err)
	assert.Equal(t, []string{"read", "write"}, set.List())
	assert.Equal(t, "read,write", set.String())
}

func TestCredential_Touch(t *testing.T) {
	c, err := New("owner", "", PermissionRead)
	require.NoError(t, err)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c.Touch(at)
	require.NotNil(t, c.LastUsedAt)
	assert.Equal(t, at, *c.LastUsedAt)
}
