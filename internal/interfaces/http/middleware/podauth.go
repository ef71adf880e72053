package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storefront/backend/internal/application/podauth"
	"github.com/storefront/backend/internal/domain/credential"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// Context keys set by PODAuth
const (
	PODVerdictKey = "pod_verdict"
	PODOwnerIDKey = "pod_owner_id"
)

// CredentialVerifier checks a partner key/secret pair
type CredentialVerifier interface {
	Verify(ctx context.Context, key, secret string) podauth.Verdict
}

// verify runs the gateway and stores a valid verdict on the context
func verify(c *gin.Context, verifier CredentialVerifier) podauth.Verdict {
	// an incomplete pair is verified as empty and rejected like any other
	key, secret, _ := podauth.ExtractCredentials(c.Request)
	v := verifier.Verify(c.Request.Context(), key, secret)
	c.Set(PODVerdictKey, v)
	if v.Valid {
		c.Set(PODOwnerIDKey, v.OwnerID)
		c.Request = c.Request.WithContext(logger.WithOwnerID(c.Request.Context(), v.OwnerID))
	}
	return v
}

// PODAuth rejects requests without a valid partner credential. GET and
// HEAD need read; every other method needs write. Every rejection gets
// the same body so callers cannot tell an unknown key from a wrong secret.
func PODAuth(verifier CredentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := verify(c, verifier)
		if !v.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.WooUnauthorized())
			return
		}
		if !v.Allows(requiredPermission(c.Request.Method)) {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.WooForbidden())
			return
		}
		c.Next()
	}
}

// OptionalPODAuth records the verdict without rejecting; used by the
// status check, which always answers 200.
func OptionalPODAuth(verifier CredentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		verify(c, verifier)
		c.Next()
	}
}

func requiredPermission(method string) credential.Permission {
	switch method {
	case http.MethodGet, http.MethodHead:
		return credential.PermissionRead
	default:
		return credential.PermissionWrite
	}
}

// GetPODVerdict returns the verdict stored by PODAuth or OptionalPODAuth.
// It is the zero (rejected) verdict when neither ran.
func GetPODVerdict(c *gin.Context) podauth.Verdict {
	if v, ok := c.Get(PODVerdictKey); ok {
		if verdict, ok := v.(podauth.Verdict); ok {
			return verdict
		}
	}
	return podauth.Verdict{}
}
