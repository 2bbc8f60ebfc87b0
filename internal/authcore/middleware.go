package authcore

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lostenergydrink/glimmerglow/internal/rbac"
)

// PrincipalContextKey locates the resolved principal on the gin context.
const PrincipalContextKey = "auth_principal"

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	Identity    Identity
	Claims      *Claims
	AccessToken string
	// AdminKey is true when the caller authenticated through the legacy
	// static admin key instead of a bearer token.
	AdminKey bool
}

// Role returns the caller's role. Admin-key principals act as admin.
func (principal *Principal) Role() rbac.Role {
	if principal.AdminKey {
		return rbac.RoleAdmin
	}
	return principal.Identity.Role
}

// PrincipalFrom extracts the principal set by RequireAuthenticated.
func PrincipalFrom(contextGin *gin.Context) (*Principal, bool) {
	value, found := contextGin.Get(PrincipalContextKey)
	if !found {
		return nil, false
	}
	principal, ok := value.(*Principal)
	return principal, ok && principal != nil
}

// BearerToken extracts the access token from the Authorization header, or
// from the auth cookie for browser clients.
func BearerToken(contextGin *gin.Context, configuration ServerConfig) string {
	header := contextGin.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if configuration.AccessCookieName != "" {
		if cookie, cookieErr := contextGin.Request.Cookie(configuration.AccessCookieName); cookieErr == nil && cookie != nil {
			return strings.TrimSpace(cookie.Value)
		}
	}
	return ""
}

// RequireAuthenticated verifies the bearer token and attaches the resolved
// principal. Every failure answers 401 with a reason-specific code.
func RequireAuthenticated(service *Service, configuration ServerConfig) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		accessToken := BearerToken(contextGin, configuration)
		if accessToken == "" {
			abortUnauthorized(contextGin, ErrNoToken)
			return
		}
		identity, claims, verifyErr := service.Verify(contextGin.Request.Context(), accessToken)
		if verifyErr != nil {
			abortUnauthorized(contextGin, verifyErr)
			return
		}
		contextGin.Set(PrincipalContextKey, &Principal{
			Identity:    identity,
			Claims:      claims,
			AccessToken: accessToken,
		})
		contextGin.Next()
	}
}

// RequireAdmin authorizes admin-only routes. The legacy static admin key
// cookie is checked first for backward compatibility; absent that, the
// request must carry a bearer token resolving to an admin.
func RequireAdmin(service *Service, configuration ServerConfig) gin.HandlerFunc {
	authenticate := RequireAuthenticated(service, configuration)
	return func(contextGin *gin.Context) {
		if configuration.AdminKey != "" && configuration.AdminKeyCookie != "" {
			if cookie, cookieErr := contextGin.Request.Cookie(configuration.AdminKeyCookie); cookieErr == nil && cookie != nil && cookie.Value == configuration.AdminKey {
				contextGin.Set(PrincipalContextKey, &Principal{AdminKey: true})
				contextGin.Next()
				return
			}
		}
		authenticate(contextGin)
		if contextGin.IsAborted() {
			return
		}
		principal, _ := PrincipalFrom(contextGin)
		if principal == nil || !principal.Role().AtLeast(rbac.RoleAdmin) {
			abortForbidden(contextGin, "admin role required", rbac.RoleAdmin, roleOf(principal))
			return
		}
	}
}

// RequireRole allows callers whose role is one of the listed roles or
// senior to one of them.
func RequireRole(roles ...rbac.Role) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		principal, found := PrincipalFrom(contextGin)
		if !found {
			abortUnauthorized(contextGin, ErrNoToken)
			return
		}
		callerRole := principal.Role()
		for _, required := range roles {
			if callerRole.AtLeast(required) {
				contextGin.Next()
				return
			}
		}
		abortForbidden(contextGin, "insufficient role", minimumRole(roles), callerRole)
	}
}

// RequirePermission allows callers whose role grants the permission.
func RequirePermission(permission rbac.Permission) gin.HandlerFunc {
	return requirePermissions("permission denied", func(role rbac.Role) bool {
		return rbac.HasPermission(role, permission)
	})
}

// RequireAnyPermission allows callers granted at least one permission.
func RequireAnyPermission(permissions ...rbac.Permission) gin.HandlerFunc {
	return requirePermissions("permission denied", func(role rbac.Role) bool {
		return rbac.HasAnyPermission(role, permissions)
	})
}

// RequireAllPermissions allows callers granted every listed permission.
func RequireAllPermissions(permissions ...rbac.Permission) gin.HandlerFunc {
	return requirePermissions("permission denied", func(role rbac.Role) bool {
		return rbac.HasAllPermissions(role, permissions)
	})
}

func requirePermissions(message string, check func(rbac.Role) bool) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		principal, found := PrincipalFrom(contextGin)
		if !found {
			abortUnauthorized(contextGin, ErrNoToken)
			return
		}
		if !check(principal.Role()) {
			abortForbidden(contextGin, message, "", principal.Role())
			return
		}
		contextGin.Next()
	}
}

// RequireRoleManagement authorizes role-affecting operations. The caller
// must be able to manage the target's CURRENT role, resolved before any
// change is applied: a manager cannot mint an admin by writing the target
// role directly.
func RequireRoleManagement(resolveTargetRole func(*gin.Context) (rbac.Role, error)) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		principal, found := PrincipalFrom(contextGin)
		if !found {
			abortUnauthorized(contextGin, ErrNoToken)
			return
		}
		targetRole, resolveErr := resolveTargetRole(contextGin)
		if resolveErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "invalid_target_role",
				"message": "target role could not be resolved",
			})
			return
		}
		if !rbac.CanManage(principal.Role(), targetRole) {
			abortForbidden(contextGin, "cannot manage accounts of this role", targetRole, principal.Role())
			return
		}
		contextGin.Next()
	}
}

// RequireOwnershipOrAdmin allows admins, or callers whose subject id equals
// the resolved owner id.
func RequireOwnershipOrAdmin(resolveOwnerID func(*gin.Context) (string, error)) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		principal, found := PrincipalFrom(contextGin)
		if !found {
			abortUnauthorized(contextGin, ErrNoToken)
			return
		}
		if principal.Role().AtLeast(rbac.RoleAdmin) {
			contextGin.Next()
			return
		}
		ownerID, resolveErr := resolveOwnerID(contextGin)
		if resolveErr != nil || ownerID == "" {
			contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "not_found",
				"message": "resource not found",
			})
			return
		}
		if principal.Identity.ID != ownerID {
			abortForbidden(contextGin, "not the resource owner", "", principal.Role())
			return
		}
		contextGin.Next()
	}
}

func abortUnauthorized(contextGin *gin.Context, cause error) {
	code := "unauthorized"
	message := "authentication required"
	switch {
	case errors.Is(cause, ErrNoToken):
		code, message = "no_token", "missing bearer token"
	case errors.Is(cause, ErrTokenExpired):
		code, message = "token_expired", "access token expired"
	case errors.Is(cause, ErrTokenRevoked):
		code, message = "token_revoked", "access token revoked"
	case errors.Is(cause, ErrTokenInvalid):
		code, message = "token_invalid", "access token invalid"
	case errors.Is(cause, ErrIdentityMismatch):
		code, message = "identity_mismatch", "token subject unresolvable"
	}
	contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   code,
		"message": message,
	})
}

// abortForbidden discloses required-vs-current role: the caller already
// proved identity, so the detail aids diagnosis without leaking.
func abortForbidden(contextGin *gin.Context, message string, required interface{}, current rbac.Role) {
	payload := gin.H{
		"success":      false,
		"error":        "forbidden",
		"message":      message,
		"current_role": current.String(),
	}
	if requiredText, ok := required.(rbac.Role); ok && requiredText != "" {
		payload["required_role"] = requiredText.String()
	}
	contextGin.AbortWithStatusJSON(http.StatusForbidden, payload)
}

func roleOf(principal *Principal) rbac.Role {
	if principal == nil {
		return ""
	}
	return principal.Role()
}

func minimumRole(roles []rbac.Role) rbac.Role {
	if len(roles) == 0 {
		return ""
	}
	lowest := roles[0]
	for _, role := range roles[1:] {
		if lowest.AtLeast(role) {
			lowest = role
		}
	}
	return lowest
}
