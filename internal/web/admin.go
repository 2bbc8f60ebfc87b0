// Package web hosts the profile and admin-panel API on top of the auth
// service: the /api/me echo and the /api/admin/users management
// endpoints.
package web

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/lostenergydrink/glimmerglow/internal/authcore"
	"github.com/lostenergydrink/glimmerglow/internal/rbac"
)

type manageUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// HandleWhoAmI resolves the authenticated caller's profile payload.
func HandleWhoAmI(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		principal, found := authcore.PrincipalFrom(contextGin)
		if !found {
			logger.Warn("missing principal on context",
				zap.String("code", "api.me.missing_principal"))
			contextGin.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		payload := gin.H{
			"success": true,
			"user": gin.H{
				"id":    principal.Identity.ID,
				"email": principal.Identity.Email,
				"role":  principal.Role().String(),
			},
			"permissions": rbac.RolePermissions(principal.Role()),
		}
		if principal.Claims != nil && principal.Claims.ExpiresAt != nil {
			payload["expires"] = principal.Claims.ExpiresAt.Time
		}
		contextGin.JSON(http.StatusOK, payload)
	}
}

// MountAdminRoutes registers the user-management endpoints. Listing is
// open to any admin (key or role); creating privileged accounts and
// changing roles additionally require seniority over the target role.
func MountAdminRoutes(router gin.IRouter, configuration authcore.ServerConfig, service *authcore.Service, gateway authcore.IdentityGateway, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	admin := router.Group("/api/admin", authcore.RequireAdmin(service, configuration))

	admin.GET("/users", func(contextGin *gin.Context) {
		identities, listErr := gateway.ListIdentities(contextGin.Request.Context())
		if listErr != nil {
			logger.Error("identity listing failed",
				zap.String("code", "admin.users.list_error"),
				zap.Error(listErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		users := make([]gin.H, 0, len(identities))
		for _, identity := range identities {
			users = append(users, gin.H{
				"id":     identity.ID,
				"email":  identity.Email,
				"role":   identity.Role.String(),
				"status": string(identity.Status),
			})
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "users": users})
	})

	// The target of a create is the role being minted.
	createGate := authcore.RequireRoleManagement(func(contextGin *gin.Context) (rbac.Role, error) {
		var request manageUserRequest
		if err := contextGin.ShouldBindBodyWith(&request, binding.JSON); err != nil {
			return "", err
		}
		return rbac.ParseRole(request.Role)
	})
	admin.POST("/users", createGate, func(contextGin *gin.Context) {
		var request manageUserRequest
		if err := contextGin.ShouldBindBodyWith(&request, binding.JSON); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "invalid_json",
				"message": "request body could not be parsed",
			})
			return
		}
		role, _ := rbac.ParseRole(request.Role)
		identity, createErr := service.CreateAccount(contextGin.Request.Context(), request.Email, request.Password, role)
		if createErr != nil {
			switch {
			case errors.Is(createErr, authcore.ErrDuplicateIdentity):
				contextGin.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"success": false,
					"error":   "duplicate_identity",
					"message": "an account with this email already exists",
				})
			case errors.Is(createErr, authcore.ErrPasswordTooShort), errors.Is(createErr, authcore.ErrEmailRequired):
				contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"success": false,
					"error":   "validation_failed",
					"message": createErr.Error(),
				})
			default:
				logger.Error("account creation failed",
					zap.String("code", "admin.users.create_error"),
					zap.Error(createErr))
				contextGin.AbortWithStatus(http.StatusInternalServerError)
			}
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{
			"success": true,
			"user": gin.H{
				"id":    identity.ID,
				"email": identity.Email,
				"role":  identity.Role.String(),
			},
		})
	})

	// A role change is gated on the senior of the target's current role
	// and the requested role, so a manager can neither demote an admin
	// nor mint one.
	roleChangeGate := authcore.RequireRoleManagement(func(contextGin *gin.Context) (rbac.Role, error) {
		identity, lookupErr := gateway.GetIdentityByID(contextGin.Request.Context(), contextGin.Param("id"))
		if lookupErr != nil {
			return "", lookupErr
		}
		var request manageUserRequest
		if err := contextGin.ShouldBindBodyWith(&request, binding.JSON); err != nil {
			return "", err
		}
		requested, parseErr := rbac.ParseRole(request.Role)
		if parseErr != nil {
			return "", parseErr
		}
		if requested.AtLeast(identity.Role) {
			return requested, nil
		}
		return identity.Role, nil
	})
	admin.PUT("/users/:id/role", roleChangeGate, func(contextGin *gin.Context) {
		var request manageUserRequest
		if err := contextGin.ShouldBindBodyWith(&request, binding.JSON); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "invalid_json",
				"message": "request body could not be parsed",
			})
			return
		}
		role, parseErr := rbac.ParseRole(request.Role)
		if parseErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "unknown_role",
				"message": "requested role is not recognized",
			})
			return
		}
		subjectID := contextGin.Param("id")
		if updateErr := gateway.UpdateRole(contextGin.Request.Context(), subjectID, role); updateErr != nil {
			if errors.Is(updateErr, authcore.ErrIdentityNotFound) {
				contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"success": false,
					"error":   "identity_not_found",
					"message": "no account with this id",
				})
				return
			}
			logger.Error("role update failed",
				zap.String("code", "admin.users.role_error"),
				zap.String("subject_id", subjectID),
				zap.Error(updateErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if recordErr := gateway.RecordAuthEvent(contextGin.Request.Context(), subjectID, authcore.EventRoleChanged, map[string]string{"role": role.String()}); recordErr != nil {
			logger.Warn("audit record failed",
				zap.String("code", "admin.users.audit_error"),
				zap.Error(recordErr))
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true})
	})
}
