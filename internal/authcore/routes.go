package authcore

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// MountAuthRoutes registers the authentication surface: sign-up, login,
// refresh, logout, password reset and change, and CSRF token issuance.
func MountAuthRoutes(router gin.IRouter, configuration ServerConfig, service *Service, csrfTokens CSRFTokenStore) {
	router.POST("/auth/signup", func(contextGin *gin.Context) {
		var inbound struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			abortInvalidJSON(contextGin)
			return
		}
		identity, signUpErr := service.SignUp(contextGin.Request.Context(), inbound.Email, inbound.Password)
		if signUpErr != nil {
			switch {
			case errors.Is(signUpErr, ErrDuplicateIdentity):
				contextGin.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"success": false,
					"error":   "duplicate_identity",
					"message": "an account with this email already exists",
				})
			case errors.Is(signUpErr, ErrPasswordTooShort):
				abortValidation(contextGin, "password", "password must be at least 8 characters")
			case errors.Is(signUpErr, ErrEmailRequired):
				abortValidation(contextGin, "email", "email is required")
			default:
				abortBackendFailure(contextGin)
			}
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{
			"success": true,
			"user":    identityPayload(identity),
		})
	})

	router.POST("/auth/login", func(contextGin *gin.Context) {
		var inbound struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			abortInvalidJSON(contextGin)
			return
		}
		result, signInErr := service.SignIn(contextGin.Request.Context(), inbound.Email, inbound.Password)
		if signInErr != nil {
			if errors.Is(signInErr, ErrInvalidCredentials) {
				// One message for wrong password and unknown email alike.
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"error":   "invalid_credentials",
					"message": "email or password is incorrect",
				})
				return
			}
			abortBackendFailure(contextGin)
			return
		}
		writeAccessCookie(contextGin, configuration, result.AccessToken, result.ExpiresIn)
		contextGin.JSON(http.StatusOK, signInPayload(result))
	})

	router.POST("/auth/refresh", func(contextGin *gin.Context) {
		var inbound struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || inbound.RefreshToken == "" {
			abortInvalidJSON(contextGin)
			return
		}
		priorAccessToken := BearerToken(contextGin, configuration)
		result, refreshErr := service.Refresh(contextGin.Request.Context(), inbound.RefreshToken, priorAccessToken)
		if refreshErr != nil {
			code := "refresh_invalidated"
			switch {
			case errors.Is(refreshErr, ErrRefreshExpired):
				code = "refresh_expired"
			case errors.Is(refreshErr, ErrIdentityMismatch):
				code = "identity_mismatch"
			}
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   code,
				"message": "refresh token rejected",
			})
			return
		}
		writeAccessCookie(contextGin, configuration, result.AccessToken, result.ExpiresIn)
		contextGin.JSON(http.StatusOK, signInPayload(result))
	})

	router.POST("/auth/logout", RequireAuthenticated(service, configuration), func(contextGin *gin.Context) {
		var inbound struct {
			RefreshToken string `json:"refreshToken"`
		}
		// Logout succeeds with or without a body.
		_ = contextGin.ShouldBindJSON(&inbound)
		principal, _ := PrincipalFrom(contextGin)
		accessToken := ""
		if principal != nil {
			accessToken = principal.AccessToken
		}
		service.SignOut(contextGin.Request.Context(), accessToken, inbound.RefreshToken)
		clearAccessCookie(contextGin, configuration)
		contextGin.JSON(http.StatusOK, gin.H{"success": true})
	})

	router.POST("/auth/password/reset-request", func(contextGin *gin.Context) {
		var inbound struct {
			Email string `json:"email"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			abortInvalidJSON(contextGin)
			return
		}
		service.RequestPasswordReset(contextGin.Request.Context(), inbound.Email)
		// Anti-enumeration: identical response whether or not the email
		// names an account.
		contextGin.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "if the email is registered, a reset link has been sent",
		})
	})

	router.POST("/auth/password/reset", func(contextGin *gin.Context) {
		var inbound struct {
			Token    string `json:"token"`
			Password string `json:"password"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil || inbound.Token == "" {
			abortInvalidJSON(contextGin)
			return
		}
		resetErr := service.CompletePasswordReset(contextGin.Request.Context(), inbound.Token, inbound.Password)
		if resetErr != nil {
			switch {
			case errors.Is(resetErr, ErrPasswordTooShort):
				abortValidation(contextGin, "password", "password must be at least 8 characters")
			case errors.Is(resetErr, ErrResetTokenUsed):
				contextGin.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"success": false,
					"error":   "reset_token_used",
					"message": "this reset token has already been used",
				})
			case errors.Is(resetErr, ErrResetTokenExpired), errors.Is(resetErr, ErrResetTokenInvalid):
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"error":   "reset_token_rejected",
					"message": "reset token is invalid or expired",
				})
			default:
				abortBackendFailure(contextGin)
			}
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true})
	})

	router.POST("/auth/password/change", RequireAuthenticated(service, configuration), func(contextGin *gin.Context) {
		var inbound struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			abortInvalidJSON(contextGin)
			return
		}
		principal, found := PrincipalFrom(contextGin)
		if !found {
			abortUnauthorized(contextGin, ErrNoToken)
			return
		}
		changeErr := service.ChangePassword(contextGin.Request.Context(), principal.Identity.ID, principal.AccessToken, inbound.CurrentPassword, inbound.NewPassword)
		if changeErr != nil {
			switch {
			case errors.Is(changeErr, ErrPasswordTooShort):
				abortValidation(contextGin, "newPassword", "password must be at least 8 characters")
			case errors.Is(changeErr, ErrCurrentPasswordIncorrect):
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"success": false,
					"error":   "current_password_incorrect",
					"message": "current password did not verify",
				})
			default:
				abortBackendFailure(contextGin)
			}
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true})
	})

	router.GET("/auth/csrf", func(contextGin *gin.Context) {
		token, issueErr := csrfTokens.Issue(contextGin.Request.Context())
		if issueErr != nil {
			abortBackendFailure(contextGin)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{
			"success":   true,
			"csrfToken": token,
		})
	})
}

func signInPayload(result SignInResult) gin.H {
	return gin.H{
		"success":      true,
		"token":        result.AccessToken,
		"refreshToken": result.RefreshToken,
		"expiresIn":    result.ExpiresIn,
		"user":         identityPayload(result.Identity),
	}
}

func identityPayload(identity Identity) gin.H {
	return gin.H{
		"id":    identity.ID,
		"email": identity.Email,
		"role":  identity.Role.String(),
	}
}

func writeAccessCookie(contextGin *gin.Context, configuration ServerConfig, accessToken string, expiresIn int) {
	if configuration.AccessCookieName == "" {
		return
	}
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.AccessCookieName,
		Value:    accessToken,
		Path:     "/",
		Domain:   configuration.CookieDomain,
		Expires:  time.Now().Add(time.Duration(expiresIn) * time.Second),
		MaxAge:   expiresIn,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func clearAccessCookie(contextGin *gin.Context, configuration ServerConfig) {
	if configuration.AccessCookieName == "" {
		return
	}
	http.SetCookie(contextGin.Writer, &http.Cookie{
		Name:     configuration.AccessCookieName,
		Value:    "",
		Path:     "/",
		Domain:   configuration.CookieDomain,
		MaxAge:   -1,
		Secure:   !configuration.AllowInsecureHTTP,
		HttpOnly: true,
		SameSite: configuration.SameSiteMode,
	})
}

func abortInvalidJSON(contextGin *gin.Context) {
	contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "invalid_json",
		"message": "request body could not be parsed",
	})
}

func abortValidation(contextGin *gin.Context, field string, message string) {
	contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "validation_failed",
		"message": "request validation failed",
		"fields": []gin.H{
			{"field": field, "message": message},
		},
	})
}

func abortBackendFailure(contextGin *gin.Context) {
	contextGin.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   "backend_failure",
		"message": "unexpected backend failure",
	})
}
