package shop

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lostenergydrink/glimmerglow/internal/authcore"
	"github.com/lostenergydrink/glimmerglow/internal/rbac"
)

// MountShopRoutes registers the catalog, cart, and order endpoints.
// Every route requires authentication; catalog and order writes are
// additionally permission-gated, while carts and order reads are bound
// to the calling subject.
func MountShopRoutes(router gin.IRouter, service *Service, auth *authcore.Service, configuration authcore.ServerConfig) {
	authenticated := router.Group("/api", authcore.RequireAuthenticated(auth, configuration))

	authenticated.GET("/products", authcore.RequirePermission(rbac.PermProductRead), func(contextGin *gin.Context) {
		products, err := service.ListProducts(contextGin.Request.Context())
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "products": products})
	})
	authenticated.GET("/products/:id", authcore.RequirePermission(rbac.PermProductRead), func(contextGin *gin.Context) {
		product, err := service.GetProduct(contextGin.Request.Context(), contextGin.Param("id"))
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "product": product})
	})
	authenticated.POST("/products", authcore.RequirePermission(rbac.PermProductCreate), func(contextGin *gin.Context) {
		var input ProductInput
		if err := contextGin.BindJSON(&input); err != nil {
			abortShopJSON(contextGin)
			return
		}
		product, err := service.CreateProduct(contextGin.Request.Context(), input)
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{"success": true, "product": product})
	})
	authenticated.PUT("/products/:id", authcore.RequirePermission(rbac.PermProductUpdate), func(contextGin *gin.Context) {
		var input ProductInput
		if err := contextGin.BindJSON(&input); err != nil {
			abortShopJSON(contextGin)
			return
		}
		product, err := service.UpdateProduct(contextGin.Request.Context(), contextGin.Param("id"), input)
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "product": product})
	})
	authenticated.DELETE("/products/:id", authcore.RequirePermission(rbac.PermProductDelete), func(contextGin *gin.Context) {
		if err := service.DeleteProduct(contextGin.Request.Context(), contextGin.Param("id")); err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true})
	})

	authenticated.GET("/categories", authcore.RequirePermission(rbac.PermProductRead), func(contextGin *gin.Context) {
		categories, err := service.ListCategories(contextGin.Request.Context())
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "categories": categories})
	})
	authenticated.POST("/categories", authcore.RequirePermission(rbac.PermCategoryCreate), func(contextGin *gin.Context) {
		var input CategoryInput
		if err := contextGin.BindJSON(&input); err != nil {
			abortShopJSON(contextGin)
			return
		}
		category, err := service.CreateCategory(contextGin.Request.Context(), input)
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{"success": true, "category": category})
	})
	authenticated.PUT("/categories/:id", authcore.RequirePermission(rbac.PermCategoryUpdate), func(contextGin *gin.Context) {
		var input CategoryInput
		if err := contextGin.BindJSON(&input); err != nil {
			abortShopJSON(contextGin)
			return
		}
		category, err := service.UpdateCategory(contextGin.Request.Context(), contextGin.Param("id"), input)
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "category": category})
	})
	authenticated.DELETE("/categories/:id", authcore.RequirePermission(rbac.PermCategoryDelete), func(contextGin *gin.Context) {
		if err := service.DeleteCategory(contextGin.Request.Context(), contextGin.Param("id")); err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true})
	})

	authenticated.GET("/cart", func(contextGin *gin.Context) {
		principal, found := authcore.PrincipalFrom(contextGin)
		if !found {
			abortShopError(contextGin, authcore.ErrNoToken)
			return
		}
		cart, err := service.GetCart(contextGin.Request.Context(), principal.Identity.ID)
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "cart": cart})
	})
	authenticated.PUT("/cart/items", func(contextGin *gin.Context) {
		principal, found := authcore.PrincipalFrom(contextGin)
		if !found {
			abortShopError(contextGin, authcore.ErrNoToken)
			return
		}
		var inbound struct {
			ProductID string `json:"productId"`
			Quantity  int    `json:"quantity"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			abortShopJSON(contextGin)
			return
		}
		cart, err := service.SetCartLine(contextGin.Request.Context(), principal.Identity.ID, inbound.ProductID, inbound.Quantity)
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "cart": cart})
	})
	authenticated.DELETE("/cart", func(contextGin *gin.Context) {
		principal, found := authcore.PrincipalFrom(contextGin)
		if !found {
			abortShopError(contextGin, authcore.ErrNoToken)
			return
		}
		if err := service.ClearCart(contextGin.Request.Context(), principal.Identity.ID); err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true})
	})

	authenticated.POST("/orders", func(contextGin *gin.Context) {
		principal, found := authcore.PrincipalFrom(contextGin)
		if !found {
			abortShopError(contextGin, authcore.ErrNoToken)
			return
		}
		order, err := service.Checkout(contextGin.Request.Context(), principal.Identity.ID)
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusCreated, gin.H{"success": true, "order": order})
	})
	authenticated.GET("/orders", func(contextGin *gin.Context) {
		principal, found := authcore.PrincipalFrom(contextGin)
		if !found {
			abortShopError(contextGin, authcore.ErrNoToken)
			return
		}
		var orders []Order
		var err error
		// Holders of order:read see every order; everyone else sees
		// only their own.
		if rbac.HasPermission(principal.Role(), rbac.PermOrderRead) {
			orders, err = service.ListAllOrders(contextGin.Request.Context())
		} else {
			orders, err = service.ListOrdersForSubject(contextGin.Request.Context(), principal.Identity.ID)
		}
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "orders": orders})
	})
	authenticated.GET("/orders/:id", func(contextGin *gin.Context) {
		principal, found := authcore.PrincipalFrom(contextGin)
		if !found {
			abortShopError(contextGin, authcore.ErrNoToken)
			return
		}
		order, err := service.GetOrder(contextGin.Request.Context(), contextGin.Param("id"))
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		if order.SubjectID != principal.Identity.ID && !rbac.HasPermission(principal.Role(), rbac.PermOrderRead) {
			// Absence and denial answer alike so order IDs cannot be
			// probed.
			abortShopError(contextGin, ErrOrderNotFound)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "order": order})
	})
	authenticated.PUT("/orders/:id/status", authcore.RequirePermission(rbac.PermOrderUpdate), func(contextGin *gin.Context) {
		var inbound struct {
			Status string `json:"status"`
		}
		if err := contextGin.BindJSON(&inbound); err != nil {
			abortShopJSON(contextGin)
			return
		}
		order, err := service.UpdateOrderStatus(contextGin.Request.Context(), contextGin.Param("id"), OrderStatus(inbound.Status))
		if err != nil {
			abortShopError(contextGin, err)
			return
		}
		contextGin.JSON(http.StatusOK, gin.H{"success": true, "order": order})
	})
}

func abortShopJSON(contextGin *gin.Context) {
	contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "invalid_json",
		"message": "request body could not be parsed",
	})
}

func abortShopError(contextGin *gin.Context, cause error) {
	status := http.StatusInternalServerError
	code := "backend_failure"
	switch {
	case errors.Is(cause, ErrProductNotFound):
		status, code = http.StatusNotFound, "product_not_found"
	case errors.Is(cause, ErrCategoryNotFound):
		status, code = http.StatusNotFound, "category_not_found"
	case errors.Is(cause, ErrOrderNotFound):
		status, code = http.StatusNotFound, "order_not_found"
	case errors.Is(cause, ErrCategoryInUse):
		status, code = http.StatusConflict, "category_in_use"
	case errors.Is(cause, ErrInsufficientStock):
		status, code = http.StatusConflict, "insufficient_stock"
	case errors.Is(cause, ErrCartEmpty):
		status, code = http.StatusBadRequest, "cart_empty"
	case errors.Is(cause, ErrInvalidStatus):
		status, code = http.StatusBadRequest, "invalid_status"
	case errors.Is(cause, ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
	case errors.Is(cause, authcore.ErrNoToken):
		status, code = http.StatusUnauthorized, "no_token"
	}
	contextGin.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   code,
		"message": cause.Error(),
	})
}
