// Package shop implements the catalog, cart, and order surface on top
// of the versioned record store.
package shop

import "errors"

// Sentinel errors surfaced by the shop service.
var (
	ErrProductNotFound   = errors.New("shop.product_not_found")
	ErrCategoryNotFound  = errors.New("shop.category_not_found")
	ErrCategoryInUse     = errors.New("shop.category_in_use")
	ErrOrderNotFound     = errors.New("shop.order_not_found")
	ErrCartEmpty         = errors.New("shop.cart_empty")
	ErrInsufficientStock = errors.New("shop.insufficient_stock")
	ErrInvalidStatus     = errors.New("shop.invalid_status")
	ErrValidation        = errors.New("shop.validation_failed")
)

// Product is a catalog entry. Prices are integer cents.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"priceCents"`
	CategoryID  string `json:"categoryId"`
	Stock       int    `json:"stock"`
	CreatedUnix int64  `json:"createdUnix"`
	UpdatedUnix int64  `json:"updatedUnix"`
}

// Category groups products.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CartLine is one product with a quantity inside a cart.
type CartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Cart holds a subject's pending purchase.
type Cart struct {
	SubjectID   string     `json:"subjectId"`
	Lines       []CartLine `json:"lines"`
	UpdatedUnix int64      `json:"updatedUnix"`
}

// OrderStatus tracks fulfilment progress.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions lists the permitted status changes.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

func (status OrderStatus) canTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OrderLine snapshots a product at checkout time so later catalog edits
// do not rewrite order history.
type OrderLine struct {
	ProductID      string `json:"productId"`
	ProductName    string `json:"productName"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
}

// Order is a placed purchase.
type Order struct {
	ID          string      `json:"id"`
	SubjectID   string      `json:"subjectId"`
	Lines       []OrderLine `json:"lines"`
	TotalCents  int64       `json:"totalCents"`
	Status      OrderStatus `json:"status"`
	CreatedUnix int64       `json:"createdUnix"`
	UpdatedUnix int64       `json:"updatedUnix"`
}
