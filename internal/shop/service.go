package shop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lostenergydrink/glimmerglow/internal/authcore"
	"github.com/lostenergydrink/glimmerglow/internal/recordstore"
	"github.com/lostenergydrink/glimmerglow/pkg/retry"
)

const (
	productsKey   = "products"
	categoriesKey = "categories"
	ordersKey     = "orders"
)

func cartKey(subjectID string) string {
	return "cart:" + strings.ToLower(subjectID)
}

type productsDocument struct {
	Products []Product `json:"products"`
}

type categoriesDocument struct {
	Categories []Category `json:"categories"`
}

type ordersDocument struct {
	Orders []Order `json:"orders"`
}

// Service runs catalog, cart, and order operations over a versioned
// record store. Concurrent writers are reconciled with compare-and-swap
// retries.
type Service struct {
	records     recordstore.Store
	retryPolicy retry.Policy
	clock       authcore.Clock
	logger      *zap.Logger
}

// NewService wires the shop service. A nil logger or clock falls back
// to sane defaults.
func NewService(records recordstore.Store, logger *zap.Logger, clock authcore.Clock) (*Service, error) {
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = authcore.SystemClock{}
	}
	policy := retry.DefaultPolicy()
	policy.Retryable = func(err error) bool {
		return errors.Is(err, recordstore.ErrVersionConflict)
	}
	return &Service{
		records:     records,
		retryPolicy: policy,
		clock:       clock,
		logger:      logger,
	}, nil
}

// loadDocument decodes the document at key into target. A missing key
// leaves target at its zero value and reports the initial version.
func (service *Service) loadDocument(ctx context.Context, key string, target any) (int64, error) {
	data, version, loadErr := service.records.Load(ctx, key)
	if loadErr != nil {
		if errors.Is(loadErr, recordstore.ErrKeyNotFound) {
			return recordstore.InitialVersion, nil
		}
		return 0, fmt.Errorf("load %s: %w", key, loadErr)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return 0, fmt.Errorf("decode %s: %w", key, err)
	}
	return version, nil
}

// updateDocument runs a read-modify-write cycle on key, retrying on
// version conflicts. The mutate closure receives the freshly loaded
// document and returns the replacement to store.
func updateDocument[documentType any](ctx context.Context, service *Service, key string, mutate func(current documentType) (documentType, error)) error {
	return retry.Do(ctx, service.retryPolicy, func(ctx context.Context) error {
		var current documentType
		version, loadErr := service.loadDocument(ctx, key, &current)
		if loadErr != nil {
			return loadErr
		}
		next, mutateErr := mutate(current)
		if mutateErr != nil {
			return mutateErr
		}
		encoded, encodeErr := json.Marshal(next)
		if encodeErr != nil {
			return fmt.Errorf("encode %s: %w", key, encodeErr)
		}
		_, saveErr := service.records.Save(ctx, key, version, encoded)
		if saveErr != nil {
			if errors.Is(saveErr, recordstore.ErrVersionConflict) {
				return saveErr
			}
			return fmt.Errorf("save %s: %w", key, saveErr)
		}
		return nil
	})
}

// ListProducts returns the catalog.
func (service *Service) ListProducts(ctx context.Context) ([]Product, error) {
	var document productsDocument
	if _, err := service.loadDocument(ctx, productsKey, &document); err != nil {
		return nil, err
	}
	return document.Products, nil
}

// GetProduct returns a single product by ID.
func (service *Service) GetProduct(ctx context.Context, productID string) (Product, error) {
	products, listErr := service.ListProducts(ctx)
	if listErr != nil {
		return Product{}, listErr
	}
	for _, product := range products {
		if product.ID == productID {
			return product, nil
		}
	}
	return Product{}, ErrProductNotFound
}

// ProductInput carries the writable fields of a product.
type ProductInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"priceCents"`
	CategoryID  string `json:"categoryId"`
	Stock       int    `json:"stock"`
}

func (input ProductInput) validate() error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if input.PriceCents < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if input.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrValidation)
	}
	return nil
}

// CreateProduct adds a catalog entry and returns it with its new ID.
func (service *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	if err := input.validate(); err != nil {
		return Product{}, err
	}
	if input.CategoryID != "" {
		if _, err := service.GetCategory(ctx, input.CategoryID); err != nil {
			return Product{}, err
		}
	}
	now := service.clock.Now().Unix()
	created := Product{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		PriceCents:  input.PriceCents,
		CategoryID:  input.CategoryID,
		Stock:       input.Stock,
		CreatedUnix: now,
		UpdatedUnix: now,
	}
	err := updateDocument(ctx, service, productsKey, func(document productsDocument) (productsDocument, error) {
		document.Products = append(document.Products, created)
		return document, nil
	})
	if err != nil {
		return Product{}, err
	}
	return created, nil
}

// UpdateProduct rewrites a product's writable fields.
func (service *Service) UpdateProduct(ctx context.Context, productID string, input ProductInput) (Product, error) {
	if err := input.validate(); err != nil {
		return Product{}, err
	}
	if input.CategoryID != "" {
		if _, err := service.GetCategory(ctx, input.CategoryID); err != nil {
			return Product{}, err
		}
	}
	var updated Product
	err := updateDocument(ctx, service, productsKey, func(document productsDocument) (productsDocument, error) {
		for index := range document.Products {
			if document.Products[index].ID != productID {
				continue
			}
			document.Products[index].Name = strings.TrimSpace(input.Name)
			document.Products[index].Description = input.Description
			document.Products[index].PriceCents = input.PriceCents
			document.Products[index].CategoryID = input.CategoryID
			document.Products[index].Stock = input.Stock
			document.Products[index].UpdatedUnix = service.clock.Now().Unix()
			updated = document.Products[index]
			return document, nil
		}
		return document, ErrProductNotFound
	})
	if err != nil {
		return Product{}, err
	}
	return updated, nil
}

// DeleteProduct removes a product from the catalog.
func (service *Service) DeleteProduct(ctx context.Context, productID string) error {
	return updateDocument(ctx, service, productsKey, func(document productsDocument) (productsDocument, error) {
		for index := range document.Products {
			if document.Products[index].ID == productID {
				document.Products = append(document.Products[:index], document.Products[index+1:]...)
				return document, nil
			}
		}
		return document, ErrProductNotFound
	})
}

// ListCategories returns every category.
func (service *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var document categoriesDocument
	if _, err := service.loadDocument(ctx, categoriesKey, &document); err != nil {
		return nil, err
	}
	return document.Categories, nil
}

// GetCategory returns one category by ID.
func (service *Service) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	categories, listErr := service.ListCategories(ctx)
	if listErr != nil {
		return Category{}, listErr
	}
	for _, category := range categories {
		if category.ID == categoryID {
			return category, nil
		}
	}
	return Category{}, ErrCategoryNotFound
}

// CategoryInput carries the writable fields of a category.
type CategoryInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateCategory adds a category.
func (service *Service) CreateCategory(ctx context.Context, input CategoryInput) (Category, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrValidation)
	}
	created := Category{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
	}
	err := updateDocument(ctx, service, categoriesKey, func(document categoriesDocument) (categoriesDocument, error) {
		document.Categories = append(document.Categories, created)
		return document, nil
	})
	if err != nil {
		return Category{}, err
	}
	return created, nil
}

// UpdateCategory rewrites a category's fields.
func (service *Service) UpdateCategory(ctx context.Context, categoryID string, input CategoryInput) (Category, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Category{}, fmt.Errorf("%w: category name is required", ErrValidation)
	}
	var updated Category
	err := updateDocument(ctx, service, categoriesKey, func(document categoriesDocument) (categoriesDocument, error) {
		for index := range document.Categories {
			if document.Categories[index].ID != categoryID {
				continue
			}
			document.Categories[index].Name = strings.TrimSpace(input.Name)
			document.Categories[index].Description = input.Description
			updated = document.Categories[index]
			return document, nil
		}
		return document, ErrCategoryNotFound
	})
	if err != nil {
		return Category{}, err
	}
	return updated, nil
}

// DeleteCategory removes a category. Categories still referenced by
// products cannot be deleted.
func (service *Service) DeleteCategory(ctx context.Context, categoryID string) error {
	products, listErr := service.ListProducts(ctx)
	if listErr != nil {
		return listErr
	}
	for _, product := range products {
		if product.CategoryID == categoryID {
			return ErrCategoryInUse
		}
	}
	return updateDocument(ctx, service, categoriesKey, func(document categoriesDocument) (categoriesDocument, error) {
		for index := range document.Categories {
			if document.Categories[index].ID == categoryID {
				document.Categories = append(document.Categories[:index], document.Categories[index+1:]...)
				return document, nil
			}
		}
		return document, ErrCategoryNotFound
	})
}

// GetCart returns the subject's cart, empty if none exists yet.
func (service *Service) GetCart(ctx context.Context, subjectID string) (Cart, error) {
	var cart Cart
	if _, err := service.loadDocument(ctx, cartKey(subjectID), &cart); err != nil {
		return Cart{}, err
	}
	cart.SubjectID = subjectID
	if cart.Lines == nil {
		cart.Lines = []CartLine{}
	}
	return cart, nil
}

// SetCartLine sets the quantity of one product in the subject's cart.
// Quantity zero removes the line.
func (service *Service) SetCartLine(ctx context.Context, subjectID string, productID string, quantity int) (Cart, error) {
	if quantity < 0 {
		return Cart{}, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
	}
	if quantity > 0 {
		product, productErr := service.GetProduct(ctx, productID)
		if productErr != nil {
			return Cart{}, productErr
		}
		if product.Stock < quantity {
			return Cart{}, ErrInsufficientStock
		}
	}
	var result Cart
	err := updateDocument(ctx, service, cartKey(subjectID), func(cart Cart) (Cart, error) {
		cart.SubjectID = subjectID
		kept := cart.Lines[:0]
		for _, line := range cart.Lines {
			if line.ProductID != productID {
				kept = append(kept, line)
			}
		}
		cart.Lines = kept
		if quantity > 0 {
			cart.Lines = append(cart.Lines, CartLine{ProductID: productID, Quantity: quantity})
		}
		cart.UpdatedUnix = service.clock.Now().Unix()
		result = cart
		return cart, nil
	})
	if err != nil {
		return Cart{}, err
	}
	if result.Lines == nil {
		result.Lines = []CartLine{}
	}
	return result, nil
}

// ClearCart empties the subject's cart.
func (service *Service) ClearCart(ctx context.Context, subjectID string) error {
	deleteErr := service.records.Delete(ctx, cartKey(subjectID))
	if deleteErr != nil && !errors.Is(deleteErr, recordstore.ErrKeyNotFound) {
		return fmt.Errorf("clear cart: %w", deleteErr)
	}
	return nil
}

// Checkout turns the subject's cart into a pending order, decrementing
// stock and snapshotting names and prices. The cart is cleared on
// success.
func (service *Service) Checkout(ctx context.Context, subjectID string) (Order, error) {
	cart, cartErr := service.GetCart(ctx, subjectID)
	if cartErr != nil {
		return Order{}, cartErr
	}
	if len(cart.Lines) == 0 {
		return Order{}, ErrCartEmpty
	}

	now := service.clock.Now().Unix()
	order := Order{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		Status:      OrderStatusPending,
		CreatedUnix: now,
		UpdatedUnix: now,
	}

	// Reserve stock first so a failed reservation leaves the order
	// document untouched.
	stockErr := updateDocument(ctx, service, productsKey, func(document productsDocument) (productsDocument, error) {
		order.Lines = order.Lines[:0]
		order.TotalCents = 0
		for _, line := range cart.Lines {
			found := false
			for index := range document.Products {
				if document.Products[index].ID != line.ProductID {
					continue
				}
				if document.Products[index].Stock < line.Quantity {
					return document, ErrInsufficientStock
				}
				document.Products[index].Stock -= line.Quantity
				order.Lines = append(order.Lines, OrderLine{
					ProductID:      line.ProductID,
					ProductName:    document.Products[index].Name,
					UnitPriceCents: document.Products[index].PriceCents,
					Quantity:       line.Quantity,
				})
				order.TotalCents += document.Products[index].PriceCents * int64(line.Quantity)
				found = true
				break
			}
			if !found {
				return document, ErrProductNotFound
			}
		}
		return document, nil
	})
	if stockErr != nil {
		return Order{}, stockErr
	}

	appendErr := updateDocument(ctx, service, ordersKey, func(document ordersDocument) (ordersDocument, error) {
		document.Orders = append(document.Orders, order)
		return document, nil
	})
	if appendErr != nil {
		return Order{}, appendErr
	}
	if err := service.ClearCart(ctx, subjectID); err != nil {
		service.logger.Warn("cart cleanup after checkout failed",
			zap.String("subject_id", subjectID),
			zap.Error(err))
	}
	return order, nil
}

// ListOrdersForSubject returns the subject's own orders.
func (service *Service) ListOrdersForSubject(ctx context.Context, subjectID string) ([]Order, error) {
	orders, listErr := service.listOrders(ctx)
	if listErr != nil {
		return nil, listErr
	}
	owned := []Order{}
	for _, order := range orders {
		if order.SubjectID == subjectID {
			owned = append(owned, order)
		}
	}
	return owned, nil
}

// ListAllOrders returns every order for back-office review.
func (service *Service) ListAllOrders(ctx context.Context) ([]Order, error) {
	return service.listOrders(ctx)
}

func (service *Service) listOrders(ctx context.Context) ([]Order, error) {
	var document ordersDocument
	if _, err := service.loadDocument(ctx, ordersKey, &document); err != nil {
		return nil, err
	}
	if document.Orders == nil {
		document.Orders = []Order{}
	}
	return document.Orders, nil
}

// GetOrder returns one order by ID.
func (service *Service) GetOrder(ctx context.Context, orderID string) (Order, error) {
	orders, listErr := service.listOrders(ctx)
	if listErr != nil {
		return Order{}, listErr
	}
	for _, order := range orders {
		if order.ID == orderID {
			return order, nil
		}
	}
	return Order{}, ErrOrderNotFound
}

// UpdateOrderStatus moves an order along the fulfilment state machine.
// Only the transitions pending→shipped, pending→cancelled, and
// shipped→delivered are permitted.
func (service *Service) UpdateOrderStatus(ctx context.Context, orderID string, next OrderStatus) (Order, error) {
	if _, known := orderTransitions[next]; !known {
		return Order{}, ErrInvalidStatus
	}
	var updated Order
	err := updateDocument(ctx, service, ordersKey, func(document ordersDocument) (ordersDocument, error) {
		for index := range document.Orders {
			if document.Orders[index].ID != orderID {
				continue
			}
			if !document.Orders[index].Status.canTransitionTo(next) {
				return document, ErrInvalidStatus
			}
			document.Orders[index].Status = next
			document.Orders[index].UpdatedUnix = service.clock.Now().Unix()
			updated = document.Orders[index]
			return document, nil
		}
		return document, ErrOrderNotFound
	})
	if err != nil {
		return Order{}, err
	}
	return updated, nil
}
