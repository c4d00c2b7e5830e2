// Package catalog manages categories and products. Products are read by the
// cart and order services and their stock is written by checkout.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/ec-storefront/internal/domain"
	"github.com/example/ec-storefront/internal/infrastructure/store"
	"github.com/example/ec-storefront/internal/model"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
)

var (
	ErrCategoryNotFound = fmt.Errorf("%w: category not found", domain.ErrNotFound)
	ErrProductNotFound  = fmt.Errorf("%w: product not found", domain.ErrNotFound)
	ErrInvalidName      = fmt.Errorf("%w: name is required", domain.ErrValidation)
	ErrInvalidSlug      = fmt.Errorf("%w: slug cannot be derived from name", domain.ErrValidation)
	ErrInvalidPrice     = fmt.Errorf("%w: price must be zero or positive", domain.ErrValidation)
	ErrInvalidStock     = fmt.Errorf("%w: stock must be zero or positive", domain.ErrValidation)
	ErrInvalidCategory  = fmt.Errorf("%w: category_id does not exist", domain.ErrValidation)
	ErrDuplicate        = fmt.Errorf("%w: name or slug already in use", domain.ErrConflict)
	ErrProductInUse     = fmt.Errorf("%w: product is referenced by cart or order items", domain.ErrConflict)
)

type CategoryInput struct {
	Name string
	Slug string
}

type ProductInput struct {
	CategoryID  string
	Name        string
	Slug        string
	Description string
	Price       decimal.Decimal
	Stock       int
	// IsActive defaults to true on create and to the stored value on update.
	IsActive *bool
}

type Service struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(st store.Store, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.With("component", "catalog"),
		now:    time.Now,
	}
}

// deriveSlug returns the explicit slug normalised, or one made from name.
func deriveSlug(explicit, name string) (string, error) {
	source := explicit
	if strings.TrimSpace(source) == "" {
		source = name
	}
	s := slug.Make(source)
	if s == "" {
		return "", ErrInvalidSlug
	}
	return s, nil
}

func mapStoreErr(err error, notFound error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFound
	case errors.Is(err, store.ErrDuplicate):
		return ErrDuplicate
	}
	return err
}

// Categories

func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListCategories(ctx)
		return err
	})
	return out, err
}

func (s *Service) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	var c *model.Category
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.GetCategory(ctx, id)
		return mapStoreErr(err, ErrCategoryNotFound)
	})
	return c, err
}

func (s *Service) CreateCategory(ctx context.Context, caller domain.Caller, in CategoryInput) (*model.Category, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	sl, err := deriveSlug(in.Slug, name)
	if err != nil {
		return nil, err
	}

	c := &model.Category{
		ID:        uuid.New().String(),
		Name:      name,
		Slug:      sl,
		CreatedAt: s.now(),
	}
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		return mapStoreErr(tx.InsertCategory(ctx, c), ErrCategoryNotFound)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("category created", "category_id", c.ID, "slug", c.Slug)
	return c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, caller domain.Caller, id string, in CategoryInput) (*model.Category, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	sl, err := deriveSlug(in.Slug, name)
	if err != nil {
		return nil, err
	}

	var c *model.Category
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = tx.GetCategory(ctx, id)
		if err != nil {
			return mapStoreErr(err, ErrCategoryNotFound)
		}
		c.Name = name
		c.Slug = sl
		return mapStoreErr(tx.UpdateCategory(ctx, c), ErrCategoryNotFound)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCategory removes a category together with its products. It is
// refused when any of those products is still referenced by a cart or an
// order.
func (s *Service) DeleteCategory(ctx context.Context, caller domain.Caller, id string) error {
	if err := domain.RequireAdmin(caller); err != nil {
		return err
	}
	var removed int
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetCategory(ctx, id); err != nil {
			return mapStoreErr(err, ErrCategoryNotFound)
		}
		products, err := tx.ListProducts(ctx, store.ProductFilter{CategoryID: id})
		if err != nil {
			return err
		}
		for _, p := range products {
			referenced, err := tx.ProductReferenced(ctx, p.ID)
			if err != nil {
				return err
			}
			if referenced {
				return fmt.Errorf("%w (product %s)", ErrProductInUse, p.ID)
			}
		}
		removed = len(products)
		return mapStoreErr(tx.DeleteCategory(ctx, id), ErrCategoryNotFound)
	})
	if err != nil {
		return err
	}
	s.logger.Info("category deleted", "category_id", id, "products_removed", removed)
	return nil
}

// Products

// ListProducts returns active products, newest first. An empty categoryID
// lists every category.
func (s *Service) ListProducts(ctx context.Context, categoryID string) ([]model.Product, error) {
	var out []model.Product
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListProducts(ctx, store.ProductFilter{CategoryID: categoryID, ActiveOnly: true})
		return err
	})
	return out, err
}

// GetProduct hides inactive products from everyone but administrators.
func (s *Service) GetProduct(ctx context.Context, caller domain.Caller, id string) (*model.Product, error) {
	var p *model.Product
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		p, err = tx.GetProduct(ctx, id)
		return mapStoreErr(err, ErrProductNotFound)
	})
	if err != nil {
		return nil, err
	}
	if !p.IsActive && !caller.IsAdmin() {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func validateProduct(in ProductInput) (name, sl string, price decimal.Decimal, err error) {
	name = strings.TrimSpace(in.Name)
	if name == "" {
		return "", "", decimal.Zero, ErrInvalidName
	}
	if in.Price.IsNegative() {
		return "", "", decimal.Zero, ErrInvalidPrice
	}
	if in.Stock < 0 {
		return "", "", decimal.Zero, ErrInvalidStock
	}
	sl, err = deriveSlug(in.Slug, name)
	if err != nil {
		return "", "", decimal.Zero, err
	}
	return name, sl, in.Price.Round(2), nil
}

func (s *Service) CreateProduct(ctx context.Context, caller domain.Caller, in ProductInput) (*model.Product, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	name, sl, price, err := validateProduct(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &model.Product{
		ID:          uuid.New().String(),
		CategoryID:  in.CategoryID,
		Name:        name,
		Slug:        sl,
		Description: in.Description,
		Price:       price,
		Stock:       in.Stock,
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetCategory(ctx, p.CategoryID); err != nil {
			return mapStoreErr(err, ErrInvalidCategory)
		}
		return mapStoreErr(tx.InsertProduct(ctx, p), ErrInvalidCategory)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("product created", "product_id", p.ID, "slug", p.Slug, "price", p.Price.StringFixed(2))
	return p, nil
}

// UpdateProduct replaces the product's editable fields. Prices already
// captured in carts and orders are not touched.
func (s *Service) UpdateProduct(ctx context.Context, caller domain.Caller, id string, in ProductInput) (*model.Product, error) {
	if err := domain.RequireAdmin(caller); err != nil {
		return nil, err
	}
	name, sl, price, err := validateProduct(in)
	if err != nil {
		return nil, err
	}

	var p *model.Product
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		p, err = tx.LockProduct(ctx, id)
		if err != nil {
			return mapStoreErr(err, ErrProductNotFound)
		}
		if in.CategoryID != "" && in.CategoryID != p.CategoryID {
			if _, err := tx.GetCategory(ctx, in.CategoryID); err != nil {
				return mapStoreErr(err, ErrInvalidCategory)
			}
			p.CategoryID = in.CategoryID
		}
		p.Name = name
		p.Slug = sl
		p.Description = in.Description
		p.Price = price
		p.Stock = in.Stock
		if in.IsActive != nil {
			p.IsActive = *in.IsActive
		}
		p.UpdatedAt = s.now()
		return mapStoreErr(tx.UpdateProduct(ctx, p), ErrProductNotFound)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProduct is refused while any cart item or order item references the
// product.
func (s *Service) DeleteProduct(ctx context.Context, caller domain.Caller, id string) error {
	if err := domain.RequireAdmin(caller); err != nil {
		return err
	}
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.LockProduct(ctx, id); err != nil {
			return mapStoreErr(err, ErrProductNotFound)
		}
		referenced, err := tx.ProductReferenced(ctx, id)
		if err != nil {
			return err
		}
		if referenced {
			return ErrProductInUse
		}
		return mapStoreErr(tx.DeleteProduct(ctx, id), ErrProductNotFound)
	})
	if err != nil {
		return err
	}
	s.logger.Info("product deleted", "product_id", id)
	return nil
}
