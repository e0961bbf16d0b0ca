package service

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/offline"
	"fastpartybox/internal/repository"
)

const (
	maxProductName = 100
	maxStockQty    = 999999
)

var maxPrice = decimal.NewFromInt(999999999)

// ProductStore is what ProductService needs from the remote store.
type ProductStore interface {
	repository.ProductRepository
	repository.Batcher
}

// ProductService инкапсулирует бизнес-логику вокруг товаров
type ProductService struct {
	repo    ProductStore
	subs    *SubscriptionService
	catalog *offline.CatalogSnapshot
	log     *zap.Logger
}

// NewProductService: subs and catalog are optional.
func NewProductService(repo ProductStore, subs *SubscriptionService, catalog *offline.CatalogSnapshot, log *zap.Logger) *ProductService {
	return &ProductService{repo: repo, subs: subs, catalog: catalog, log: log}
}

// ValidateProduct returns the first violated catalog rule.
func ValidateProduct(p domain.Product) error {
	if p.Name == "" {
		return domain.NewValidationError("name", "is required")
	}
	if utf8.RuneCountInString(p.Name) > maxProductName {
		return domain.NewValidationError("name", "must be at most 100 characters")
	}
	prices := []struct {
		field string
		v     decimal.Decimal
	}{
		{"purchase_price", p.PurchasePrice},
		{"mrp", p.MRP},
		{"retail_price", p.RetailPrice},
		{"wholesale_price", p.WholesalePrice},
	}
	for _, pr := range prices {
		switch {
		case pr.v.IsNegative():
			return domain.NewValidationError(pr.field, "cannot be negative")
		case !domain.HasAtMostTwoDecimals(pr.v):
			return domain.NewValidationError(pr.field, "cannot have more than 2 decimal places")
		case pr.v.GreaterThan(maxPrice):
			return domain.NewValidationError(pr.field, "exceeds maximum allowed value")
		}
	}
	if p.MRP.LessThan(p.PurchasePrice) {
		return domain.NewValidationError("mrp", "cannot be less than purchase price")
	}
	if p.RetailPrice.GreaterThan(p.MRP) {
		return domain.NewValidationError("retail_price", "cannot be greater than MRP")
	}
	if p.WholesalePrice.GreaterThan(p.MRP) {
		return domain.NewValidationError("wholesale_price", "cannot be greater than MRP")
	}
	if p.WholesalePrice.GreaterThan(p.RetailPrice) {
		return domain.NewValidationError("wholesale_price", "cannot be greater than retail price")
	}
	if p.StockQty < 0 || p.StockQty > maxStockQty {
		return domain.NewValidationError("stock_qty", "must be between 0 and 999999")
	}
	if p.MinStock < 0 {
		return domain.NewValidationError("min_stock", "cannot be negative")
	}
	if p.MinStock > p.StockQty {
		return domain.NewValidationError("min_stock", "cannot be greater than stock quantity")
	}
	return nil
}

func (s *ProductService) Create(ctx context.Context, tenant string, p domain.Product) (*domain.Product, error) {
	if err := ValidateProduct(p); err != nil {
		return nil, err
	}
	if s.subs != nil {
		if err := s.subs.CanAddProduct(ctx, tenant); err != nil {
			return nil, err
		}
	}
	cp := p
	cp.ID = ""
	cp.Archived = false
	cp.LastStockChange = nil
	if err := s.repo.CreateProduct(ctx, tenant, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *ProductService) GetByID(ctx context.Context, tenant, id string) (*domain.Product, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	return s.repo.GetProduct(ctx, tenant, id)
}

// Update replaces the editable fields. A changed stock quantity is recorded
// as a manual adjustment.
func (s *ProductService) Update(ctx context.Context, tenant string, p domain.Product) (*domain.Product, error) {
	if p.ID == "" {
		return nil, domain.NewValidationError("id", "is required")
	}
	if err := ValidateProduct(p); err != nil {
		return nil, err
	}
	old, err := s.repo.GetProduct(ctx, tenant, p.ID)
	if err != nil {
		return nil, err
	}
	cp := p
	cp.Archived = old.Archived
	cp.LastStockChange = old.LastStockChange
	if cp.StockQty != old.StockQty {
		cp.LastStockChange = adjustment(old.StockQty, cp.StockQty, time.Now().UTC())
	}
	if err := s.repo.UpdateProduct(ctx, tenant, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *ProductService) Delete(ctx context.Context, tenant, id string) error {
	if id == "" {
		return domain.NewValidationError("id", "is required")
	}
	return s.repo.DeleteProduct(ctx, tenant, id)
}

// Archive hides the product from listings and the dashboard without deleting it.
func (s *ProductService) Archive(ctx context.Context, tenant, id string, archived bool) (*domain.Product, error) {
	p, err := s.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	p.Archived = archived
	if err := s.repo.UpdateProduct(ctx, tenant, p); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns products; an unfiltered listing also refreshes the local
// catalog snapshot used to price offline checkouts.
func (s *ProductService) List(ctx context.Context, tenant string, f repository.ProductFilter) ([]domain.Product, error) {
	products, err := s.repo.ListProducts(ctx, tenant, f)
	if err != nil {
		return nil, err
	}
	if s.catalog != nil && f.NameSubstring == "" && f.Limit == 0 && !f.IncludeArchived {
		if err := s.catalog.Save(ctx, tenant, products); err != nil {
			s.log.Warn("catalog snapshot not saved", zap.String("tenant", tenant), zap.Error(err))
		}
	}
	return products, nil
}

// AdjustStock sets the stock to qty with an ADJUSTMENT audit entry.
func (s *ProductService) AdjustStock(ctx context.Context, tenant, id string, qty int64) (*domain.Product, error) {
	if qty < 0 || qty > maxStockQty {
		return nil, domain.NewValidationError("stock_qty", "must be between 0 and 999999")
	}
	p, err := s.GetByID(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	b := s.repo.NewBatch(tenant)
	b.SetStock(id, qty, *adjustment(p.StockQty, qty, time.Time{}))
	if err := b.Commit(ctx); err != nil {
		return nil, err
	}
	return s.repo.GetProduct(ctx, tenant, id)
}

func adjustment(prev, next int64, at time.Time) *domain.StockChange {
	return &domain.StockChange{
		Type:          domain.StockChangeAdjustment,
		Quantity:      next - prev,
		PreviousStock: &prev,
		NewStock:      &next,
		Timestamp:     at,
	}
}
