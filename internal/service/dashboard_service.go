package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/repository"
)

type DashboardConfig struct {
	OrderScanLimit   int
	ProductScanLimit int
	TopProducts      int
}

// DashboardStore is the read side the dashboard scans.
type DashboardStore interface {
	repository.ProductRepository
	repository.OrderRepository
}

// DashboardService считает сводку по последним заказам и остаткам. Ничего не сохраняет.
type DashboardService struct {
	store DashboardStore
	cfg   DashboardConfig
}

func NewDashboardService(store DashboardStore, cfg DashboardConfig) *DashboardService {
	if cfg.OrderScanLimit <= 0 {
		cfg.OrderScanLimit = 100
	}
	if cfg.ProductScanLimit <= 0 {
		cfg.ProductScanLimit = 500
	}
	if cfg.TopProducts <= 0 {
		cfg.TopProducts = 10
	}
	return &DashboardService{store: store, cfg: cfg}
}

type OrderCounts struct {
	Completed        int     `json:"completed"`
	Cancelled        int     `json:"cancelled"`
	Today            int     `json:"today"`
	TodayCompleted   int     `json:"today_completed"`
	TodayCancelled   int     `json:"today_cancelled"`
	TodayCustomers   int     `json:"today_customers"`
	CancellationRate float64 `json:"cancellation_rate"`
}

type LowStockItem struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	StockQty  int64  `json:"stock_qty"`
	MinStock  int64  `json:"min_stock"`
}

type TopProduct struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type Summary struct {
	GeneratedAt time.Time       `json:"generated_at"`
	TodaySales  decimal.Decimal `json:"today_sales"`
	WeekSales   decimal.Decimal `json:"week_sales"`
	MonthSales  decimal.Decimal `json:"month_sales"`
	Orders      OrderCounts     `json:"orders"`
	LowStock    []LowStockItem  `json:"low_stock"`
	TopProducts []TopProduct    `json:"top_products"`
}

// Summary recomputes the dashboard from the newest orders and the catalog.
// Days start at midnight in now's location.
func (s *DashboardService) Summary(ctx context.Context, tenant string, now time.Time) (*Summary, error) {
	orders, err := s.store.ListOrders(ctx, tenant, repository.OrderFilter{Limit: s.cfg.OrderScanLimit})
	if err != nil {
		return nil, err
	}
	products, err := s.store.ListProducts(ctx, tenant, repository.ProductFilter{Limit: s.cfg.ProductScanLimit})
	if err != nil {
		return nil, err
	}

	sum := &Summary{
		GeneratedAt: now,
		TodaySales:  decimal.Zero,
		WeekSales:   decimal.Zero,
		MonthSales:  decimal.Zero,
		LowStock:    LowStock(products),
		TopProducts: TopProducts(orders, s.cfg.TopProducts),
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekAgo := today.Add(-7 * 24 * time.Hour)
	monthAgo := today.Add(-30 * 24 * time.Hour)
	phones := make(map[string]bool)
	for _, o := range orders {
		isToday := !o.CreatedAt.Before(today)
		if isToday {
			sum.Orders.Today++
			if o.Customer != nil && o.Customer.Phone != "" {
				phones[o.Customer.Phone] = true
			}
		}
		if o.IsCancelled() {
			sum.Orders.Cancelled++
			if isToday {
				sum.Orders.TodayCancelled++
			}
			continue
		}
		sum.Orders.Completed++
		if isToday {
			sum.Orders.TodayCompleted++
			sum.TodaySales = sum.TodaySales.Add(o.Total)
		}
		if !o.CreatedAt.Before(weekAgo) {
			sum.WeekSales = sum.WeekSales.Add(o.Total)
		}
		if !o.CreatedAt.Before(monthAgo) {
			sum.MonthSales = sum.MonthSales.Add(o.Total)
		}
	}
	sum.Orders.TodayCustomers = len(phones)
	if sum.Orders.Today > 0 {
		rate := float64(sum.Orders.TodayCancelled) / float64(sum.Orders.Today) * 100
		sum.Orders.CancellationRate = math.Round(rate*10) / 10
	}
	return sum, nil
}

// LowStock lists non-archived products at or below their minimum, lowest
// stock first.
func LowStock(products []domain.Product) []LowStockItem {
	out := []LowStockItem{}
	for _, p := range products {
		if p.Archived || p.StockQty > p.MinStock {
			continue
		}
		out = append(out, LowStockItem{ProductID: p.ID, Name: p.Name, StockQty: p.StockQty, MinStock: p.MinStock})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StockQty < out[j].StockQty })
	return out
}

// TopProducts ranks products across non-cancelled orders by quantity sold,
// then revenue.
func TopProducts(orders []domain.Order, n int) []TopProduct {
	agg := make(map[string]*TopProduct)
	for _, o := range orders {
		if o.IsCancelled() {
			continue
		}
		for _, li := range o.Items {
			tp, ok := agg[li.ProductID]
			if !ok {
				tp = &TopProduct{ProductID: li.ProductID, Name: li.Name, Revenue: decimal.Zero}
				agg[li.ProductID] = tp
			}
			tp.Quantity += li.Quantity
			tp.Revenue = tp.Revenue.Add(li.Amount())
		}
	}
	out := make([]TopProduct, 0, len(agg))
	for _, tp := range agg {
		out = append(out, *tp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Quantity != out[j].Quantity {
			return out[i].Quantity > out[j].Quantity
		}
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		return out[i].ProductID < out[j].ProductID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
