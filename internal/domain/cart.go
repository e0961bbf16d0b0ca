package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartItem позиция корзины: снимок товара с обеими ценами
type CartItem struct {
	ProductID      string          `json:"product_id"`
	Name           string          `json:"name"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	Quantity       int64           `json:"quantity"`
	StockQty       int64           `json:"stock_qty"`
	ImageURL       string          `json:"image_url,omitempty"`
}

// Price returns the unit price for the given mode.
func (i CartItem) Price(mode PriceMode) decimal.Decimal {
	if mode == ModeWholesale {
		return i.WholesalePrice
	}
	return i.RetailPrice
}

func ItemFromProduct(p Product, qty int64) CartItem {
	return CartItem{
		ProductID:      p.ID,
		Name:           p.Name,
		RetailPrice:    p.RetailPrice,
		WholesalePrice: p.WholesalePrice,
		Quantity:       qty,
		StockQty:       p.StockQty,
		ImageURL:       p.ImageURL,
	}
}

// Cart корзина кассы
type Cart struct {
	Mode      PriceMode  `json:"mode"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func NewCart() Cart {
	return Cart{Mode: ModeRetail, Items: []CartItem{}}
}

// CalculateTotal sums price(mode) * quantity over items.
func CalculateTotal(mode PriceMode, items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price(mode).Mul(decimal.NewFromInt(it.Quantity)))
	}
	return total
}

func (c Cart) Total() decimal.Decimal { return CalculateTotal(c.Mode, c.Items) }

func (c Cart) Empty() bool { return len(c.Items) == 0 }

func (c *Cart) SetMode(mode PriceMode) error {
	if !mode.Valid() {
		return NewValidationError("mode", "must be retail or wholesale")
	}
	c.Mode = mode
	return nil
}

func (c *Cart) indexOf(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add puts one more unit of p into the cart.
func (c *Cart) Add(p Product) error {
	if p.StockQty <= 0 {
		return NewValidationError("product", p.Name+" is out of stock")
	}
	i := c.indexOf(p.ID)
	if i < 0 {
		c.Items = append(c.Items, ItemFromProduct(p, 1))
		return nil
	}
	if c.Items[i].Quantity+1 > p.StockQty {
		return &InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: c.Items[i].Quantity + 1, Available: p.StockQty}
	}
	c.Items[i].Quantity++
	c.Items[i].StockQty = p.StockQty
	return nil
}

// SetQuantity sets the quantity of p, adding it when absent.
func (c *Cart) SetQuantity(p Product, qty int64) error {
	if qty < 1 {
		return NewValidationError("quantity", "must be at least 1")
	}
	if qty > p.StockQty {
		return &InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: qty, Available: p.StockQty}
	}
	i := c.indexOf(p.ID)
	if i < 0 {
		c.Items = append(c.Items, ItemFromProduct(p, qty))
		return nil
	}
	c.Items[i].Quantity = qty
	c.Items[i].StockQty = p.StockQty
	return nil
}

// Decrement removes one unit; the line disappears at zero.
func (c *Cart) Decrement(productID string) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	if c.Items[i].Quantity > 1 {
		c.Items[i].Quantity--
		return true
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

func (c *Cart) Remove(productID string) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

// LineItems snapshots the cart at the current mode's prices.
func (c Cart) LineItems() []LineItem {
	out := make([]LineItem, 0, len(c.Items))
	for _, it := range c.Items {
		out = append(out, LineItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: it.Price(c.Mode),
			ImageURL:  it.ImageURL,
		})
	}
	return out
}

// WithoutImages drops image references, the least essential part of the payload.
func (c Cart) WithoutImages() Cart {
	cp := c
	cp.Items = make([]CartItem, len(c.Items))
	for i, it := range c.Items {
		it.ImageURL = ""
		cp.Items[i] = it
	}
	return cp
}
