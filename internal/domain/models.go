package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product товар в каталоге арендатора
type Product struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Brand           string          `json:"brand,omitempty"`
	Category        string          `json:"category,omitempty"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	MRP             decimal.Decimal `json:"mrp"`
	RetailPrice     decimal.Decimal `json:"retail_price"`
	WholesalePrice  decimal.Decimal `json:"wholesale_price"`
	StockQty        int64           `json:"stock_qty"`
	MinStock        int64           `json:"min_stock"`
	ImageURL        string          `json:"image_url,omitempty"`
	Archived        bool            `json:"archived"`
	LastStockChange *StockChange    `json:"last_stock_change,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// StockChangeType тип операции со складом
type StockChangeType string

const (
	StockChangeSale           StockChangeType = "SALE"
	StockChangeOrderCancelled StockChangeType = "ORDER_CANCELLED"
	StockChangeAdjustment     StockChangeType = "ADJUSTMENT"
)

// StockChange запись аудита последнего изменения остатка
type StockChange struct {
	Type          StockChangeType `json:"type"`
	Quantity      int64           `json:"quantity"`
	PreviousStock *int64          `json:"previous_stock,omitempty"`
	NewStock      *int64          `json:"new_stock,omitempty"`
	OrderID       string          `json:"order_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// SaleChange audit entry for a decrement of qty units.
func SaleChange(qty int64, orderID string) StockChange {
	return StockChange{Type: StockChangeSale, Quantity: -qty, OrderID: orderID}
}

// PriceMode режим цены в корзине и заказе
type PriceMode string

const (
	ModeRetail    PriceMode = "retail"
	ModeWholesale PriceMode = "wholesale"
)

func (m PriceMode) Valid() bool {
	return m == ModeRetail || m == ModeWholesale
}

// OrderStatus тип статуса заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus статус оплаты заказа
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// LineItem снимок товара на момент продажи
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	ImageURL  string          `json:"image_url,omitempty"`
}

func (li LineItem) Amount() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(li.Quantity))
}

// CustomerRef ссылка на покупателя внутри заказа. ID пуст, пока покупатель не создан в удалённом хранилище.
type CustomerRef struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
	GST   string `json:"gst,omitempty"`
}

// Payment одна оплата по заказу
type Payment struct {
	Amount  decimal.Decimal `json:"amount"`
	Notes   string          `json:"notes,omitempty"`
	Balance decimal.Decimal `json:"balance"`
	PaidAt  time.Time       `json:"paid_at"`
}

// Order сущность заказа
type Order struct {
	ID             string          `json:"id,omitempty"`
	LocalID        string          `json:"local_id,omitempty"`
	Mode           PriceMode       `json:"mode"`
	Items          []LineItem      `json:"items"`
	Total          decimal.Decimal `json:"total"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	BalanceDue     decimal.Decimal `json:"balance_due"`
	Customer       *CustomerRef    `json:"customer,omitempty"`
	Payments       []Payment       `json:"payments,omitempty"`
	Status         OrderStatus     `json:"status"`
	CreatedOffline bool            `json:"created_offline"`
	CreatedAt      time.Time       `json:"created_at"`
	SyncedAt       *time.Time      `json:"synced_at,omitempty"`
	CancelledAt    *time.Time      `json:"cancelled_at,omitempty"`
	CancelledBy    string          `json:"cancelled_by,omitempty"`
	PreviousStatus OrderStatus     `json:"previous_status,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PendingState состояние заказа в локальной очереди
type PendingState string

const (
	PendingQueued     PendingState = "pending"
	PendingCommitting PendingState = "committing"
	PendingFailed     PendingState = "failed"
)

// PendingOrder заказ, ещё не записанный в удалённое хранилище
type PendingOrder struct {
	LocalID        string       `json:"local_id"`
	Order          Order        `json:"order"`
	Attempts       int          `json:"attempts"`
	CreatedOffline bool         `json:"created_offline"`
	State          PendingState `json:"state"`
	LastError      string       `json:"last_error,omitempty"`
}

// Customer покупатель с накопительными итогами
type Customer struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Phone         string          `json:"phone"`
	Email         string          `json:"email,omitempty"`
	GST           string          `json:"gst,omitempty"`
	Address       string          `json:"address,omitempty"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalDue      decimal.Decimal `json:"total_due"`
	LastOrderAt   *time.Time      `json:"last_order_at,omitempty"`
	LastPaymentAt *time.Time      `json:"last_payment_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (c Customer) Ref() *CustomerRef {
	return &CustomerRef{ID: c.ID, Name: c.Name, Phone: c.Phone, Email: c.Email, GST: c.GST}
}

// CustomerDelta изменение накопительных итогов покупателя
type CustomerDelta struct {
	Spent     decimal.Decimal
	Paid      decimal.Decimal
	Due       decimal.Decimal
	OrderAt   *time.Time
	PaymentAt *time.Time
}

// Tier тарифный план
type Tier string

const (
	TierFree Tier = "FREE"
	TierPaid Tier = "PAID"
)

// TierLimits ограничения тарифа
type TierLimits struct {
	MaxProducts int64           `json:"max_products"`
	Price       decimal.Decimal `json:"price"`
}

var tierLimits = map[Tier]TierLimits{
	TierFree: {MaxProducts: 100, Price: decimal.Zero},
	TierPaid: {MaxProducts: 1000, Price: decimal.NewFromInt(269)},
}

// LimitsFor returns the limits of t, falling back to FREE for unknown tiers.
func LimitsFor(t Tier) TierLimits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierFree]
}

func (t Tier) Valid() bool {
	_, ok := tierLimits[t]
	return ok
}

// AccountStatus статус подписки
type AccountStatus string

const (
	AccountTrial   AccountStatus = "trial"
	AccountActive  AccountStatus = "active"
	AccountExpired AccountStatus = "expired"
)

// Account подписка пользователя
type Account struct {
	UserID         string        `json:"user_id"`
	Tier           Tier          `json:"tier"`
	Status         AccountStatus `json:"status"`
	TrialStartedAt *time.Time    `json:"trial_started_at,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
