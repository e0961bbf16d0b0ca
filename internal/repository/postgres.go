package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"

	"fastpartybox/internal/domain"
)

// PostgresConfig параметры подключения к PostgreSQL
type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// PostgresStore удалённое хранилище поверх PostgreSQL. Пакет записи = одна транзакция.
type PostgresStore struct {
	DB *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return &PostgresStore{DB: db}, nil
}

func (r *PostgresStore) Close() error { return r.DB.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS products (
	tenant_id         TEXT NOT NULL,
	id                TEXT NOT NULL,
	name              TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	brand             TEXT NOT NULL DEFAULT '',
	category          TEXT NOT NULL DEFAULT '',
	purchase_price    NUMERIC(14,2) NOT NULL DEFAULT 0,
	mrp               NUMERIC(14,2) NOT NULL DEFAULT 0,
	retail_price      NUMERIC(14,2) NOT NULL DEFAULT 0,
	wholesale_price   NUMERIC(14,2) NOT NULL DEFAULT 0,
	stock_qty         BIGINT NOT NULL DEFAULT 0,
	min_stock         BIGINT NOT NULL DEFAULT 0,
	image_url         TEXT NOT NULL DEFAULT '',
	archived          BOOLEAN NOT NULL DEFAULT FALSE,
	last_stock_change JSONB NOT NULL DEFAULT 'null',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);
CREATE TABLE IF NOT EXISTS orders (
	tenant_id       TEXT NOT NULL,
	id              TEXT NOT NULL,
	local_id        TEXT NOT NULL DEFAULT '',
	mode            TEXT NOT NULL,
	items           JSONB NOT NULL,
	total           NUMERIC(14,2) NOT NULL,
	payment_status  TEXT NOT NULL,
	amount_paid     NUMERIC(14,2) NOT NULL DEFAULT 0,
	balance_due     NUMERIC(14,2) NOT NULL DEFAULT 0,
	customer_id     TEXT NOT NULL DEFAULT '',
	customer        JSONB NOT NULL DEFAULT 'null',
	payments        JSONB NOT NULL DEFAULT '[]',
	status          TEXT NOT NULL,
	created_offline BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL,
	synced_at       TIMESTAMPTZ,
	cancelled_at    TIMESTAMPTZ,
	cancelled_by    TEXT NOT NULL DEFAULT '',
	previous_status TEXT NOT NULL DEFAULT '',
	updated_at      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, id)
);
CREATE INDEX IF NOT EXISTS orders_tenant_created_idx ON orders (tenant_id, created_at DESC);
CREATE TABLE IF NOT EXISTS customers (
	tenant_id       TEXT NOT NULL,
	id              TEXT NOT NULL,
	name            TEXT NOT NULL,
	phone           TEXT NOT NULL,
	email           TEXT NOT NULL DEFAULT '',
	gst             TEXT NOT NULL DEFAULT '',
	address         TEXT NOT NULL DEFAULT '',
	total_spent     NUMERIC(14,2) NOT NULL DEFAULT 0,
	total_paid      NUMERIC(14,2) NOT NULL DEFAULT 0,
	total_due       NUMERIC(14,2) NOT NULL DEFAULT 0,
	last_order_at   TIMESTAMPTZ,
	last_payment_at TIMESTAMPTZ,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id),
	UNIQUE (tenant_id, phone)
);
CREATE TABLE IF NOT EXISTS accounts (
	user_id          TEXT PRIMARY KEY,
	tier             TEXT NOT NULL,
	status           TEXT NOT NULL,
	trial_started_at TIMESTAMPTZ,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the schema when missing.
func (r *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	if err := r.DB.PingContext(ctx); err != nil {
		return domain.NewTransportError("ping", err)
	}
	return nil
}

// row types

type productRow struct {
	TenantID        string          `db:"tenant_id"`
	ID              string          `db:"id"`
	Name            string          `db:"name"`
	Description     string          `db:"description"`
	Brand           string          `db:"brand"`
	Category        string          `db:"category"`
	PurchasePrice   decimal.Decimal `db:"purchase_price"`
	MRP             decimal.Decimal `db:"mrp"`
	RetailPrice     decimal.Decimal `db:"retail_price"`
	WholesalePrice  decimal.Decimal `db:"wholesale_price"`
	StockQty        int64           `db:"stock_qty"`
	MinStock        int64           `db:"min_stock"`
	ImageURL        string          `db:"image_url"`
	Archived        bool            `db:"archived"`
	LastStockChange types.JSONText  `db:"last_stock_change"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (row productRow) toDomain() (domain.Product, error) {
	p := domain.Product{
		ID:             row.ID,
		Name:           row.Name,
		Description:    row.Description,
		Brand:          row.Brand,
		Category:       row.Category,
		PurchasePrice:  row.PurchasePrice,
		MRP:            row.MRP,
		RetailPrice:    row.RetailPrice,
		WholesalePrice: row.WholesalePrice,
		StockQty:       row.StockQty,
		MinStock:       row.MinStock,
		ImageURL:       row.ImageURL,
		Archived:       row.Archived,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if err := row.LastStockChange.Unmarshal(&p.LastStockChange); err != nil {
		return p, fmt.Errorf("decode last_stock_change: %w", err)
	}
	return p, nil
}

type orderRow struct {
	TenantID       string          `db:"tenant_id"`
	ID             string          `db:"id"`
	LocalID        string          `db:"local_id"`
	Mode           string          `db:"mode"`
	Items          types.JSONText  `db:"items"`
	Total          decimal.Decimal `db:"total"`
	PaymentStatus  string          `db:"payment_status"`
	AmountPaid     decimal.Decimal `db:"amount_paid"`
	BalanceDue     decimal.Decimal `db:"balance_due"`
	CustomerID     string          `db:"customer_id"`
	Customer       types.JSONText  `db:"customer"`
	Payments       types.JSONText  `db:"payments"`
	Status         string          `db:"status"`
	CreatedOffline bool            `db:"created_offline"`
	CreatedAt      time.Time       `db:"created_at"`
	SyncedAt       *time.Time      `db:"synced_at"`
	CancelledAt    *time.Time      `db:"cancelled_at"`
	CancelledBy    string          `db:"cancelled_by"`
	PreviousStatus string          `db:"previous_status"`
	UpdatedAt      time.Time       `db:"updated_at"`
}

func newOrderRow(tenant string, o *domain.Order) (orderRow, error) {
	row := orderRow{
		TenantID:       tenant,
		ID:             o.ID,
		LocalID:        o.LocalID,
		Mode:           string(o.Mode),
		Total:          o.Total,
		PaymentStatus:  string(o.PaymentStatus),
		AmountPaid:     o.AmountPaid,
		BalanceDue:     o.BalanceDue,
		Status:         string(o.Status),
		CreatedOffline: o.CreatedOffline,
		CreatedAt:      o.CreatedAt,
		SyncedAt:       o.SyncedAt,
		CancelledAt:    o.CancelledAt,
		CancelledBy:    o.CancelledBy,
		PreviousStatus: string(o.PreviousStatus),
		UpdatedAt:      o.UpdatedAt,
	}
	if o.Customer != nil {
		row.CustomerID = o.Customer.ID
	}
	var err error
	if row.Items, err = json.Marshal(o.Items); err != nil {
		return row, err
	}
	if row.Customer, err = json.Marshal(o.Customer); err != nil {
		return row, err
	}
	payments := o.Payments
	if payments == nil {
		payments = []domain.Payment{}
	}
	if row.Payments, err = json.Marshal(payments); err != nil {
		return row, err
	}
	return row, nil
}

func (row orderRow) toDomain() (domain.Order, error) {
	o := domain.Order{
		ID:             row.ID,
		LocalID:        row.LocalID,
		Mode:           domain.PriceMode(row.Mode),
		Total:          row.Total,
		PaymentStatus:  domain.PaymentStatus(row.PaymentStatus),
		AmountPaid:     row.AmountPaid,
		BalanceDue:     row.BalanceDue,
		Status:         domain.OrderStatus(row.Status),
		CreatedOffline: row.CreatedOffline,
		CreatedAt:      row.CreatedAt,
		SyncedAt:       row.SyncedAt,
		CancelledAt:    row.CancelledAt,
		CancelledBy:    row.CancelledBy,
		PreviousStatus: domain.OrderStatus(row.PreviousStatus),
		UpdatedAt:      row.UpdatedAt,
	}
	if err := row.Items.Unmarshal(&o.Items); err != nil {
		return o, fmt.Errorf("decode items: %w", err)
	}
	if err := row.Customer.Unmarshal(&o.Customer); err != nil {
		return o, fmt.Errorf("decode customer: %w", err)
	}
	if err := row.Payments.Unmarshal(&o.Payments); err != nil {
		return o, fmt.Errorf("decode payments: %w", err)
	}
	return o, nil
}

type customerRow struct {
	TenantID      string          `db:"tenant_id"`
	ID            string          `db:"id"`
	Name          string          `db:"name"`
	Phone         string          `db:"phone"`
	Email         string          `db:"email"`
	GST           string          `db:"gst"`
	Address       string          `db:"address"`
	TotalSpent    decimal.Decimal `db:"total_spent"`
	TotalPaid     decimal.Decimal `db:"total_paid"`
	TotalDue      decimal.Decimal `db:"total_due"`
	LastOrderAt   *time.Time      `db:"last_order_at"`
	LastPaymentAt *time.Time      `db:"last_payment_at"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

func (row customerRow) toDomain() domain.Customer {
	return domain.Customer{
		ID:            row.ID,
		Name:          row.Name,
		Phone:         row.Phone,
		Email:         row.Email,
		GST:           row.GST,
		Address:       row.Address,
		TotalSpent:    row.TotalSpent,
		TotalPaid:     row.TotalPaid,
		TotalDue:      row.TotalDue,
		LastOrderAt:   row.LastOrderAt,
		LastPaymentAt: row.LastPaymentAt,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

type accountRow struct {
	UserID         string     `db:"user_id"`
	Tier           string     `db:"tier"`
	Status         string     `db:"status"`
	TrialStartedAt *time.Time `db:"trial_started_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

// wrapErr maps driver errors onto the domain taxonomy.
func wrapErr(op, kind, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFoundError(kind, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.NewValidationError(kind, "already exists")
	}
	return domain.NewTransportError(op, err)
}

// ProductRepository implementation

const productColumns = `tenant_id, id, name, description, brand, category, purchase_price, mrp,
	retail_price, wholesale_price, stock_qty, min_stock, image_url, archived, last_stock_change,
	created_at, updated_at`

func (r *PostgresStore) CreateProduct(ctx context.Context, tenant string, p *domain.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	change, err := json.Marshal(p.LastStockChange)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now(), now())
		RETURNING created_at, updated_at`
	err = r.DB.QueryRowxContext(ctx, query,
		tenant, p.ID, p.Name, p.Description, p.Brand, p.Category, p.PurchasePrice, p.MRP,
		p.RetailPrice, p.WholesalePrice, p.StockQty, p.MinStock, p.ImageURL, p.Archived, types.JSONText(change),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return wrapErr("create product", "product", p.ID, err)
}

func (r *PostgresStore) GetProduct(ctx context.Context, tenant, id string) (*domain.Product, error) {
	var row productRow
	query := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1 AND id = $2 LIMIT 1`
	if err := r.DB.GetContext(ctx, &row, query, tenant, id); err != nil {
		return nil, wrapErr("get product", "product", id, err)
	}
	p, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresStore) UpdateProduct(ctx context.Context, tenant string, p *domain.Product) error {
	change, err := json.Marshal(p.LastStockChange)
	if err != nil {
		return err
	}
	query := `
		UPDATE products SET
			name = $3, description = $4, brand = $5, category = $6, purchase_price = $7, mrp = $8,
			retail_price = $9, wholesale_price = $10, stock_qty = $11, min_stock = $12, image_url = $13,
			archived = $14, last_stock_change = $15, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING created_at, updated_at`
	err = r.DB.QueryRowxContext(ctx, query,
		tenant, p.ID, p.Name, p.Description, p.Brand, p.Category, p.PurchasePrice, p.MRP,
		p.RetailPrice, p.WholesalePrice, p.StockQty, p.MinStock, p.ImageURL, p.Archived, types.JSONText(change),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return wrapErr("update product", "product", p.ID, err)
}

func (r *PostgresStore) DeleteProduct(ctx context.Context, tenant, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM products WHERE tenant_id = $1 AND id = $2`, tenant, id)
	if err != nil {
		return wrapErr("delete product", "product", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewNotFoundError("product", id)
	}
	return nil
}

func (r *PostgresStore) ListProducts(ctx context.Context, tenant string, f ProductFilter) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE tenant_id = $1`
	args := []interface{}{tenant}
	if !f.IncludeArchived {
		query += ` AND archived = FALSE`
	}
	if f.NameSubstring != "" {
		args = append(args, "%"+f.NameSubstring+"%")
		query += fmt.Sprintf(` AND name ILIKE $%d`, len(args))
	}
	query += ` ORDER BY name, id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	var rows []productRow
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapErr("list products", "product", "", err)
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *PostgresStore) CountProducts(ctx context.Context, tenant string) (int64, error) {
	var n int64
	err := r.DB.GetContext(ctx, &n, `SELECT count(*) FROM products WHERE tenant_id = $1`, tenant)
	return n, wrapErr("count products", "product", "", err)
}

// OrderRepository implementation

const orderColumns = `tenant_id, id, local_id, mode, items, total, payment_status, amount_paid,
	balance_due, customer_id, customer, payments, status, created_offline, created_at, synced_at,
	cancelled_at, cancelled_by, previous_status, updated_at`

func (r *PostgresStore) GetOrder(ctx context.Context, tenant, id string) (*domain.Order, error) {
	var row orderRow
	query := `SELECT ` + orderColumns + ` FROM orders WHERE tenant_id = $1 AND id = $2 LIMIT 1`
	if err := r.DB.GetContext(ctx, &row, query, tenant, id); err != nil {
		return nil, wrapErr("get order", "order", id, err)
	}
	o, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresStore) ListOrders(ctx context.Context, tenant string, f OrderFilter) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE tenant_id = $1`
	args := []interface{}{tenant}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if f.CustomerID != "" {
		args = append(args, f.CustomerID)
		query += fmt.Sprintf(` AND customer_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	var rows []orderRow
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapErr("list orders", "order", "", err)
	}
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		o, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// CustomerRepository implementation

const customerColumns = `tenant_id, id, name, phone, email, gst, address, total_spent, total_paid,
	total_due, last_order_at, last_payment_at, created_at, updated_at`

const insertCustomer = `
	INSERT INTO customers (tenant_id, id, name, phone, email, gst, address, total_spent, total_paid, total_due, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	RETURNING created_at, updated_at`

func (r *PostgresStore) CreateCustomer(ctx context.Context, tenant string, c *domain.Customer) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.DB.QueryRowxContext(ctx, insertCustomer,
		tenant, c.ID, c.Name, c.Phone, c.Email, c.GST, c.Address, c.TotalSpent, c.TotalPaid, c.TotalDue,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return wrapErr("create customer", "customer", c.ID, err)
}

func (r *PostgresStore) GetCustomer(ctx context.Context, tenant, id string) (*domain.Customer, error) {
	var row customerRow
	query := `SELECT ` + customerColumns + ` FROM customers WHERE tenant_id = $1 AND id = $2 LIMIT 1`
	if err := r.DB.GetContext(ctx, &row, query, tenant, id); err != nil {
		return nil, wrapErr("get customer", "customer", id, err)
	}
	c := row.toDomain()
	return &c, nil
}

func (r *PostgresStore) FindCustomerByPhone(ctx context.Context, tenant, phone string) (*domain.Customer, error) {
	var row customerRow
	query := `SELECT ` + customerColumns + ` FROM customers WHERE tenant_id = $1 AND phone = $2 LIMIT 1`
	if err := r.DB.GetContext(ctx, &row, query, tenant, phone); err != nil {
		return nil, wrapErr("find customer", "customer", phone, err)
	}
	c := row.toDomain()
	return &c, nil
}

func (r *PostgresStore) ListCustomers(ctx context.Context, tenant string, limit int) ([]domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE tenant_id = $1 ORDER BY name`
	args := []interface{}{tenant}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	var rows []customerRow
	if err := r.DB.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapErr("list customers", "customer", "", err)
	}
	out := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// AccountRepository implementation

func (r *PostgresStore) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	var row accountRow
	query := `SELECT user_id, tier, status, trial_started_at, updated_at FROM accounts WHERE user_id = $1`
	if err := r.DB.GetContext(ctx, &row, query, userID); err != nil {
		return nil, wrapErr("get account", "account", userID, err)
	}
	return &domain.Account{
		UserID:         row.UserID,
		Tier:           domain.Tier(row.Tier),
		Status:         domain.AccountStatus(row.Status),
		TrialStartedAt: row.TrialStartedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

func (r *PostgresStore) SaveAccount(ctx context.Context, a *domain.Account) error {
	query := `
		INSERT INTO accounts (user_id, tier, status, trial_started_at, updated_at)
		VALUES (:user_id, :tier, :status, :trial_started_at, now())
		ON CONFLICT (user_id) DO UPDATE SET
			tier = EXCLUDED.tier, status = EXCLUDED.status,
			trial_started_at = EXCLUDED.trial_started_at, updated_at = now()`
	row := accountRow{UserID: a.UserID, Tier: string(a.Tier), Status: string(a.Status), TrialStartedAt: a.TrialStartedAt}
	if _, err := r.DB.NamedExecContext(ctx, query, row); err != nil {
		return wrapErr("save account", "account", a.UserID, err)
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Batcher implementation

func (r *PostgresStore) NewBatch(tenant string) Batch {
	return &postgresBatch{staged: staged{tenant: tenant}, db: r.DB}
}

type postgresBatch struct {
	staged
	db *sqlx.DB
}

// Commit applies every staged write inside one transaction.
func (b *postgresBatch) Commit(ctx context.Context) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.NewTransportError("commit", err)
	}
	defer tx.Rollback()

	var now time.Time
	if err := tx.GetContext(ctx, &now, `SELECT now()`); err != nil {
		return domain.NewTransportError("commit", err)
	}

	// staged documents are stamped only once the transaction is committed
	var after []func()
	for _, o := range b.ops {
		fn, err := b.apply(ctx, tx, o, now)
		if err != nil {
			return err
		}
		if fn != nil {
			after = append(after, fn)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.NewTransportError("commit", err)
	}
	for _, fn := range after {
		fn()
	}
	return nil
}

func (b *postgresBatch) apply(ctx context.Context, tx *sqlx.Tx, o op, now time.Time) (func(), error) {
	switch o.kind {
	case opCreateOrder:
		order := *o.order
		if order.CreatedAt.IsZero() {
			order.CreatedAt = now
		}
		synced := now
		order.SyncedAt = &synced
		order.UpdatedAt = now
		row, err := newOrderRow(b.tenant, &order)
		if err != nil {
			return nil, err
		}
		query := `INSERT INTO orders (` + orderColumns + `) VALUES (
			:tenant_id, :id, :local_id, :mode, :items, :total, :payment_status, :amount_paid,
			:balance_due, :customer_id, :customer, :payments, :status, :created_offline, :created_at, :synced_at,
			:cancelled_at, :cancelled_by, :previous_status, :updated_at)`
		if _, err = tx.NamedExecContext(ctx, query, row); err != nil {
			return nil, wrapErr("create order", "order", o.id, err)
		}
		return func() {
			o.order.CreatedAt = order.CreatedAt
			o.order.SyncedAt = order.SyncedAt
			o.order.UpdatedAt = order.UpdatedAt
		}, nil

	case opUpdateOrder:
		order := *o.order
		order.UpdatedAt = now
		row, err := newOrderRow(b.tenant, &order)
		if err != nil {
			return nil, err
		}
		query := `UPDATE orders SET
			items = :items, total = :total, payment_status = :payment_status, amount_paid = :amount_paid,
			balance_due = :balance_due, customer_id = :customer_id, customer = :customer, payments = :payments,
			status = :status, cancelled_at = :cancelled_at, cancelled_by = :cancelled_by,
			previous_status = :previous_status, updated_at = :updated_at
			WHERE tenant_id = :tenant_id AND id = :id`
		res, err := tx.NamedExecContext(ctx, query, row)
		if err != nil {
			return nil, wrapErr("update order", "order", o.id, err)
		}
		if err := requireRow(res, "order", o.id); err != nil {
			return nil, err
		}
		return func() { o.order.UpdatedAt = now }, nil

	case opIncrementStock, opSetStock:
		change := o.change
		change.Timestamp = now
		payload, err := json.Marshal(change)
		if err != nil {
			return nil, err
		}
		query := `UPDATE products SET stock_qty = stock_qty + $1, last_stock_change = $2, updated_at = $3
			WHERE tenant_id = $4 AND id = $5`
		if o.kind == opSetStock {
			query = `UPDATE products SET stock_qty = $1, last_stock_change = $2, updated_at = $3
			WHERE tenant_id = $4 AND id = $5`
		}
		res, err := tx.ExecContext(ctx, query, o.qty, types.JSONText(payload), now, b.tenant, o.id)
		if err != nil {
			return nil, wrapErr("update stock", "product", o.id, err)
		}
		return nil, requireRow(res, "product", o.id)

	case opCreateCustomer:
		c := o.customer
		var created, updated time.Time
		err := tx.QueryRowxContext(ctx, insertCustomer,
			b.tenant, c.ID, c.Name, c.Phone, c.Email, c.GST, c.Address, c.TotalSpent, c.TotalPaid, c.TotalDue,
		).Scan(&created, &updated)
		if err != nil {
			return nil, wrapErr("create customer", "customer", o.id, err)
		}
		return func() {
			c.CreatedAt = created
			c.UpdatedAt = updated
		}, nil

	case opIncrementCustomer:
		d := o.ledger
		query := `UPDATE customers SET
			total_spent = total_spent + $1, total_paid = total_paid + $2, total_due = total_due + $3,
			last_order_at = COALESCE($4, last_order_at), last_payment_at = COALESCE($5, last_payment_at),
			updated_at = $6
			WHERE tenant_id = $7 AND id = $8`
		res, err := tx.ExecContext(ctx, query, d.Spent, d.Paid, d.Due, d.OrderAt, d.PaymentAt, now, b.tenant, o.id)
		if err != nil {
			return nil, wrapErr("update customer", "customer", o.id, err)
		}
		return nil, requireRow(res, "customer", o.id)
	}
	return nil, nil
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewTransportError("rows affected", err)
	}
	if n == 0 {
		return domain.NewNotFoundError(kind, id)
	}
	return nil
}
