package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"fastpartybox/internal/auth"
	"fastpartybox/internal/domain"
	"fastpartybox/internal/offline"
	"fastpartybox/internal/ratelimit"
	"fastpartybox/internal/repository"
	"fastpartybox/internal/service"
)

// Deps набор зависимостей HTTP-слоя
type Deps struct {
	Products      *service.ProductService
	Orders        *service.OrderService
	Carts         *service.CartService
	Customers     *service.CustomerService
	Dashboard     *service.DashboardService
	Subscriptions *service.SubscriptionService
	Coordinator   *offline.Coordinator
	Monitor       *offline.Monitor
	Session       *auth.Session
	Limiter       *ratelimit.Limiter
	Log           *zap.Logger
}

type Server struct {
	engine *gin.Engine
	Deps
}

func NewServer(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := gin.New()
	r.Use(requestID(), requestLogger(d.Log), recovery(d.Log))
	s := &Server{engine: r, Deps: d}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	// Swagger UI
	s.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	s.engine.GET("/healthz", s.health)

	v1 := s.engine.Group("/api/v1")
	v1.Use(authRequired(s.Session), rateLimit(s.Limiter))
	{
		products := v1.Group("/products")
		products.POST("", s.createProduct)
		products.GET(":id", s.getProduct)
		products.PUT(":id", s.updateProduct)
		products.DELETE(":id", s.deleteProduct)
		products.POST(":id/archive", s.archiveProduct)
		products.POST(":id/stock", s.adjustStock)
		products.GET("", s.listProducts)

		cart := v1.Group("/cart")
		cart.GET("", s.getCart)
		cart.POST("/items", s.addCartItem)
		cart.PUT("/items/:id", s.setCartQuantity)
		cart.DELETE("/items/:id", s.removeCartItem)
		cart.PUT("/mode", s.setCartMode)
		cart.DELETE("", s.clearCart)
		cart.POST("/checkout", s.checkoutCart)

		orders := v1.Group("/orders")
		orders.POST("", s.createOrder)
		orders.GET("", s.listOrders)
		orders.GET(":id", s.getOrder)
		orders.POST(":id/cancel", s.cancelOrder)
		orders.POST(":id/payments", s.recordPayment)

		customers := v1.Group("/customers")
		customers.POST("", s.createCustomer)
		customers.GET("", s.listCustomers)
		customers.GET(":id", s.getCustomer)

		v1.GET("/sync", s.syncStatus)
		v1.POST("/sync", s.syncDrain)
		v1.GET("/dashboard", s.dashboard)
		v1.GET("/subscription", s.getSubscription)
		v1.PUT("/subscription", s.setSubscription)
		v1.POST("/session", s.signIn)
		v1.DELETE("/session", s.signOut)
	}
}

// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]any
// @Router /healthz [get]
func (s *Server) health(c *gin.Context) {
	online := true
	if s.Monitor != nil {
		online = s.Monitor.Online()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "online": online})
}

// Product handlers
type productReq struct {
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Brand          string          `json:"brand"`
	Category       string          `json:"category"`
	PurchasePrice  decimal.Decimal `json:"purchase_price"`
	MRP            decimal.Decimal `json:"mrp"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	StockQty       int64           `json:"stock_qty"`
	MinStock       int64           `json:"min_stock"`
	ImageURL       string          `json:"image_url"`
}

func (r productReq) product(id string) domain.Product {
	return domain.Product{
		ID:             id,
		Name:           r.Name,
		Description:    r.Description,
		Brand:          r.Brand,
		Category:       r.Category,
		PurchasePrice:  r.PurchasePrice,
		MRP:            r.MRP,
		RetailPrice:    r.RetailPrice,
		WholesalePrice: r.WholesalePrice,
		StockQty:       r.StockQty,
		MinStock:       r.MinStock,
		ImageURL:       r.ImageURL,
	}
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param input body productReq true "Product"
// @Success 201 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /products [post]
func (s *Server) createProduct(c *gin.Context) {
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.Products.Create(c.Request.Context(), tenantOf(c), req.product(""))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path string true "Product ID"
// @Success 200 {object} domain.Product
// @Failure 404 {object} map[string]string
// @Router /products/{id} [get]
func (s *Server) getProduct(c *gin.Context) {
	p, err := s.Products.GetByID(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path string true "Product ID"
// @Param input body productReq true "Update"
// @Success 200 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products/{id} [put]
func (s *Server) updateProduct(c *gin.Context) {
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.Products.Update(c.Request.Context(), tenantOf(c), req.product(c.Param("id")))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Delete product
// @Tags products
// @Param X-User-ID header string true "User ID"
// @Param id path string true "Product ID"
// @Success 204
// @Failure 404 {object} map[string]string
// @Router /products/{id} [delete]
func (s *Server) deleteProduct(c *gin.Context) {
	if err := s.Products.Delete(c.Request.Context(), tenantOf(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type archiveReq struct {
	Archived *bool `json:"archived"`
}

// @Summary Archive or restore product
// @Description Archived products stay in history but cannot be added to a cart.
// @Tags products
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path string true "Product ID"
// @Param input body archiveReq false "Archived flag, defaults to true"
// @Success 200 {object} domain.Product
// @Failure 404 {object} map[string]string
// @Router /products/{id}/archive [post]
func (s *Server) archiveProduct(c *gin.Context) {
	var req archiveReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	archived := true
	if req.Archived != nil {
		archived = *req.Archived
	}
	p, err := s.Products.Archive(c.Request.Context(), tenantOf(c), c.Param("id"), archived)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type adjustStockReq struct {
	StockQty int64 `json:"stock_qty"`
}

// @Summary Set stock quantity
// @Tags products
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path string true "Product ID"
// @Param input body adjustStockReq true "New stock"
// @Success 200 {object} domain.Product
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /products/{id}/stock [post]
func (s *Server) adjustStock(c *gin.Context) {
	var req adjustStockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := s.Products.AdjustStock(c.Request.Context(), tenantOf(c), c.Param("id"), req.StockQty)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary List products
// @Tags products
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param q query string false "Name contains"
// @Param include_archived query bool false "Include archived"
// @Param limit query int false "Limit"
// @Success 200 {array} domain.Product
// @Router /products [get]
func (s *Server) listProducts(c *gin.Context) {
	var f repository.ProductFilter
	if q := c.Query("q"); q != "" {
		f.NameSubstring = q
	}
	if v := c.Query("include_archived"); v != "" {
		if x, err := strconv.ParseBool(v); err == nil {
			f.IncludeArchived = x
		}
	}
	f.Limit = queryInt(c, "limit")
	list, err := s.Products.List(c.Request.Context(), tenantOf(c), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Order handlers

// @Summary Create order
// @Description Commits the sale when the store is reachable, otherwise queues it for sync.
// @Tags orders
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param input body service.CheckoutInput true "Order"
// @Success 201 {object} service.CheckoutResult
// @Success 202 {object} service.CheckoutResult
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 507 {object} map[string]string
// @Router /orders [post]
func (s *Server) createOrder(c *gin.Context) {
	var req service.CheckoutInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := s.Orders.Checkout(c.Request.Context(), tenantOf(c), req)
	s.writeCheckout(c, res, err)
}

// writeCheckout answers 201 for a committed sale and 202 for a queued one.
func (s *Server) writeCheckout(c *gin.Context, res *service.CheckoutResult, err error) {
	if err != nil {
		if res != nil && errors.Is(err, domain.ErrQuotaExceeded) {
			c.JSON(http.StatusInsufficientStorage, gin.H{"error": err.Error(), "order": res.Order})
			return
		}
		s.fail(c, err)
		return
	}
	if res.Queued {
		c.JSON(http.StatusAccepted, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// @Summary List orders
// @Description Pending local orders come first, newest first.
// @Tags orders
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param status query string false "Status filter (pending, cancelled)"
// @Param customer_id query string false "Customer ID"
// @Param limit query int false "Limit"
// @Success 200 {object} service.OrderList
// @Router /orders [get]
func (s *Server) listOrders(c *gin.Context) {
	f := repository.OrderFilter{
		Status:     domain.OrderStatus(c.Query("status")),
		CustomerID: c.Query("customer_id"),
		Limit:      queryInt(c, "limit"),
	}
	list, err := s.Orders.ListOrders(c.Request.Context(), tenantOf(c), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get order by id
// @Tags orders
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path string true "Order ID or local ID"
// @Success 200 {object} domain.Order
// @Failure 404 {object} map[string]string
// @Router /orders/{id} [get]
func (s *Server) getOrder(c *gin.Context) {
	o, err := s.Orders.GetOrder(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type cancelReq struct {
	CancelledBy string `json:"cancelled_by"`
}

// @Summary Cancel order
// @Description Restores stock for every line and reverses the customer's totals.
// @Tags orders
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path string true "Order ID"
// @Param input body cancelReq false "Who cancels, defaults to the caller"
// @Success 200 {object} domain.Order
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{id}/cancel [post]
func (s *Server) cancelOrder(c *gin.Context) {
	var req cancelReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	by := req.CancelledBy
	if by == "" {
		by = tenantOf(c)
	}
	o, err := s.Orders.CancelOrder(c.Request.Context(), tenantOf(c), c.Param("id"), by)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

type paymentReq struct {
	Amount decimal.Decimal `json:"amount"`
	Notes  string          `json:"notes"`
}

// @Summary Record payment
// @Tags orders
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path string true "Order ID"
// @Param input body paymentReq true "Payment"
// @Success 200 {object} domain.Order
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /orders/{id}/payments [post]
func (s *Server) recordPayment(c *gin.Context) {
	var req paymentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	o, err := s.Customers.RecordPayment(c.Request.Context(), tenantOf(c), c.Param("id"), req.Amount, req.Notes)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func queryInt(c *gin.Context, key string) int {
	v := c.Query(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (s *Server) fail(c *gin.Context, err error) {
	status := mapErrorToStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLimitReached):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusInsufficientStorage
	case errors.Is(err, domain.ErrTransport):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
