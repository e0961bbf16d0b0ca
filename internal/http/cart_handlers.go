package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fastpartybox/internal/domain"
)

// @Summary Get cart
// @Tags cart
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Success 200 {object} domain.Cart
// @Router /cart [get]
func (s *Server) getCart(c *gin.Context) {
	cart, err := s.Carts.Get(c.Request.Context(), tenantOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

type cartItemReq struct {
	ProductID string `json:"product_id"`
}

// @Summary Add product to cart
// @Tags cart
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param input body cartItemReq true "Product"
// @Success 200 {object} domain.Cart
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 507 {object} map[string]string
// @Router /cart/items [post]
func (s *Server) addCartItem(c *gin.Context) {
	var req cartItemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cart, err := s.Carts.AddItem(c.Request.Context(), tenantOf(c), req.ProductID)
	s.writeCart(c, cart, err)
}

type cartQtyReq struct {
	Quantity int64 `json:"quantity"`
}

// @Summary Set cart item quantity
// @Description A quantity of zero removes the line.
// @Tags cart
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path string true "Product ID"
// @Param input body cartQtyReq true "Quantity"
// @Success 200 {object} domain.Cart
// @Failure 400 {object} map[string]string
// @Router /cart/items/{id} [put]
func (s *Server) setCartQuantity(c *gin.Context) {
	var req cartQtyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cart, err := s.Carts.SetQuantity(c.Request.Context(), tenantOf(c), c.Param("id"), req.Quantity)
	s.writeCart(c, cart, err)
}

// @Summary Remove cart item
// @Tags cart
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path string true "Product ID"
// @Success 200 {object} domain.Cart
// @Failure 404 {object} map[string]string
// @Router /cart/items/{id} [delete]
func (s *Server) removeCartItem(c *gin.Context) {
	cart, err := s.Carts.RemoveItem(c.Request.Context(), tenantOf(c), c.Param("id"))
	s.writeCart(c, cart, err)
}

type cartModeReq struct {
	Mode domain.PriceMode `json:"mode"`
}

// @Summary Switch price mode
// @Tags cart
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param input body cartModeReq true "retail or wholesale"
// @Success 200 {object} domain.Cart
// @Failure 400 {object} map[string]string
// @Router /cart/mode [put]
func (s *Server) setCartMode(c *gin.Context) {
	var req cartModeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cart, err := s.Carts.SetMode(c.Request.Context(), tenantOf(c), req.Mode)
	s.writeCart(c, cart, err)
}

// @Summary Clear cart
// @Tags cart
// @Param X-User-ID header string true "User ID"
// @Success 204
// @Router /cart [delete]
func (s *Server) clearCart(c *gin.Context) {
	if err := s.Carts.Clear(c.Request.Context(), tenantOf(c)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type checkoutCartReq struct {
	Customer   *domain.CustomerRef `json:"customer"`
	AmountPaid *decimal.Decimal    `json:"amount_paid"`
}

// @Summary Check out the cart
// @Tags cart
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param input body checkoutCartReq false "Customer and payment"
// @Success 201 {object} service.CheckoutResult
// @Success 202 {object} service.CheckoutResult
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /cart/checkout [post]
func (s *Server) checkoutCart(c *gin.Context) {
	var req checkoutCartReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	res, err := s.Orders.CheckoutCart(c.Request.Context(), tenantOf(c), req.Customer, req.AmountPaid)
	s.writeCheckout(c, res, err)
}

// writeCart still returns the edited cart when only persisting it failed.
func (s *Server) writeCart(c *gin.Context, cart domain.Cart, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			c.JSON(http.StatusInsufficientStorage, gin.H{"error": err.Error(), "cart": cart})
			return
		}
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}
