package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"fastpartybox/internal/domain"
	"fastpartybox/internal/offline"
)

// Customer handlers

// @Summary Create customer
// @Tags customers
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param input body domain.Customer true "Customer"
// @Success 201 {object} domain.Customer
// @Failure 400 {object} map[string]string
// @Router /customers [post]
func (s *Server) createCustomer(c *gin.Context) {
	var req domain.Customer
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cust, err := s.Customers.Create(c.Request.Context(), tenantOf(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cust)
}

// @Summary List customers
// @Tags customers
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param limit query int false "Limit"
// @Success 200 {array} domain.Customer
// @Router /customers [get]
func (s *Server) listCustomers(c *gin.Context) {
	list, err := s.Customers.List(c.Request.Context(), tenantOf(c), queryInt(c, "limit"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary Get customer by id
// @Tags customers
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path string true "Customer ID"
// @Success 200 {object} domain.Customer
// @Failure 404 {object} map[string]string
// @Router /customers/{id} [get]
func (s *Server) getCustomer(c *gin.Context) {
	cust, err := s.Customers.Get(c.Request.Context(), tenantOf(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cust)
}

// Sync handlers

// @Summary Sync status
// @Tags sync
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Success 200 {object} offline.StatusReport
// @Router /sync [get]
func (s *Server) syncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Coordinator.Status(c.Request.Context(), tenantOf(c)))
}

// @Summary Drain pending orders now
// @Tags sync
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Success 200 {object} offline.DrainResult
// @Failure 503 {object} map[string]string
// @Router /sync [post]
func (s *Server) syncDrain(c *gin.Context) {
	res, err := s.Coordinator.Drain(c.Request.Context(), tenantOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Dashboard summary
// @Tags dashboard
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Success 200 {object} service.Summary
// @Failure 503 {object} map[string]string
// @Router /dashboard [get]
func (s *Server) dashboard(c *gin.Context) {
	sum, err := s.Dashboard.Summary(c.Request.Context(), tenantOf(c), time.Now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// Subscription handlers

type subscriptionResp struct {
	Account *domain.Account   `json:"account"`
	Limits  domain.TierLimits `json:"limits"`
}

// @Summary Current subscription
// @Tags subscription
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Success 200 {object} subscriptionResp
// @Router /subscription [get]
func (s *Server) getSubscription(c *gin.Context) {
	ctx, uid := c.Request.Context(), tenantOf(c)
	a, err := s.Subscriptions.Account(ctx, uid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subscriptionResp{Account: a, Limits: domain.LimitsFor(a.Tier)})
}

type tierReq struct {
	Tier domain.Tier `json:"tier"`
}

// @Summary Change plan
// @Tags subscription
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param input body tierReq true "FREE or PAID"
// @Success 200 {object} subscriptionResp
// @Failure 400 {object} map[string]string
// @Router /subscription [put]
func (s *Server) setSubscription(c *gin.Context) {
	var req tierReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	a, err := s.Subscriptions.SetTier(c.Request.Context(), tenantOf(c), req.Tier)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, subscriptionResp{Account: a, Limits: domain.LimitsFor(a.Tier)})
}

// Session handlers

type sessionResp struct {
	Account *domain.Account      `json:"account"`
	Sync    offline.StatusReport `json:"sync"`
}

// @Summary Sign in
// @Description Starts a trial on first sign-in and reports the pending queue.
// @Tags session
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Success 200 {object} sessionResp
// @Router /session [post]
func (s *Server) signIn(c *gin.Context) {
	ctx, uid := c.Request.Context(), tenantOf(c)
	a, err := s.Subscriptions.StartTrial(ctx, uid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResp{Account: a, Sync: s.Coordinator.Status(ctx, uid)})
}

// @Summary Sign out
// @Description Releases the in-memory queue and cart; both stay in local storage.
// @Tags session
// @Param X-User-ID header string true "User ID"
// @Success 204
// @Router /session [delete]
func (s *Server) signOut(c *gin.Context) {
	uid := tenantOf(c)
	if s.Session != nil {
		s.Session.SignOut(uid)
	}
	if s.Carts != nil {
		s.Carts.Forget(uid)
	}
	c.Status(http.StatusNoContent)
}
