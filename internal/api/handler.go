package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront/internal/auth"
	"storefront/internal/cart"
	"storefront/internal/models"
	"storefront/internal/mutation"
	"storefront/internal/paginate"
	"storefront/internal/querycache"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	sessionCookie = "session"
	sessionKey    = "session"
	loginPath     = "/login"
)

// Services groups the entity services the console serves.
type Services struct {
	Stores    *service.StoreService
	Members   *service.MemberService
	Orders    *service.OrderService
	Products  *service.ProductService
	Dashboard *service.DashboardService
}

// Handler contains HTTP handlers
type Handler struct {
	auth     *auth.Manager
	services Services
	carts    *cart.Service
	pageSize int
	checks   []readinessCheck
	logger   *zap.Logger
}

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// NewHandler creates a new HTTP handler
func NewHandler(authManager *auth.Manager, services Services, carts *cart.Service, pageSize int) *Handler {
	if pageSize < 1 {
		pageSize = paginate.DefaultPageSize
	}
	return &Handler{
		auth:     authManager,
		services: services,
		carts:    carts,
		pageSize: pageSize,
		logger:   util.NamedLogger("api"),
	}
}

// AddReadinessCheck registers a dependency that must answer before /ready
// reports ready.
func (h *Handler) AddReadinessCheck(name string, check func(ctx context.Context) error) {
	h.checks = append(h.checks, readinessCheck{name: name, check: check})
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET(loginPath, h.loginPage)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/login", h.login)
		v1.POST("/auth/logout", h.logout)
		v1.GET("/auth/session", h.currentSession)

		v1.PUT("/profile/password", h.gate(""), h.updatePassword)

		admin := v1.Group("/admin", h.gate(models.RoleAdmin))
		{
			admin.GET("/dashboard", h.dashboard)

			admin.GET("/stores", h.listStores)
			admin.POST("/stores", h.createStore)
			admin.PATCH("/stores/:id", h.updateStore)
			admin.DELETE("/stores/:id", h.deleteStore)

			admin.GET("/members", h.listMembers)
			admin.POST("/members", h.createMember)
			admin.PATCH("/members/:id", h.updateMember)
			admin.DELETE("/members/:id", h.deleteMember)

			admin.GET("/orders", h.listOrders)
			admin.POST("/orders/:id/approve", h.approveOrder)
			admin.POST("/orders/:id/reject", h.rejectOrder)
		}

		shop := v1.Group("/store", h.gate(models.RoleStoreMember))
		{
			shop.GET("/products", h.listProducts)
			shop.GET("/products/:id", h.getProduct)
			shop.GET("/categories", h.listCategories)

			shop.GET("/cart", h.viewCart)
			shop.POST("/cart/items", h.addCartItem)
			shop.PATCH("/cart/items/:id", h.updateCartItem)
			shop.DELETE("/cart/items/:id", h.removeCartItem)
			shop.DELETE("/cart", h.clearCart)
			shop.POST("/checkout", h.checkout)

			shop.GET("/orders", h.orderHistory)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for _, rc := range h.checks {
		if err := rc.check(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", rc.name), zap.Error(err))
			failed[rc.name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) loginPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Sign in with POST /api/v1/auth/login",
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// login handles credential checks and issues a session token
func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	if !h.auth.Login(req.Email, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token, err := h.auth.IssueToken()
	if err != nil {
		h.logger.Error("Failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
		return
	}
	session, _ := h.auth.Current()

	c.SetCookie(sessionCookie, token, 0, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"session": session,
	})
}

func (h *Handler) logout(c *gin.Context) {
	h.auth.Logout()
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

func (h *Handler) currentSession(c *gin.Context) {
	session, ok := h.auth.Current()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": auth.ErrNoSession.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

type passwordRequest struct {
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (h *Handler) updatePassword(c *gin.Context) {
	var req passwordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.auth.UpdatePassword(req.NewPassword, req.ConfirmPassword); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password updated"})
}

// gate lets a request through only with a token for the active session and,
// when role is set, only for that role. Everything else is sent to the login page.
func (h *Handler) gate(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := h.auth.Authorize(bearerToken(c), role)
		if err != nil {
			h.logger.Debug("Access denied",
				zap.String("path", c.Request.URL.Path),
				zap.String("role", string(role)),
				zap.Error(err))
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}
		c.Set(sessionKey, session)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	token, _ := c.Cookie(sessionCookie)
	return token
}

func sessionFrom(c *gin.Context) models.Session {
	session, _ := c.MustGet(sessionKey).(models.Session)
	return session
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, cart.ErrEmptyCart),
		errors.Is(err, cart.ErrOutOfStock):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrNoSession):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, mutation.ErrPending),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, cart.ErrDuplicateCheckout):
		return http.StatusConflict
	case errors.Is(err, store.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func pageParam(c *gin.Context) int {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		return 1
	}
	return page
}

func refreshParam(c *gin.Context) bool {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	return refresh
}

// pageResponse is one page of a cached collection.
type pageResponse[T any] struct {
	paginate.Page[T]
	Pages   []int  `json:"pages"`
	IsEmpty bool   `json:"empty"`
	Stale   bool   `json:"stale"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// writePage renders a page of res. Data kept from an earlier fetch is still
// served when the latest fetch failed; the failure travels in the error field.
func writePage[T any](h *Handler, c *gin.Context, res querycache.Result[[]T]) {
	if !res.HasData && res.Err != nil {
		h.fail(c, res.Err)
		return
	}
	page := paginate.Paginate(res.Data, h.pageSize, pageParam(c))
	resp := pageResponse[T]{
		Page:    page,
		Pages:   paginate.Window(page.CurrentPage, page.TotalPages, paginate.MaxWindow),
		IsEmpty: page.Empty(),
		Stale:   res.Stale,
		Loading: res.IsLoading,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
