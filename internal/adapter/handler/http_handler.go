package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	retryAfterSeconds    = "1"
)

type HTTPHandler struct {
	catalog  *service.CatalogService
	cart     *service.CartService
	checkout *service.CheckoutService
	query    *service.QueryService
	logger   *zap.Logger
}

func NewHTTPHandler(
	catalog *service.CatalogService,
	cart *service.CartService,
	checkout *service.CheckoutService,
	query *service.QueryService,
	logger *zap.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		catalog:  catalog,
		cart:     cart,
		checkout: checkout,
		query:    query,
		logger:   logger,
	}
}

// Router builds the gin engine with every storefront route registered.
func (h *HTTPHandler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger))

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	{
		api.GET("/products", h.ListProducts)
		api.GET("/products/:id", h.GetProduct)
		api.GET("/products/:id/availability", h.Availability)
	}

	admin := api.Group("")
	admin.Use(RequireAdmin())
	{
		admin.POST("/products", h.CreateProduct)
		admin.PUT("/products/:id", h.UpdateProduct)
		admin.DELETE("/products/:id", h.DeleteProduct)
		admin.PUT("/products/:id/restock", h.Restock)
		admin.GET("/ledger", h.Ledger)
	}

	user := api.Group("")
	user.Use(RequireUser())
	{
		user.GET("/cart", h.GetCart)
		user.POST("/cart", h.AddToCart)
		user.PUT("/cart/:id", h.SetQuantity)
		user.DELETE("/cart/:id", h.RemoveLine)
		user.POST("/orders", h.Checkout)
		user.GET("/orders", h.ListOrders)
		user.GET("/orders/:id", h.GetOrder)
	}

	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) ListProducts(c *gin.Context) {
	products, err := h.catalog.ListProducts(c.Request.Context(), c.Query("category"), c.Query("size"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, toProductResponse(p))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	product, err := h.catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(*product))
}

func (h *HTTPHandler) Availability(c *gin.Context) {
	productID := c.Param("id")
	available, err := h.catalog.Availability(c.Request.Context(), productID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": productID, "available": available})
}

func (h *HTTPHandler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	product, err := h.catalog.CreateProduct(c.Request.Context(), service.NewProduct{
		Name:     req.Name,
		Barcode:  req.Barcode,
		Color:    req.Color,
		Size:     req.Size,
		Category: req.Category,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProductResponse(*product))
}

func (h *HTTPHandler) UpdateProduct(c *gin.Context) {
	var req UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	product, err := h.catalog.UpdateProduct(c.Request.Context(), c.Param("id"), service.ProductUpdate{
		Name:     req.Name,
		Barcode:  req.Barcode,
		Color:    req.Color,
		Size:     req.Size,
		Category: req.Category,
		Price:    req.Price,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toProductResponse(*product))
}

func (h *HTTPHandler) DeleteProduct(c *gin.Context) {
	if err := h.catalog.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) Restock(c *gin.Context) {
	var req RestockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	productID := c.Param("id")
	quantity, err := h.catalog.Restock(c.Request.Context(), productID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": productID, "available": quantity})
}

func (h *HTTPHandler) Ledger(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	ledger, err := h.catalog.Ledger(c.Request.Context(), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLedgerResponse(*ledger))
}

func (h *HTTPHandler) GetCart(c *gin.Context) {
	cart, err := h.query.UserCart(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *HTTPHandler) AddToCart(c *gin.Context) {
	var req AddToCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	cart, err := h.cart.AddOrMerge(c.Request.Context(), userID(c), req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *HTTPHandler) SetQuantity(c *gin.Context) {
	var req SetQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	lineID := c.Param("id")
	if !h.ownsLine(c, lineID) {
		return
	}

	cart, err := h.cart.SetQuantity(c.Request.Context(), lineID, *req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCartResponse(cart))
}

func (h *HTTPHandler) RemoveLine(c *gin.Context) {
	lineID := c.Param("id")
	if !h.ownsLine(c, lineID) {
		return
	}

	if err := h.cart.Remove(c.Request.Context(), lineID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) Checkout(c *gin.Context) {
	result, err := h.checkout.Checkout(c.Request.Context(), userID(c), c.GetHeader(HeaderIdempotencyKey))
	if err != nil {
		h.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, toOrderResponse(result.Order))
}

func (h *HTTPHandler) ListOrders(c *gin.Context) {
	orders, err := h.query.UserOrders(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrderResponse(o))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) GetOrder(c *gin.Context) {
	order, err := h.query.Order(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if order.UserID != userID(c) {
		h.writeError(c, domain.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(*order))
}

// ownsLine writes a 404 unless the line exists and belongs to the caller.
func (h *HTTPHandler) ownsLine(c *gin.Context, lineID string) bool {
	line, err := h.cart.Line(c.Request.Context(), lineID)
	if err != nil {
		h.writeError(c, err)
		return false
	}
	if line.UserID != userID(c) {
		h.writeError(c, domain.ErrNotFound)
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	_ = c.Error(err)

	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		resp := ErrorResponse{Error: "insufficient stock"}
		if available, ok := domain.AvailableStock(err); ok {
			resp.Available = &available
		}
		c.JSON(http.StatusConflict, resp)
	case errors.Is(err, domain.ErrDuplicateBarcode), errors.Is(err, domain.ErrProductInUse):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrTransient):
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "temporarily unavailable, retry"})
	default:
		h.logger.Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
