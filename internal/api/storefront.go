package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listProducts(c *gin.Context) {
	writePage(h, c, h.services.Products.List(c.Request.Context(), c.Query("category")))
}

func (h *Handler) getProduct(c *gin.Context) {
	product, found, err := h.services.Products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"notFound": true})
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.services.Products.Categories(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) viewCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.carts.View(c.Request.Context(), sessionFrom(c).UserID))
}

type cartItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req cartItemRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	ctx := c.Request.Context()
	product, found, err := h.services.Products.Get(ctx, req.ProductID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"notFound": true})
		return
	}

	summary, err := h.carts.Add(ctx, sessionFrom(c).UserID, product, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req quantityRequest
	if !bindJSON(c, &req) {
		return
	}
	summary, err := h.carts.Update(c.Request.Context(), sessionFrom(c).UserID, c.Param("id"), req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	c.JSON(http.StatusOK, h.carts.Remove(c.Request.Context(), sessionFrom(c).UserID, c.Param("id")))
}

func (h *Handler) clearCart(c *gin.Context) {
	c.JSON(http.StatusOK, h.carts.Clear(c.Request.Context(), sessionFrom(c).UserID))
}

func (h *Handler) checkout(c *gin.Context) {
	order, err := h.carts.Checkout(c.Request.Context(), sessionFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) orderHistory(c *gin.Context) {
	writePage(h, c, h.services.Orders.History(c.Request.Context(), sessionFrom(c).UserID))
}
