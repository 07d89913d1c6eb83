package api

import (
	"net/http"
	"strings"

	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) dashboard(c *gin.Context) {
	stats, err := h.services.Dashboard.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) listStores(c *gin.Context) {
	res := h.services.Stores.Search(c.Request.Context(), c.Query("search"), refreshParam(c))
	writePage(h, c, res)
}

func (h *Handler) createStore(c *gin.Context) {
	var in models.StoreInput
	if !bindJSON(c, &in) {
		return
	}
	created, err := h.services.Stores.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateStore(c *gin.Context) {
	var patch models.StorePatch
	if !bindJSON(c, &patch) {
		return
	}
	updated, err := h.services.Stores.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) deleteStore(c *gin.Context) {
	if err := h.services.Stores.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listMembers(c *gin.Context) {
	storeID := c.DefaultQuery("store", service.FilterAll)
	res := h.services.Members.Search(c.Request.Context(), c.Query("search"), storeID, refreshParam(c))
	writePage(h, c, res)
}

func (h *Handler) createMember(c *gin.Context) {
	var in models.MemberInput
	if !bindJSON(c, &in) {
		return
	}
	created, err := h.services.Members.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) updateMember(c *gin.Context) {
	var patch models.MemberPatch
	if !bindJSON(c, &patch) {
		return
	}
	updated, err := h.services.Members.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) deleteMember(c *gin.Context) {
	if err := h.services.Members.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listOrders(c *gin.Context) {
	status := strings.ToLower(strings.TrimSpace(c.DefaultQuery("status", service.FilterAll)))
	if status == "" {
		status = service.FilterAll
	}
	if status != service.FilterAll {
		if _, err := models.ParseOrderStatus(status); err != nil {
			h.fail(c, err)
			return
		}
	}
	res := h.services.Orders.Search(c.Request.Context(), c.Query("search"), status, refreshParam(c))
	writePage(h, c, res)
}

func (h *Handler) approveOrder(c *gin.Context) {
	order, err := h.services.Orders.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) rejectOrder(c *gin.Context) {
	order, err := h.services.Orders.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// bindJSON decodes the body into dst and answers 400 when it cannot.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}
