package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
)

type putPositionRequest struct {
	Lat *float64 `json:"lat" binding:"required,latitude"`
	Lon *float64 `json:"lon" binding:"required,longitude"`
}

// PutPosition handles PUT /api/position, the device location fix used for
// distances.
func (h *Handler) PutPosition(c *gin.Context) {
	if h.position == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "location tracking is not enabled"})
		return
	}

	var req putPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.position.Push(orb.Point{*req.Lon, *req.Lat}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
