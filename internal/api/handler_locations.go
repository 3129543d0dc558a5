package api

import (
	"errors"
	"net/http"
	"slices"
	"sort"

	"github.com/gin-gonic/gin"

	"facility-finder-backend/internal/model"
	"facility-finder-backend/internal/scheduler"
)

// GetLocations handles GET /api/locations. Optional query parameters:
// sort=distance orders by distance from the last reported position, and
// category filters by category tag.
func (h *Handler) GetLocations(c *gin.Context) {
	list, err := h.finder.GetAllLocations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "locations": list})
		return
	}

	if category := c.Query("category"); category != "" {
		list = slices.DeleteFunc(list, func(e model.Entity) bool {
			return !slices.Contains(e.Categories, category)
		})
	}

	switch c.Query("sort") {
	case "", "catalog":
	case "distance":
		sortByDistance(list)
	case "busyness":
		sort.SliceStable(list, func(i, j int) bool { return list[i].Busyness < list[j].Busyness })
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "sort must be one of catalog, distance, busyness"})
		return
	}

	c.JSON(http.StatusOK, list)
}

// sortByDistance orders nearest first; entities without a distance go last.
func sortByDistance(list []model.Entity) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Distance, list[j].Distance
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}

// GetLocation handles GET /api/locations/:id. With refresh=true the
// location is refreshed through the cache before it is returned.
func (h *Handler) GetLocation(c *gin.Context) {
	id := c.Param("id")

	if c.Query("refresh") == "true" {
		e, err := h.finder.RefreshLocation(c.Request.Context(), id)
		switch {
		case errors.Is(err, scheduler.ErrUnknownLocation):
			c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
		case err != nil:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "location": e})
		default:
			h.onChange()
			c.JSON(http.StatusOK, e)
		}
		return
	}

	e, ok := h.finder.Location(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
		return
	}
	c.JSON(http.StatusOK, e)
}

// PostRefresh handles POST /api/refresh: the cache is invalidated and every
// location is reloaded from upstream.
func (h *Handler) PostRefresh(c *gin.Context) {
	if err := h.finder.ForceRefresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	h.onChange()
	c.JSON(http.StatusOK, h.finder.Locations())
}
