package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type statusResponse struct {
	State            string     `json:"state"`
	Generation       uint64     `json:"generation"`
	LastUpdate       *time.Time `json:"lastUpdate"`
	LastWeeklyUpdate *time.Time `json:"lastWeeklyUpdate"`
	Locations        int        `json:"locations"`
}

// GetStatus handles GET /api/status.
func (h *Handler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, statusResponse{
		State:            h.finder.State().String(),
		Generation:       h.finder.Generation(),
		LastUpdate:       timeOrNil(h.finder.LastUpdate()),
		LastWeeklyUpdate: timeOrNil(h.finder.LastWeeklyUpdate()),
		Locations:        len(h.finder.Locations()),
	})
}

func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
