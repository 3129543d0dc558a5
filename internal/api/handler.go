package api

import (
	"context"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/paulmach/orb"
	"gorm.io/gorm"

	"facility-finder-backend/internal/model"
	"facility-finder-backend/internal/scheduler"
)

// Finder is the read and refresh surface of the refresh scheduler.
type Finder interface {
	GetAllLocations(ctx context.Context) ([]model.Entity, error)
	Location(id string) (model.Entity, bool)
	RefreshLocation(ctx context.Context, id string) (model.Entity, error)
	ForceRefresh(ctx context.Context) error
	Locations() []model.Entity
	State() scheduler.State
	Generation() uint64
	LastUpdate() time.Time
	LastWeeklyUpdate() time.Time
}

// PositionSink accepts device position fixes.
type PositionSink interface {
	Push(p orb.Point) error
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	finder   Finder
	db       *gorm.DB
	position PositionSink
	webpush  *webpush.Options
	onChange func()
}

// NewHandler creates a new API handler.
func NewHandler(finder Finder, db *gorm.DB, position PositionSink, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		finder:   finder,
		db:       db,
		position: position,
		webpush:  webpushOptions,
		onChange: func() {},
	}
}
