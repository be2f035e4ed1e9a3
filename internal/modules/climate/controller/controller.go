package controller

import (
	"net/http"

	"github.com/scheaton/sqlalchemy-challenge/internal/modules/climate/repository"
)

type ClimateController interface {
	RegisterRoutes(mux *http.ServeMux)
}

type climateControllerImpl struct {
	repository repository.ClimateRepository
	cutoff     string
}

// NewClimateController serves the climate API. cutoff is only shown on the
// index page; the repository applies it.
func NewClimateController(repo repository.ClimateRepository, cutoff string) ClimateController {
	return &climateControllerImpl{repository: repo, cutoff: cutoff}
}

// RegisterRoutes mounts the index and the API. The literal routes win over
// the {start} wildcard by pattern precedence.
func (c *climateControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", c.handleIndex)
	mux.HandleFunc("GET /api/v1.0/precipitation", c.handlePrecipitation)
	mux.HandleFunc("GET /api/v1.0/stations", c.handleStations)
	mux.HandleFunc("GET /api/v1.0/tobs", c.handleTobs)
	mux.HandleFunc("GET /api/v1.0/{start}", c.handleSummarySince)
	mux.HandleFunc("GET /api/v1.0/{start}/{end}", c.handleSummaryRange)
}
