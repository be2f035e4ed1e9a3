package climate

import (
	"net/http"

	"github.com/scheaton/sqlalchemy-challenge/internal/modules/climate/controller"
	"github.com/scheaton/sqlalchemy-challenge/internal/modules/climate/repository"
)

func RegisterFeature(mux *http.ServeMux, store repository.Querier, cutoff string) {
	climateRepository := repository.NewRepository(store, cutoff)
	climateController := controller.NewClimateController(climateRepository, cutoff)
	climateController.RegisterRoutes(mux)
}
