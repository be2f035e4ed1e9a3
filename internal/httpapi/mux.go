package httpapi

import (
	"net/http"

	"github.com/scheaton/sqlalchemy-challenge/internal/metrics"
)

// NewMux returns a mux with the operational routes mounted. Features add
// their own routes to it.
func NewMux(store Pinger) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, store)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}
