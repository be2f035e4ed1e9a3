package controller

import (
	"bytes"
	"log/slog"
	"net/http"

	"github.com/scheaton/sqlalchemy-challenge/internal/modules/climate/views"
	"github.com/scheaton/sqlalchemy-challenge/internal/utils"
)

var indexRoutes = []views.Route{
	{Path: "/api/v1.0/precipitation", Description: "daily precipitation for the last year of data"},
	{Path: "/api/v1.0/stations", Description: "weather station catalog"},
	{Path: "/api/v1.0/tobs", Description: "temperature observations for the last year of data"},
	{Path: "/api/v1.0/<start>", Description: "min, average and max temperature from start"},
	{Path: "/api/v1.0/<start>/<end>", Description: "min, average and max temperature from start to end"},
}

func (c *climateControllerImpl) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := &views.IndexData{
		Title:  "Hawaii Climate API",
		Routes: indexRoutes,
		Cutoff: c.cutoff,
	}
	bounds, err := c.repository.Bounds(r.Context())
	if err != nil {
		slog.WarnContext(r.Context(), "index: dataset bounds unavailable", "error", err)
	} else {
		data.Bounds = bounds
	}

	var buf bytes.Buffer
	if err := views.RenderIndex(&buf, data); err != nil {
		slog.ErrorContext(r.Context(), "index template render failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.ErrorContext(r.Context(), "index: write response failed", "error", err)
	}
}

func (c *climateControllerImpl) handlePrecipitation(w http.ResponseWriter, r *http.Request) {
	records, err := c.repository.Precipitation(r.Context())
	if err != nil {
		writeQueryError(w, r, "failed to load precipitation", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, records)
}

func (c *climateControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := c.repository.Stations(r.Context())
	if err != nil {
		writeQueryError(w, r, "failed to load stations", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, stations)
}

func (c *climateControllerImpl) handleTobs(w http.ResponseWriter, r *http.Request) {
	records, err := c.repository.Tobs(r.Context())
	if err != nil {
		writeQueryError(w, r, "failed to load temperature observations", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, records)
}

func (c *climateControllerImpl) handleSummarySince(w http.ResponseWriter, r *http.Request) {
	summary, err := c.repository.SummarySince(r.Context(), r.PathValue("start"))
	if err != nil {
		writeQueryError(w, r, "failed to summarize temperatures", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, summary)
}

func (c *climateControllerImpl) handleSummaryRange(w http.ResponseWriter, r *http.Request) {
	summary, err := c.repository.SummaryRange(r.Context(), r.PathValue("start"), r.PathValue("end"))
	if err != nil {
		writeQueryError(w, r, "failed to summarize temperatures", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, summary)
}

func writeQueryError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
	utils.WriteError(w, http.StatusInternalServerError, msg)
}
