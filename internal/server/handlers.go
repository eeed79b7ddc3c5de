package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"echotrace/internal/index"
	"echotrace/internal/service"
	"echotrace/internal/transcript"
)

// Handler exposes the pipeline operations over HTTP.
type Handler struct {
	Service          *service.Service
	Index            index.Index
	DefaultThreshold float64
}

// Register mounts the API routes on the group.
func (h *Handler) Register(g *echo.Group) {
	g.POST("/reference", h.registerReference)
	g.POST("/compare", h.compare)
	g.GET("/index/stats", h.indexStats)
}

// ReferenceRequest carries a transcription result for the reference
// recording plus its provenance.
type ReferenceRequest struct {
	Transcription transcript.Result `json:"transcription"`
	Source        string            `json:"source"`
}

// CompareRequest carries the candidate transcription and an optional
// similarity threshold override.
type CompareRequest struct {
	Transcription transcript.Result `json:"transcription"`
	Threshold     *float64          `json:"threshold,omitempty"`
}

func (h *Handler) registerReference(c echo.Context) error {
	var req ReferenceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tr, err := req.Transcription.Transcript()
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	res, err := h.Service.RegisterReference(c.Request().Context(), tr, service.ReferenceMeta{Source: req.Source})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !res.Success {
		return c.JSON(http.StatusBadRequest, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) compare(c echo.Context) error {
	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	tr, err := req.Transcription.Transcript()
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	threshold := h.DefaultThreshold
	if req.Threshold != nil {
		if *req.Threshold < 0 || *req.Threshold > 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "threshold must be within [0, 1]")
		}
		threshold = *req.Threshold
	}

	res, err := h.Service.Compare(c.Request().Context(), tr, threshold)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !res.Success {
		return c.JSON(http.StatusBadRequest, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) indexStats(c echo.Context) error {
	stats, err := h.Index.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
