package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ridesplit/internal/repository"
	"github.com/iliyamo/ridesplit/internal/seed"
	"github.com/iliyamo/ridesplit/internal/service"
)

// AdminHandler loads and clears the demo data set.
type AdminHandler struct {
	Store    *repository.Store
	Pipeline *service.TripPipeline
	Seed     seed.Options
}

func NewAdminHandler(store *repository.Store, p *service.TripPipeline, opts seed.Options) *AdminHandler {
	return &AdminHandler{Store: store, Pipeline: p, Seed: opts}
}

// SeedData handles POST /v1/admin/seed. It does nothing when users exist.
func (h *AdminHandler) SeedData(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()
	res, err := seed.Seed(ctx, h.Store, h.Seed)
	if err != nil {
		return writeServiceError(c, err)
	}
	status := http.StatusCreated
	if res.Skipped {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// Reset handles POST /v1/admin/reset: every live trip session is stopped,
// then every table is emptied and the demo data loaded again. The admin
// account is recreated by the seed.
func (h *AdminHandler) Reset(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()
	h.Pipeline.Shutdown()
	if err := h.Store.Reset(ctx); err != nil {
		return writeServiceError(c, err)
	}
	res, err := seed.Seed(ctx, h.Store, h.Seed)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
