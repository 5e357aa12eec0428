package polling

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/hie/internal/platform/db"
	"github.com/ehr/hie/pkg/pagination"
)

type Handler struct {
	svc  *Service
	repo Repository
}

func NewHandler(svc *Service, repo Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/polls", h.TriggerPoll)
	api.GET("/polls", h.ListRuns)
	api.GET("/polls/:id", h.GetRun)
	api.GET("/polls/:id/messages", h.ListMessages)
}

// TriggerPoll starts a manual run for the request's tenant scope. A scope
// with a run already in flight gets 409 rather than a queued duplicate.
func (h *Handler) TriggerPoll(c echo.Context) error {
	ctx := c.Request().Context()
	scope := db.TenantFromContext(ctx)

	result, err := h.svc.ExecutePoll(ctx, scope, TriggerManual)
	if err != nil {
		if errors.Is(err, ErrPollAlreadyRunning) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) ListRuns(c echo.Context) error {
	pg := pagination.FromContext(c)
	runs, total, err := h.repo.ListRuns(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(runs, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetRun(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	run, err := h.repo.GetRun(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "poll run not found")
	}
	return c.JSON(http.StatusOK, run)
}

func (h *Handler) ListMessages(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	msgs, err := h.repo.ListMessages(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, msgs)
}
