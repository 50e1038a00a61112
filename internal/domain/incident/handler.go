package incident

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/jihoon2park/falltrack/internal/domain/task"
	"github.com/jihoon2park/falltrack/internal/platform/auth"
	"github.com/jihoon2park/falltrack/pkg/pagination"
)

// Resyncer triggers an on-demand sync pass for a site. Satisfied by the sync
// package; declared here so the handler does not depend on it.
type Resyncer interface {
	Resync(ctx context.Context, site string) (created, updated int, err error)
}

type Handler struct {
	svc      *Service
	resyncer Resyncer
}

func NewHandler(svc *Service, resyncer Resyncer) *Handler {
	return &Handler{svc: svc, resyncer: resyncer}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "nurse", "viewer"))
	readGroup.GET("/incidents", h.List)
	readGroup.GET("/incidents/:id", h.Get)
	readGroup.GET("/incidents/:id/tasks", h.Tasks)

	writeGroup := api.Group("", auth.RequireRole("admin", "nurse"))
	writeGroup.POST("/incidents/:id/tasks/:task_id/complete", h.CompleteTask)

	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.POST("/sites/:site/resync", h.Resync)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)

	f := ListFilter{
		Site:     c.QueryParam("site"),
		Category: c.QueryParam("category"),
		Status:   Status(c.QueryParam("status")),
	}
	switch f.Status {
	case "", StatusOpen, StatusOverdue, StatusClosed:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status filter")
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from timestamp")
		}
		f.From = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to timestamp")
		}
		f.To = t
	}

	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	inc, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "incident not found")
	}
	return c.JSON(http.StatusOK, inc)
}

func (h *Handler) Tasks(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	tasks, err := h.svc.Tasks(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "incident not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, tasks)
}

func (h *Handler) CompleteTask(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	taskID, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}

	completedBy := auth.UserIDFromContext(c.Request().Context())
	t, err := h.svc.CompleteTask(c.Request().Context(), id, taskID, completedBy)
	if err != nil {
		switch {
		case errors.Is(err, task.ErrNotFound), errors.Is(err, ErrNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "task not found")
		case errors.Is(err, ErrTaskMismatch):
			return echo.NewHTTPError(http.StatusNotFound, "task not found")
		case errors.Is(err, task.ErrAlreadyCompleted):
			return echo.NewHTTPError(http.StatusConflict, "task is already completed")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) Resync(c echo.Context) error {
	site := c.Param("site")
	if site == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing site")
	}
	created, updated, err := h.resyncer.Resync(c.Request().Context(), site)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"created": created, "updated": updated})
}
