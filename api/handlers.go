package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
	"board-sync/realtime"
)

type handler struct {
	svc      Services
	hub      *realtime.Hub
	sessions *realtime.SessionRegistry
	logger   *log.Logger
}

// Register wires the HTTP routes on the given Echo instance.
func Register(e *echo.Echo, svc Services, auth Authenticator, hub *realtime.Hub, sessions *realtime.SessionRegistry, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handler{svc: svc, hub: hub, sessions: sessions, logger: logger}

	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	g := e.Group("/api", instrument(logger), requireUser(auth))

	g.POST("/boards", h.createBoard)
	g.GET("/boards", h.listBoards)
	g.GET("/boards/with-tasks", h.listBoardsWithTasks)
	g.GET("/boards/:id/with-tasks", h.boardWithTasks)
	g.PUT("/boards/:id", h.updateBoard)
	g.DELETE("/boards/:id", h.deactivateBoard)

	g.POST("/tasks", h.createTask)
	g.PATCH("/tasks/:id", h.updateTask)
	g.PATCH("/tasks/:id/move", h.moveTask)

	g.POST("/completions", h.createCompletion)
	g.GET("/completions", h.listCompletions)

	g.GET("/notifications", h.listNotifications)
	g.GET("/notifications/unread/count", h.unreadCount)
	g.PATCH("/notifications/read-all", h.markAllRead)
	g.PATCH("/notifications/:id/read", h.markRead)
	g.DELETE("/notifications/read", h.deleteRead)
	g.DELETE("/notifications/:id", h.deleteNotification)

	g.GET("/reports/generate", h.generateReport)
	g.GET("/reports/user/:id", h.userReport)
	g.GET("/reports/board/:id", h.boardReport)
	g.GET("/reports/dashboard", h.dashboard)

	if svc.Users != nil {
		g.PUT("/users/:id", h.putUser)
		g.GET("/users/:id", h.getUser)
	}

	if hub != nil && sessions != nil {
		g.GET("/stream", h.stream)
	}
}

func (h *handler) fail(c echo.Context, stage string, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
		if m := metricsFrom(c); m != nil {
			m.SetErrorStage(stage)
		}
		h.logger.WithError(err).WithFields(log.Fields{"stage": stage, "user": currentUser(c)}).Error("request failed")
	}
	return c.JSON(status, errorResponse{Error: msg})
}

func (h *handler) createBoard(c echo.Context) error {
	var req createBoardRequest
	if err := decodeJSON(c, &req); err != nil {
		return h.fail(c, "decode", err)
	}
	b, err := h.svc.Boards.Create(c.Request().Context(), req.Title, req.Description)
	if err != nil {
		return h.fail(c, "create_board", err)
	}
	return c.JSON(http.StatusCreated, b)
}

func (h *handler) listBoards(c echo.Context) error {
	boards, err := h.svc.Boards.ListActive(c.Request().Context())
	if err != nil {
		return h.fail(c, "list_boards", err)
	}
	return c.JSON(http.StatusOK, boards)
}

func (h *handler) listBoardsWithTasks(c echo.Context) error {
	boards, err := h.svc.Boards.ListActiveWithTasks(c.Request().Context())
	if err != nil {
		return h.fail(c, "list_boards", err)
	}
	return c.JSON(http.StatusOK, boards)
}

func (h *handler) boardWithTasks(c echo.Context) error {
	b, err := h.svc.Boards.WithTasks(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get_board", err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *handler) updateBoard(c echo.Context) error {
	var req createBoardRequest
	if err := decodeJSON(c, &req); err != nil {
		return h.fail(c, "decode", err)
	}
	b, err := h.svc.Boards.Update(c.Request().Context(), c.Param("id"), req.Title, req.Description)
	if err != nil {
		return h.fail(c, "update_board", err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *handler) deactivateBoard(c echo.Context) error {
	b, err := h.svc.Boards.Deactivate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "deactivate_board", err)
	}
	return c.JSON(http.StatusOK, b)
}

// putUser creates or replaces the user named by the path.
func (h *handler) putUser(c echo.Context) error {
	var u domain.User
	if err := decodeJSON(c, &u); err != nil {
		return h.fail(c, "decode", err)
	}
	u.ID = c.Param("id")
	out, err := h.svc.Users.Save(c.Request().Context(), u)
	if err != nil {
		return h.fail(c, "save_user", err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *handler) getUser(c echo.Context) error {
	u, err := h.svc.Users.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "get_user", err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *handler) createTask(c echo.Context) error {
	var spec domain.TaskSpec
	if err := decodeJSON(c, &spec); err != nil {
		return h.fail(c, "decode", err)
	}
	t, err := h.svc.Tasks.Create(c.Request().Context(), spec)
	if err != nil {
		return h.fail(c, "create_task", err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *handler) updateTask(c echo.Context) error {
	var patch domain.TaskPatch
	if err := decodeJSON(c, &patch); err != nil {
		return h.fail(c, "decode", err)
	}
	t, err := h.svc.Tasks.Update(c.Request().Context(), c.Param("id"), patch)
	if err != nil {
		return h.fail(c, "update_task", err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *handler) moveTask(c echo.Context) error {
	var req moveTaskRequest
	if to := c.QueryParam("toBoardId"); to != "" {
		req.FromBoardID, req.ToBoardID = c.QueryParam("fromBoardId"), to
		if raw := c.QueryParam("newIndex"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				return h.fail(c, "decode", fmt.Errorf("newIndex: %w", domain.ErrValidation))
			}
			req.NewIndex = n
		}
	} else if err := decodeJSON(c, &req); err != nil {
		return h.fail(c, "decode", err)
	}
	if req.ToBoardID == "" {
		return h.fail(c, "decode", fmt.Errorf("toBoardId: %w", domain.ErrValidation))
	}
	t, err := h.svc.Tasks.Move(c.Request().Context(), c.Param("id"), req.FromBoardID, req.ToBoardID, req.NewIndex)
	if err != nil {
		return h.fail(c, "move_task", err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *handler) createCompletion(c echo.Context) error {
	var spec domain.CompletionSpec
	if err := decodeJSON(c, &spec); err != nil {
		return h.fail(c, "decode", err)
	}
	out, err := h.svc.Completions.Create(c.Request().Context(), spec)
	if err != nil {
		return h.fail(c, "create_completion", err)
	}
	return c.JSON(http.StatusCreated, out)
}

// listCompletions selects by taskId, boardId, userId or a start/end range.
func (h *handler) listCompletions(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		out []domain.CompletionView
		err error
	)
	switch {
	case c.QueryParam("taskId") != "":
		out, err = h.svc.Completions.ByTask(ctx, c.QueryParam("taskId"))
	case c.QueryParam("boardId") != "":
		out, err = h.svc.Completions.ByBoard(ctx, c.QueryParam("boardId"))
	case c.QueryParam("userId") != "":
		out, err = h.svc.Completions.ByUser(ctx, c.QueryParam("userId"))
	default:
		from, to, perr := parseWindow(c, "start", "end")
		if perr != nil {
			return h.fail(c, "decode", perr)
		}
		out, err = h.svc.Completions.ByDateRange(ctx, from, to)
	}
	if err != nil {
		return h.fail(c, "list_completions", err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *handler) listNotifications(c echo.Context) error {
	unread, _ := strconv.ParseBool(c.QueryParam("unread"))
	ns, err := h.svc.Notifications.List(c.Request().Context(), currentUser(c), unread)
	if err != nil {
		return h.fail(c, "list_notifications", err)
	}
	return c.JSON(http.StatusOK, ns)
}

func (h *handler) unreadCount(c echo.Context) error {
	n, err := h.svc.Notifications.UnreadCount(c.Request().Context(), currentUser(c))
	if err != nil {
		return h.fail(c, "unread_count", err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": n})
}

func (h *handler) markRead(c echo.Context) error {
	n, err := h.svc.Notifications.MarkRead(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "mark_read", err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *handler) markAllRead(c echo.Context) error {
	n, err := h.svc.Notifications.MarkAllRead(c.Request().Context(), currentUser(c))
	if err != nil {
		return h.fail(c, "mark_all_read", err)
	}
	return c.JSON(http.StatusOK, map[string]int{"updated": n})
}

func (h *handler) deleteNotification(c echo.Context) error {
	if err := h.svc.Notifications.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, "delete_notification", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) deleteRead(c echo.Context) error {
	n, err := h.svc.Notifications.DeleteRead(c.Request().Context(), currentUser(c))
	if err != nil {
		return h.fail(c, "delete_read", err)
	}
	return c.JSON(http.StatusOK, map[string]int{"deleted": n})
}

func (h *handler) generateReport(c echo.Context) error {
	start, end, err := parseWindow(c, "start", "end")
	if err != nil {
		return h.fail(c, "decode", err)
	}
	q := domain.ReportQuery{
		Start:   start,
		End:     end,
		Type:    domain.ReportType(c.QueryParam("type")),
		UserID:  c.QueryParam("userId"),
		BoardID: c.QueryParam("boardId"),
	}
	return h.report(c, q)
}

func (h *handler) userReport(c echo.Context) error {
	start, end, err := parseWindow(c, "start", "end")
	if err != nil {
		return h.fail(c, "decode", err)
	}
	return h.report(c, domain.ReportQuery{Start: start, End: end, UserID: c.Param("id")})
}

func (h *handler) boardReport(c echo.Context) error {
	start, end, err := parseWindow(c, "start", "end")
	if err != nil {
		return h.fail(c, "decode", err)
	}
	return h.report(c, domain.ReportQuery{Start: start, End: end, BoardID: c.Param("id")})
}

func (h *handler) dashboard(c echo.Context) error {
	r, err := h.svc.Reports.Dashboard(c.Request().Context())
	if err != nil {
		return h.fail(c, "report", err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *handler) report(c echo.Context, q domain.ReportQuery) error {
	r, err := h.svc.Reports.Generate(c.Request().Context(), q)
	if err != nil {
		return h.fail(c, "report", err)
	}
	return c.JSON(http.StatusOK, r)
}

// parseWindow reads two RFC3339 query parameters.
func parseWindow(c echo.Context, fromKey, toKey string) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, c.QueryParam(fromKey))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: %w", fromKey, domain.ErrValidation)
	}
	to, err := time.Parse(time.RFC3339, c.QueryParam(toKey))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: %w", toKey, domain.ErrValidation)
	}
	return from, to, nil
}
