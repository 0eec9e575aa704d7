package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"collab-api/storage"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, hub *Hub, notifier *Notifier, deduper Deduper, logger *log.Logger) {
	e.GET("/healthz", healthz())

	e.POST("/api/projects", createProject(store, auth))
	e.GET("/api/projects", listProjects(store))
	e.GET("/api/projects/:id", getProject(store))
	e.POST("/api/projects/:id/apply", applyToProject(store, auth, notifier))
	e.POST("/api/projects/:id/accept", resolveApplication(store, auth, true))
	e.POST("/api/projects/:id/decline", resolveApplication(store, auth, false))

	e.POST("/api/projects/:id/kanban/tasks", addTask(store, auth))
	e.PUT("/api/projects/:id/kanban/tasks/move", moveTask(store, auth, logger))
	e.DELETE("/api/projects/:id/kanban/tasks", deleteTask(store, auth))

	e.GET("/api/messages/:projectId", getMessages(store, auth))
	e.GET("/api/notifications", listNotifications(store, auth))
	e.PUT("/api/notifications/read", markNotificationsRead(store, auth))

	e.GET("/ws", serveSocket(hub, store, auth, deduper, logger))
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

// decodeBody reads a size-capped JSON request body.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// storeError maps the storage taxonomy onto HTTP responses. Unexpected
// errors are logged and reported generically so internals never leak.
func storeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "server error"})
	}
}

func createProject(store ProjectStore, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var req createProjectRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" || strings.TrimSpace(req.Description) == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "title and description are required"})
		}
		skills := make([]string, 0, len(req.RequiredSkills))
		for _, s := range req.RequiredSkills {
			if s = strings.TrimSpace(s); s != "" {
				skills = append(skills, s)
			}
		}
		project, err := store.CreateProject(c.Request().Context(), identity.ID, req.Title, req.Description, skills)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusCreated, project)
	}
}

func listProjects(store ProjectStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		projects, err := store.ListProjects(c.Request().Context())
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, projects)
	}
}

func getProject(store ProjectStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		project, err := store.FetchProject(c.Request().Context(), c.Param("id"))
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, project)
	}
}

func applyToProject(store ProjectStore, auth Authenticator, notifier *Notifier) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var req applyRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		projectID := c.Param("id")
		project, err := store.Apply(c.Request().Context(), projectID, identity.ID, identity.Name, req.Message, req.Skills)
		if err != nil {
			return storeError(c, err)
		}

		// Notifying the owner is a best-effort side effect: it must never
		// fail the application itself.
		notifier.Notify(project.Owner,
			fmt.Sprintf("%s applied to your project: %s", identity.Name, project.Title),
			"/projects/"+projectID)

		return c.JSON(http.StatusOK, applicationsResponse{Applications: project.Applications})
	}
}

func resolveApplication(store ProjectStore, auth Authenticator, accept bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var req resolveApplicationRequest
		if err := decodeBody(c, &req); err != nil || req.ApplicationID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "applicationId is required"})
		}
		project, err := store.ResolveApplication(c.Request().Context(), c.Param("id"), req.ApplicationID, identity.ID, accept)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, project)
	}
}

func addTask(store ProjectStore, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var req addTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if strings.TrimSpace(req.Content) == "" || req.ColumnID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "columnId and content are required"})
		}
		task, revision, err := store.AddTask(c.Request().Context(), c.Param("id"), req.ColumnID, req.Content, identity.ID)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusCreated, addTaskResponse{Task: task, Revision: revision})
	}
}

func moveTask(store ProjectStore, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newMoveRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		var req moveTaskRequest
		if err := decodeBody(c, &req); err != nil {
			metrics.SetErrorStage("decode")
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.TaskID == "" || req.SourceColumnID == "" || req.DestColumnID == "" {
			metrics.SetErrorStage("validate")
			err = c.JSON(http.StatusBadRequest, errorResponse{Error: "taskId, sourceColumnId and destColumnId are required"})
			return err
		}

		mutateStart := time.Now()
		revision, moveErr := store.MoveTask(ctx, c.Param("id"), req.TaskID, req.SourceColumnID, req.DestColumnID, req.DestIndex, req.IfRevision)
		metrics.ObserveMutate(time.Since(mutateStart))
		if moveErr != nil {
			metrics.SetErrorStage("mutate")
			err = storeError(c, moveErr)
			return err
		}
		metrics.SetRevision(revision)
		err = c.JSON(http.StatusOK, revisionResponse{Revision: revision})
		return err
	}
}

func deleteTask(store ProjectStore, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		_, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		var req deleteTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}
		if req.ColumnID == "" || req.TaskID == "" {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "columnId and taskId are required"})
		}
		revision, err := store.DeleteTask(c.Request().Context(), c.Param("id"), req.ColumnID, req.TaskID, req.IfRevision)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, revisionResponse{Revision: revision})
	}
}

func getMessages(store MessageStore, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		msgs, err := store.FetchMessages(c.Request().Context(), c.Param("projectId"))
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, msgs)
	}
}

func listNotifications(store NotificationStore, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		notifications, err := store.ListUnread(c.Request().Context(), identity.ID)
		if err != nil {
			return storeError(c, err)
		}
		return c.JSON(http.StatusOK, notifications)
	}
}

func markNotificationsRead(store NotificationStore, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity, err := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		if err := store.MarkAllRead(c.Request().Context(), identity.ID); err != nil {
			return storeError(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
