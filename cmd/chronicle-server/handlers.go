package main

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/evalgo-chronicle/chronicle/db"
	"github.com/evalgo-chronicle/chronicle/entity"
	cherrors "github.com/evalgo-chronicle/chronicle/errors"
)

// actorFrom pulls the subject claim echojwt stashed in the request
// context under "user" back out, falling back to "unknown" rather than
// an empty actor string when the claim shape doesn't match.
func actorFrom(c echo.Context) string {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return "unknown"
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "unknown"
	}
	return sub
}

type handlers struct {
	db   *db.DB
	auth *tokenIssuer
}

func (h *handlers) issueToken(c echo.Context) error {
	var req struct {
		Subject string `json:"subject"`
	}
	if err := c.Bind(&req); err != nil || req.Subject == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "subject is required")
	}
	token, err := h.auth.issue(req.Subject)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *handlers) createEntity(c echo.Context) error {
	namespace := c.Param("namespace")
	var data entity.Entity
	if err := c.Bind(&data); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entity body")
	}
	e, err := h.db.Entities.Create(c.Request().Context(), namespace, data, entity.CreateOptions{})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *handlers) getEntity(c echo.Context) error {
	e, err := h.db.Entities.Get(c.Request().Context(), c.Param("namespace"), c.Param("id"), entity.GetOptions{})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *handlers) findEntities(c echo.Context) error {
	results, err := h.db.Entities.Find(c.Request().Context(), c.Param("namespace"), nil, entity.FindOptions{})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"entities": results, "count": len(results)})
}

func (h *handlers) updateEntity(c echo.Context) error {
	var spec entity.UpdateSpec
	if err := c.Bind(&spec); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update spec")
	}
	actor := actorFrom(c)
	e, err := h.db.Entities.Update(c.Request().Context(), c.Param("namespace"), c.Param("id"), spec, actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *handlers) deleteEntity(c echo.Context) error {
	actor := actorFrom(c)
	if err := h.db.Entities.Delete(c.Request().Context(), c.Param("namespace"), c.Param("id"), actor); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// errorHandler translates chronicle's error taxonomy into HTTP status,
// the reference adapter's one piece of protocol-specific logic.
func errorHandler(err error, c echo.Context) {
	if he, ok := err.(*echo.HTTPError); ok {
		c.JSON(he.Code, map[string]any{"error": he.Message})
		return
	}

	status := http.StatusInternalServerError
	switch cherrors.CodeOf(err) {
	case cherrors.NotFound:
		status = http.StatusNotFound
	case cherrors.Validation:
		status = http.StatusBadRequest
	case cherrors.Conflict, cherrors.VersionConflict, cherrors.LockHeld:
		status = http.StatusConflict
	case cherrors.PermissionDenied:
		status = http.StatusForbidden
	case cherrors.Unauthorized:
		status = http.StatusUnauthorized
	case cherrors.Timeout:
		status = http.StatusGatewayTimeout
	case cherrors.ReadOnly:
		status = http.StatusForbidden
	case cherrors.HashMismatch:
		status = http.StatusConflict
	case cherrors.Network:
		status = http.StatusBadGateway
	}
	c.JSON(status, map[string]string{"error": err.Error(), "code": string(cherrors.CodeOf(err))})
}
