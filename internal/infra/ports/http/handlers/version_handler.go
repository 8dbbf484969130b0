package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/solovey/codemesh/internal/application/constant"
	"github.com/solovey/codemesh/internal/infra/appctx"
	"github.com/solovey/codemesh/internal/infra/ports/http/dto"
	"github.com/solovey/codemesh/internal/usecase"
)

type VersionHandler struct {
	versionUsecase usecase.VersionUsecase
}

func NewVersionHandler(versionUsecase usecase.VersionUsecase) *VersionHandler {
	return &VersionHandler{versionUsecase: versionUsecase}
}

func (h *VersionHandler) SaveVersion(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}

	var req dto.SaveVersionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	version, err := h.versionUsecase.SaveVersion(
		c.Request().Context(),
		c.Param("roomId"),
		req.Code,
		req.Language,
		req.Label,
		userID,
	)
	if err != nil {
		slog.Error("save version failed", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not save version"})
	}

	return c.JSON(http.StatusCreated, version)
}

func (h *VersionHandler) ListVersions(c echo.Context) error {
	versions, err := h.versionUsecase.ListVersions(c.Request().Context(), c.Param("roomId"))
	if err != nil {
		slog.Error("list versions failed", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not list versions"})
	}

	return c.JSON(http.StatusOK, versions)
}

func (h *VersionHandler) GetVersion(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid version id"})
	}

	version, err := h.versionUsecase.GetVersion(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "version not found"})
	}

	return c.JSON(http.StatusOK, version)
}

func (h *VersionHandler) DeleteVersion(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid version id"})
	}

	if err := h.versionUsecase.DeleteVersion(c.Request().Context(), id, userID); err != nil {
		slog.Error("delete version failed", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not delete version"})
	}

	return c.NoContent(http.StatusNoContent)
}
