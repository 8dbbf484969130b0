package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solovey/codemesh/internal/application/constant"
	"github.com/solovey/codemesh/internal/infra/ports/http/dto"
	"github.com/solovey/codemesh/internal/usecase"
)

type ExecuteHandler struct {
	executeUsecase usecase.ExecuteUsecase
}

func NewExecuteHandler(executeUsecase usecase.ExecuteUsecase) *ExecuteHandler {
	return &ExecuteHandler{executeUsecase: executeUsecase}
}

func (h *ExecuteHandler) Execute(c echo.Context) error {
	var req dto.ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	result, err := h.executeUsecase.Execute(c.Request().Context(), req.Code, req.Language)
	if err != nil {
		slog.Error("execute failed", slog.Any(constant.Error, err))

		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}
