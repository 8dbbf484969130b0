package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solovey/codemesh/internal/application/constant"
	"github.com/solovey/codemesh/internal/infra/ports/http/dto"
	"github.com/solovey/codemesh/internal/usecase"
)

type AIHandler struct {
	aiUsecase usecase.AIUsecase
}

func NewAIHandler(aiUsecase usecase.AIUsecase) *AIHandler {
	return &AIHandler{aiUsecase: aiUsecase}
}

func (h *AIHandler) Review(c echo.Context) error {
	var req dto.ReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	review, err := h.aiUsecase.Review(c.Request().Context(), req.Code, req.Language)
	if err != nil {
		slog.Error("AI review failed", slog.Any(constant.Error, err))

		return c.JSON(http.StatusBadGateway, map[string]string{"error": "review failed"})
	}

	return c.JSON(http.StatusOK, map[string]any{"review": review})
}

func (h *AIHandler) Chat(c echo.Context) error {
	var req dto.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message is required"})
	}

	reply, err := h.aiUsecase.Chat(c.Request().Context(), req.Code, req.Language, req.Message, req.History)
	if err != nil {
		slog.Error("AI chat failed", slog.Any(constant.Error, err))

		return c.JSON(http.StatusBadGateway, map[string]string{"error": "chat failed"})
	}

	return c.JSON(http.StatusOK, reply)
}
