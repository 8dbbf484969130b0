package handlers

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solovey/codemesh/internal/application/constant"
	"github.com/solovey/codemesh/internal/infra/appctx"
	"github.com/solovey/codemesh/internal/infra/ports/http/dto"
	"github.com/solovey/codemesh/internal/usecase"
)

type RoomHandler struct {
	roomUsecase usecase.RoomUsecase
}

func NewRoomHandler(roomUsecase usecase.RoomUsecase) *RoomHandler {
	return &RoomHandler{roomUsecase: roomUsecase}
}

func (h *RoomHandler) CreateRoom(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}

	var req dto.CreateRoomRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}

	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "room name is required"})
	}

	room, err := h.roomUsecase.CreateRoom(c.Request().Context(), userID, req.Name, req.Language)
	if err != nil {
		slog.Error("create room failed", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not create room"})
	}

	return c.JSON(http.StatusCreated, room)
}

func (h *RoomHandler) ListRooms(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}

	rooms, err := h.roomUsecase.GetRoomsForUser(c.Request().Context(), userID)
	if err != nil {
		slog.Error("list rooms failed", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not list rooms"})
	}

	return c.JSON(http.StatusOK, rooms)
}

func (h *RoomHandler) GetRoom(c echo.Context) error {
	room, err := h.roomUsecase.GetRoom(c.Request().Context(), c.Param("roomId"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "room not found"})
		}

		slog.Error("get room failed", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not get room"})
	}

	return c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) JoinRoom(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}

	room, err := h.roomUsecase.JoinRoom(c.Request().Context(), c.Param("roomId"), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "room not found"})
		}

		slog.Error("join room failed", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not join room"})
	}

	return c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) DeleteRoom(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid token"})
	}

	if err := h.roomUsecase.DeleteRoom(c.Request().Context(), c.Param("roomId"), userID); err != nil {
		slog.Error("delete room failed", slog.Any(constant.Error, err))

		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not delete room"})
	}

	return c.NoContent(http.StatusNoContent)
}
