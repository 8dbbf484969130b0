package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solovey/codemesh/internal/application/config"
)

type IceHandler struct {
	cfg *config.Config
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg}
}

// IceServers hands the STUN list to clients. There is no TURN
// fallback: peers that cannot reach each other directly stay on the
// retry path instead of relaying media.
func (h *IceHandler) IceServers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.cfg.ICEServers())
}
