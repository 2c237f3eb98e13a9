package hub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"go.chrisrx.dev/reconf/protocol"
)

const ConnectPath = "/connect"

// Register mounts the websocket endpoint and the peer API on e.
func (h *Hub) Register(e *echo.Echo, m ...echo.MiddlewareFunc) {
	e.GET(ConnectPath, h.connect, m...)

	g := e.Group("/peers")
	g.GET("", h.listPeers)
	g.GET("/:id/config", h.getConfig)
	g.PUT("/:id/config", h.putConfig)
	g.PATCH("/:id/config", h.patchConfig)
}

func (h *Hub) connect(c echo.Context) error {
	if _, err := h.Accept(c.Response(), c.Request()); err != nil {
		// the upgrader has already written the HTTP error
		h.logger.Warn("cannot accept peer", slog.Any("error", err))
	}
	return nil
}

func (h *Hub) listPeers(c echo.Context) error {
	peers := h.Peers()
	infos := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		infos = append(infos, p.Info())
	}
	return c.JSON(http.StatusOK, infos)
}

func (h *Hub) getConfig(c echo.Context) error {
	p, ok := h.Get(c.Param("id"))
	if !ok {
		return sendError(c, http.StatusNotFound, errUnknownPeer)
	}
	if c.QueryParam("fresh") == "" {
		return c.JSON(http.StatusOK, p.Session.Config())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.requestTimeout)
	defer cancel()
	doc, err := p.Session.Read(ctx)
	if err != nil {
		return sendError(c, statusFor(err), err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Hub) putConfig(c echo.Context) error {
	p, ok := h.Get(c.Param("id"))
	if !ok {
		return sendError(c, http.StatusNotFound, errUnknownPeer)
	}
	doc, err := readDocument(c)
	if err != nil {
		return sendError(c, http.StatusBadRequest, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.requestTimeout)
	defer cancel()
	m, err := p.Session.Patch(ctx, doc)
	if err != nil {
		return sendError(c, statusFor(err), err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"id":    m.ID,
		"patch": m.Data,
	})
}

func (h *Hub) patchConfig(c echo.Context) error {
	p, ok := h.Get(c.Param("id"))
	if !ok {
		return sendError(c, http.StatusNotFound, errUnknownPeer)
	}
	body, err := readDocument(c)
	if err != nil {
		return sendError(c, http.StatusBadRequest, err)
	}
	ps, err := protocol.ParsePatchSet(body)
	if err != nil {
		return sendError(c, http.StatusBadRequest, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.requestTimeout)
	defer cancel()
	m, err := p.Session.SendPatch(ctx, ps)
	if err != nil {
		return sendError(c, statusFor(err), err)
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"id":    m.ID,
		"patch": ps,
	})
}

var errUnknownPeer = errors.New("hub: unknown peer")

func readDocument(c echo.Context) (any, error) {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	return protocol.ParseDocument(data)
}

func statusFor(err error) int {
	var applyErr *protocol.ApplyError
	switch {
	case errors.As(err, &applyErr):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func sendError(c echo.Context, status int, err error) error {
	return c.JSON(status, map[string]any{
		"status": status,
		"error":  err.Error(),
	})
}
