package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"chitrakatha/internal/acquisition"
	"chitrakatha/internal/catalog"
	"chitrakatha/internal/protocol"
	"chitrakatha/internal/session"
)

// Server is the local control surface the UI talks to.
type Server struct {
	controller *session.Controller
	catalog    *catalog.Client
	router     *echo.Echo
}

type joinRoomRequest struct {
	Password string `json:"password,omitempty"`
}

type selectSourceRequest struct {
	Spec string `json:"spec"`
	Type string `json:"type"`
}

type selectFileRequest struct {
	FilePath string `json:"filePath"`
}

type seekRequest struct {
	Time float64 `json:"time"`
}

type durationRequest struct {
	Duration float64 `json:"duration"`
}

func NewServer(controller *session.Controller, cat *catalog.Client) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	server := &Server{
		controller: controller,
		catalog:    cat,
		router:     e,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/api/session", server.handleSessionStatus)
	e.POST("/api/rooms/:roomId/join", server.handleJoinRoom)
	e.POST("/api/rooms/leave", server.handleLeaveRoom)

	e.POST("/api/source", server.handleSelectSource)
	e.POST("/api/source/file", server.handleSelectFile)
	e.POST("/api/source/download", server.handleStartDownload)

	e.POST("/api/playback/play", server.handlePlay)
	e.POST("/api/playback/pause", server.handlePause)
	e.POST("/api/playback/seek", server.handleSeek)
	e.POST("/api/playback/duration", server.handleDuration)

	e.GET("/api/catalog/search", server.handleCatalogSearch)
	e.GET("/api/catalog/meta/:type/:id", server.handleCatalogMeta)
	e.GET("/api/catalog/streams/:type/:id", server.handleCatalogStreams)

	return server
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) Start(addr string) error {
	return s.router.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.router.Shutdown(ctx)
}

func (s *Server) handleSessionStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handleJoinRoom(c echo.Context) error {
	roomID := c.Param("roomId")
	var payload joinRoomRequest
	if err := c.Bind(&payload); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	err := s.controller.Join(c.Request().Context(), roomID, payload.Password)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, s.controller.Status())
	case errors.Is(err, session.ErrPasswordRequired):
		// Not an auth failure: the room wants credentials the caller
		// did not offer yet.
		return respondError(c, http.StatusUnauthorized, "password_required", err.Error())
	case errors.Is(err, session.ErrBadPassword):
		return respondError(c, http.StatusUnauthorized, "bad_password", err.Error())
	case errors.Is(err, session.ErrAlreadyJoined):
		return respondError(c, http.StatusConflict, "already_joined", err.Error())
	default:
		return respondError(c, http.StatusBadGateway, "join_failed", err.Error())
	}
}

func (s *Server) handleLeaveRoom(c echo.Context) error {
	s.controller.Leave()
	return c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handleSelectSource(c echo.Context) error {
	var payload selectSourceRequest
	if err := c.Bind(&payload); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	if payload.Spec == "" {
		return respondError(c, http.StatusBadRequest, "invalid_request", "spec is required")
	}
	spec := acquisition.SourceSpec{Value: payload.Spec, Type: acquisition.SourceType(payload.Type)}
	if spec.Type == "" {
		spec.Type = acquisition.SourceURL
	}
	if err := s.controller.SelectSource(c.Request().Context(), spec); err != nil {
		return respondSourceError(c, err)
	}
	return c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handleSelectFile(c echo.Context) error {
	var payload selectFileRequest
	if err := c.Bind(&payload); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	if payload.FilePath == "" {
		return respondError(c, http.StatusBadRequest, "invalid_request", "filePath is required")
	}
	if err := s.controller.SelectLocalFile(c.Request().Context(), payload.FilePath); err != nil {
		return respondSourceError(c, err)
	}
	return c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handleStartDownload(c echo.Context) error {
	if err := s.controller.StartRemoteDownload(c.Request().Context()); err != nil {
		if errors.Is(err, session.ErrNoRemoteFile) {
			return respondError(c, http.StatusNotFound, "no_remote_file", err.Error())
		}
		return respondSourceError(c, err)
	}
	return c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handlePlay(c echo.Context) error {
	if err := s.controller.Play(); err != nil {
		return respondError(c, http.StatusInternalServerError, "play_failed", err.Error())
	}
	return c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handlePause(c echo.Context) error {
	if err := s.controller.Pause(); err != nil {
		return respondError(c, http.StatusInternalServerError, "pause_failed", err.Error())
	}
	return c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handleSeek(c echo.Context) error {
	var payload seekRequest
	if err := c.Bind(&payload); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	if err := s.controller.SeekTo(payload.Time); err != nil {
		return respondError(c, http.StatusInternalServerError, "seek_failed", err.Error())
	}
	return c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handleDuration(c echo.Context) error {
	var payload durationRequest
	if err := c.Bind(&payload); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid_request", "invalid request body")
	}
	s.controller.ReportDuration(payload.Duration)
	return c.JSON(http.StatusOK, s.controller.Status())
}

func (s *Server) handleCatalogSearch(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		return respondError(c, http.StatusBadRequest, "invalid_request", "query is required")
	}
	contentType := c.QueryParam("type")
	if contentType == "" {
		contentType = "movie"
	}
	metas := s.catalog.Search(c.Request().Context(), query, contentType)
	return c.JSON(http.StatusOK, metas)
}

func (s *Server) handleCatalogMeta(c echo.Context) error {
	meta, err := s.catalog.Meta(c.Request().Context(), c.Param("id"), c.Param("type"))
	if err != nil {
		return respondError(c, http.StatusBadGateway, "catalog_failed", err.Error())
	}
	return c.JSON(http.StatusOK, meta)
}

func (s *Server) handleCatalogStreams(c echo.Context) error {
	streams := s.catalog.Streams(c.Request().Context(), c.Param("id"), c.Param("type"))
	return c.JSON(http.StatusOK, streams)
}

func respondSourceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, session.ErrNotInRoom):
		return respondError(c, http.StatusConflict, "not_in_room", err.Error())
	case errors.Is(err, acquisition.ErrAgentUnreachable):
		return respondError(c, http.StatusBadGateway, "agent_unreachable", err.Error())
	case errors.Is(err, acquisition.ErrAcquisitionFailed):
		return respondError(c, http.StatusBadGateway, "acquisition_failed", err.Error())
	default:
		return respondError(c, http.StatusInternalServerError, "source_failed", err.Error())
	}
}

func respondError(c echo.Context, status int, code, message string) error {
	return c.JSON(status, protocol.Envelope{
		Kind: protocol.KindError,
		Data: protocol.ErrorPayload{
			Code:    code,
			Message: message,
		},
	})
}
