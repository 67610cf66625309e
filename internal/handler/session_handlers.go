package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"saga-server/internal/models"
	"saga-server/internal/service"
)

// APIError is the standardized error response body.
type APIError struct {
	Message string `json:"message"`
}

// SessionHandler serves the session HTTP API.
type SessionHandler struct {
	service service.SessionService
	logger  *zap.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(s service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		service: s,
		logger:  logger.Named("SessionHandler"),
	}
}

type createSessionRequest struct {
	HostName      string               `json:"hostName" binding:"required"`
	HostPersona   string               `json:"hostPersona"`
	ParticipantID string               `json:"participantId"`
	Locale        string               `json:"locale"`
	WorldContext  *models.WorldContext `json:"worldContext"`
}

func (h *SessionHandler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}

	session, err := h.service.CreateSession(c.Request.Context(), service.CreateSessionParams{
		HostName:      req.HostName,
		HostPersona:   req.HostPersona,
		ParticipantID: req.ParticipantID,
		Locale:        req.Locale,
		WorldContext:  req.WorldContext,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) getSession(c *gin.Context) {
	session, err := h.service.GetSession(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type joinSessionRequest struct {
	Name          string `json:"name" binding:"required"`
	Persona       string `json:"persona"`
	ParticipantID string `json:"participantId"`
}

func (h *SessionHandler) joinSession(c *gin.Context) {
	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}

	session, err := h.service.JoinSession(c.Request.Context(), c.Param("code"), service.JoinParams{
		ParticipantID: req.ParticipantID,
		Name:          req.Name,
		Persona:       req.Persona,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type participantRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

func (h *SessionHandler) startSession(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	session, err := h.service.StartSession(c.Request.Context(), c.Param("code"), req.ParticipantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) endSession(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	session, err := h.service.EndSession(c.Request.Context(), c.Param("code"), req.ParticipantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type submitActionRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
	Text          string `json:"text" binding:"required"`
}

func (h *SessionHandler) submitAction(c *gin.Context) {
	var req submitActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	session, err := h.service.SubmitAction(c.Request.Context(), c.Param("code"), req.ParticipantID, req.Text)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, session)
}

type revealRollRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
	LogEntryID    *int   `json:"logEntryId" binding:"required"`
}

func (h *SessionHandler) revealRoll(c *gin.Context) {
	var req revealRollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	session, err := h.service.RevealRoll(c.Request.Context(), c.Param("code"), req.ParticipantID, *req.LogEntryID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type equipItemRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
	ItemName      string `json:"itemName" binding:"required"`
}

func (h *SessionHandler) equipItem(c *gin.Context) {
	var req equipItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	session, err := h.service.EquipItem(c.Request.Context(), c.Param("code"), req.ParticipantID, req.ItemName)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *SessionHandler) forceUnstick(c *gin.Context) {
	var req participantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	session, err := h.service.ForceUnstick(c.Request.Context(), c.Param("code"), req.ParticipantID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// respondError maps service errors onto HTTP statuses.
func (h *SessionHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrParticipantNotFound),
		errors.Is(err, models.ErrLogEntryNotFound),
		errors.Is(err, models.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrNotHost),
		errors.Is(err, models.ErrNotRollingPlayer):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrNotYourTurn),
		errors.Is(err, models.ErrActionPending),
		errors.Is(err, models.ErrSessionBusy),
		errors.Is(err, models.ErrSessionEnded),
		errors.Is(err, models.ErrSessionNotActive),
		errors.Is(err, models.ErrSessionNotStuck),
		errors.Is(err, models.ErrNotEquippable),
		errors.Is(err, models.ErrNoRoll):
		status = http.StatusConflict
	case errors.Is(err, models.ErrEmptyAction):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
		c.JSON(status, APIError{Message: "internal server error"})
		return
	}
	c.JSON(status, APIError{Message: err.Error()})
}
