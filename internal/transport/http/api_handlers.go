package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dmaksimov/beatlink-server/internal/auth"
	"github.com/dmaksimov/beatlink-server/internal/store"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	db     store.Store
	jwtCfg *auth.JWTConfig
	log    *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(db store.Store, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{db: db, jwtCfg: jwtCfg, log: logger}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TokenRequest represents the development token request body.
type TokenRequest struct {
	UserID   int32  `json:"user_id" binding:"required"`
	Username string `json:"username" binding:"required,min=1,max=32"`
}

// TokenResponse carries an issued token.
type TokenResponse struct {
	Token string `json:"token"`
}

// RoomResponse represents a room in API responses.
type RoomResponse struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Category         string `json:"category"`
	HostUserID       int32  `json:"host_user_id"`
	QueueMode        string `json:"queue_mode"`
	ParticipantCount int    `json:"participant_count"`
	Active           bool   `json:"active"`
}

// Healthz reports liveness.
// GET /healthz
func (h *APIHandlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// IssueToken mints a connection token. Development convenience only; a real
// deployment gets tokens from the account system.
// POST /api/token
func (h *APIHandlers) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid token request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := auth.GenerateToken(h.jwtCfg, req.UserID, req.Username)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to issue token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// GetRoom returns the last committed snapshot of a room from the database.
// GET /api/rooms/:id
func (h *APIHandlers) GetRoom(c *gin.Context) {
	var params struct {
		ID int64 `uri:"id" binding:"required"`
	}
	if err := c.ShouldBindUri(&params); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return
	}

	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	room, err := h.db.GetRoom(ctx, params.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}

	c.JSON(http.StatusOK, RoomResponse{
		ID:               room.ID,
		Name:             room.Name,
		Category:         room.Category,
		HostUserID:       room.HostUserID,
		QueueMode:        room.QueueMode,
		ParticipantCount: room.ParticipantCount,
		Active:           room.EndsAt == nil,
	})
}
