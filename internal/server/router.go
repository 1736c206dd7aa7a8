package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/emberworks/ember-backend/internal/auth"
	"github.com/emberworks/ember-backend/internal/chat"
	"github.com/emberworks/ember-backend/internal/push"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const userIDContextKey = "ember_user_id"

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingChatService      = errors.New("chat service dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// SessionValidator authenticates the bearer credential presented at
// handshake and on every synchronous request.
type SessionValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP and websocket surfaces to the core.
type Dependencies struct {
	SessionValidator SessionValidator
	ChatService      *chat.Service
	Devices          *push.Devices
	Logger           *zap.Logger
}

// NewHTTPHandler builds the gin handler exposing the websocket upgrade, the
// synchronous fallback surface, and device registration.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.ChatService == nil {
		return nil, errMissingChatService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions: deps.SessionValidator,
		chat:     deps.ChatService,
		devices:  deps.Devices,
		logger:   logger,
	}
	realtime := newRealtimeHandler(deps.SessionValidator, deps.ChatService, logger)

	router.GET("/ws", realtime.handleSocket)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/matches/:matchId/messages", handler.handleHistory)
	protected.POST("/matches/:matchId/read", handler.handleMarkRead)
	protected.GET("/presence", handler.handlePresence)
	protected.POST("/devices", handler.handleRegisterDevice)

	return router, nil
}

type httpHandler struct {
	sessions SessionValidator
	chat     *chat.Service
	devices  *push.Devices
	logger   *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.sessions.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Next()
}

type messagePagePayload struct {
	Messages []chat.MessagePayload `json:"messages"`
}

func (h *httpHandler) handleHistory(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	matchID := c.Param("matchId")
	beforeID := c.Query("before_id")
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = parsed
	}

	messages, err := h.chat.History(c.Request.Context(), userID, matchID, beforeID, limit)
	if err != nil {
		h.respondChatError(c, "history", err)
		return
	}

	page := messagePagePayload{Messages: make([]chat.MessagePayload, 0, len(messages))}
	for _, message := range messages {
		page.Messages = append(page.Messages, chat.MessagePayload{
			ID:          message.ID,
			MatchID:     message.MatchID,
			SenderID:    message.SenderID,
			Body:        message.Body,
			Status:      message.Status,
			CreatedAt:   message.CreatedAt,
			DeliveredAt: message.DeliveredAt,
			ReadAt:      message.ReadAt,
		})
	}
	c.JSON(http.StatusOK, page)
}

type markReadRequestPayload struct {
	MessageIDs []string `json:"message_ids"`
}

type markReadResponsePayload struct {
	Count      int      `json:"count"`
	MessageIDs []string `json:"message_ids"`
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	matchID := c.Param("matchId")

	var request markReadRequestPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}

	result, err := h.chat.MarkRead(c.Request.Context(), userID, matchID, request.MessageIDs)
	if err != nil {
		h.respondChatError(c, "mark_read", err)
		return
	}
	c.JSON(http.StatusOK, markReadResponsePayload{
		Count:      len(result.MessageIDs),
		MessageIDs: result.MessageIDs,
	})
}

func (h *httpHandler) handlePresence(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	raw := strings.TrimSpace(c.Query("user_ids"))
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_ids_required"})
		return
	}
	userIDs := make([]string, 0)
	for _, id := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			userIDs = append(userIDs, trimmed)
		}
	}

	statuses, err := h.chat.OnlineStatus(c.Request.Context(), userIDs)
	if err != nil {
		h.logger.Error("presence query failed",
			zap.String("user_id", userID),
			zap.Error(err))
		h.respondChatError(c, "presence", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statuses": statuses})
}

type registerDevicePayload struct {
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (h *httpHandler) handleRegisterDevice(c *gin.Context) {
	if h.devices == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "push_disabled"})
		return
	}
	userID := c.GetString(userIDContextKey)

	var request registerDevicePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.devices.Register(c.Request.Context(), userID, request.Token, request.Platform); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"registered": true})
}

func (h *httpHandler) respondChatError(c *gin.Context, operation string, err error) {
	code := chat.CodeOf(err)
	if code == chat.CodeUnavailable || code == chat.CodeInternal || code == chat.CodeUnknown {
		h.logger.Error("chat operation failed",
			zap.String("operation", operation),
			zap.String("user_id", c.GetString(userIDContextKey)),
			zap.Error(err))
	}
	c.JSON(httpStatusForCode(code), gin.H{"error": string(code)})
}

func httpStatusForCode(code chat.Code) int {
	switch code {
	case chat.CodeInvalidArgument:
		return http.StatusBadRequest
	case chat.CodeUnauthenticated:
		return http.StatusUnauthorized
	case chat.CodePermissionDenied:
		return http.StatusForbidden
	case chat.CodeNotFound:
		return http.StatusNotFound
	case chat.CodeUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
