package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/emberworks/ember-backend/internal/auth"
	"github.com/emberworks/ember-backend/internal/chat"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readDeadline = 90 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = int64(16 << 10)

	opSendMessage     = "send_message"
	opMarkRead        = "mark_read"
	opTyping          = "typing"
	opGetOnlineStatus = "get_online_status"
	opHeartbeat       = "heartbeat"
)

// operationFrame is a client request over the live connection. Fields beyond
// op are populated per operation.
type operationFrame struct {
	Op           string   `json:"op"`
	MatchID      string   `json:"match_id,omitempty"`
	Text         string   `json:"text,omitempty"`
	ClientTempID string   `json:"client_temp_id,omitempty"`
	MessageIDs   []string `json:"message_ids,omitempty"`
	IsTyping     bool     `json:"is_typing,omitempty"`
	UserIDs      []string `json:"user_ids,omitempty"`
}

// ackFrame answers one operation on the same connection.
type ackFrame struct {
	Op    string `json:"op"`
	OK    bool   `json:"ok"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// wsConn adapts a websocket connection to chat.EventSink. Events and acks are
// written from different goroutines, so every write goes through one mutex
// and carries a deadline.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) SendEvent(event chat.Event) error {
	return c.writeJSON(event)
}

func (c *wsConn) writeJSON(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(payload)
}

func (c *wsConn) close() {
	_ = c.conn.Close()
}

type realtimeHandler struct {
	sessions SessionValidator
	chat     *chat.Service
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func newRealtimeHandler(sessions SessionValidator, chatService *chat.Service, logger *zap.Logger) *realtimeHandler {
	return &realtimeHandler{
		sessions: sessions,
		chat:     chatService,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// handleSocket authenticates the handshake credential and promotes the
// request to a live connection. Authentication failures are answered before
// the upgrade with a reason and never echo the credential.
func (h *realtimeHandler) handleSocket(c *gin.Context) {
	connID := uuid.NewString()

	token, err := auth.BearerToken(c.Request)
	if err != nil {
		h.logger.Info("realtime handshake rejected",
			zap.String("conn_id", connID),
			zap.String("reason", "authentication required"))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	claims, err := h.sessions.ValidateToken(token)
	if err != nil {
		h.logger.Info("realtime handshake rejected",
			zap.String("conn_id", connID),
			zap.String("reason", "invalid or expired token"),
			zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("conn_id", connID),
			zap.String("user_id", claims.UserID),
			zap.Error(err))
		return
	}

	sink := &wsConn{conn: conn}
	displaced, _, err := h.chat.Connect(c.Request.Context(), claims.UserID, connID, sink)
	if err != nil {
		h.logger.Error("connection registration failed",
			zap.String("conn_id", connID),
			zap.String("user_id", claims.UserID),
			zap.Error(err))
		sink.close()
		return
	}
	if old, ok := displaced.(*wsConn); ok && old != nil {
		old.close()
	}

	h.logger.Info("realtime connection established",
		zap.String("conn_id", connID),
		zap.String("user_id", claims.UserID))

	go h.readLoop(claims.UserID, connID, conn, sink)
}

// readLoop processes one connection's operations sequentially, which is what
// preserves a sender's send order within a conversation. Any read error,
// including the idle deadline, funnels into the same disconnect path.
func (h *realtimeHandler) readLoop(userID, connID string, conn *websocket.Conn, sink *wsConn) {
	defer func() {
		if err := h.chat.Disconnect(context.Background(), userID, connID); err != nil {
			h.logger.Error("disconnect handling failed",
				zap.String("conn_id", connID),
				zap.String("user_id", userID),
				zap.Error(err))
		}
		sink.close()
		h.logger.Info("realtime connection closed",
			zap.String("conn_id", connID),
			zap.String("user_id", userID))
	}()

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		var frame operationFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("connection read failed",
					zap.String("conn_id", connID),
					zap.String("user_id", userID),
					zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		ack := h.dispatch(userID, frame)
		if err := sink.writeJSON(ack); err != nil {
			h.logger.Debug("ack write failed",
				zap.String("conn_id", connID),
				zap.String("user_id", userID),
				zap.Error(err))
			return
		}
	}
}

func (h *realtimeHandler) dispatch(userID string, frame operationFrame) ackFrame {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	switch frame.Op {
	case opSendMessage:
		result, err := h.chat.Send(ctx, userID, frame.MatchID, frame.Text, frame.ClientTempID)
		if err != nil {
			return errorAck(frame.Op, err)
		}
		return okAck(frame.Op, sendAckData(result))

	case opMarkRead:
		result, err := h.chat.MarkRead(ctx, userID, frame.MatchID, frame.MessageIDs)
		if err != nil {
			return errorAck(frame.Op, err)
		}
		return okAck(frame.Op, markReadResponsePayload{
			Count:      len(result.MessageIDs),
			MessageIDs: result.MessageIDs,
		})

	case opTyping:
		if err := h.chat.SetTyping(ctx, userID, frame.MatchID, frame.IsTyping); err != nil {
			return errorAck(frame.Op, err)
		}
		return okAck(frame.Op, nil)

	case opGetOnlineStatus:
		statuses, err := h.chat.OnlineStatus(ctx, frame.UserIDs)
		if err != nil {
			return errorAck(frame.Op, err)
		}
		return okAck(frame.Op, statuses)

	case opHeartbeat:
		return okAck(frame.Op, nil)

	default:
		return ackFrame{
			Op:    frame.Op,
			OK:    false,
			Code:  string(chat.CodeInvalidArgument),
			Error: "unknown operation",
		}
	}
}

func sendAckData(result chat.SendResult) chat.MessagePayload {
	return chat.MessagePayload{
		ID:           result.Message.ID,
		MatchID:      result.Message.MatchID,
		SenderID:     result.Message.SenderID,
		Body:         result.Message.Body,
		Status:       result.Message.Status,
		CreatedAt:    result.Message.CreatedAt,
		DeliveredAt:  result.Message.DeliveredAt,
		ReadAt:       result.Message.ReadAt,
		ClientTempID: result.ClientTempID,
	}
}

func okAck(op string, data any) ackFrame {
	return ackFrame{Op: op, OK: true, Data: data}
}

func errorAck(op string, err error) ackFrame {
	return ackFrame{
		Op:    op,
		OK:    false,
		Code:  string(chat.CodeOf(err)),
		Error: err.Error(),
	}
}
